// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"supercore/coremutex"
	"supercore/kernel"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
)

type shell struct {
	sys *kernel.System
	out io.Writer
}

var errQuit = errors.New("quit")

type command struct {
	name string
	args string
	min  int // argument count bounds
	max  int
	help string
	run  func(sh *shell, args []string) error
}

var commands []*command

func init() {
	commands = []*command{
		{"thread", "NAME PRIO [SCHED]", 2, 3, "create a dormant thread", (*shell).cmdThread},
		{"start", "THREAD", 1, 1, "start a dormant thread", (*shell).cmdStart},
		{"suspend", "THREAD", 1, 1, "suspend a thread", (*shell).cmdSuspend},
		{"resume", "THREAD", 1, 1, "resume a suspended thread", (*shell).cmdResume},
		{"delete", "THREAD", 1, 1, "delete a thread", (*shell).cmdDelete},
		{"prio", "THREAD PRIO", 2, 2, "set the real priority of a thread", (*shell).cmdPrio},
		{"affinity", "THREAD CPUS", 2, 2, "set the processor affinity of a thread, e.g. 0,2-3", (*shell).cmdAffinity},
		{"sched", "THREAD SCHED", 2, 2, "move a thread to another scheduler", (*shell).cmdSched},
		{"yield", "THREAD", 1, 1, "move a thread behind its ready peers", (*shell).cmdYield},
		{"mutex", "NAME DISCIPLINE [CEILING]", 2, 3, "create a mutex (fifo, priority, inherit or ceiling)", (*shell).cmdMutex},
		{"seize", "THREAD MUTEX [TICKS]", 2, 3, "seize a mutex, waiting at most TICKS ticks", (*shell).cmdSeize},
		{"try", "THREAD MUTEX", 2, 2, "seize a mutex without waiting", (*shell).cmdTry},
		{"surrender", "THREAD MUTEX", 2, 2, "release a mutex", (*shell).cmdSurrender},
		{"ceiling", "MUTEX PRIO", 2, 2, "set the priority ceiling of a mutex", (*shell).cmdCeiling},
		{"futex", "NAME", 1, 1, "create a futex", (*shell).cmdFutex},
		{"wait", "THREAD FUTEX VALUE [TICKS]", 3, 4, "wait on a futex if it holds VALUE", (*shell).cmdWait},
		{"wake", "FUTEX N", 2, 2, "wake up to N waiters of a futex", (*shell).cmdWake},
		{"set", "FUTEX VALUE", 2, 2, "store VALUE in a futex", (*shell).cmdSet},
		{"tick", "[N]", 0, 1, "advance the clock by N ticks", (*shell).cmdTick},
		{"ps", "", 0, 0, "list threads", (*shell).cmdPs},
		{"cpus", "", 0, 0, "list processors", (*shell).cmdCPUs},
		{"objects", "", 0, 0, "list mutexes and futexes", (*shell).cmdObjects},
		{"online", "SCHED CPU", 2, 2, "add a processor to a scheduler", (*shell).cmdOnline},
		{"offline", "CPU", 1, 1, "remove a processor from its scheduler", (*shell).cmdOffline},
		{"deadlocks", "", 0, 0, "report wait-for and lock order cycles", (*shell).cmdDeadlocks},
		{"lockorder", "FILE", 1, 1, "write the lock order graph in dot format", (*shell).cmdLockOrder},
		{"savelocks", "FILE", 1, 1, "save the lock order graph for a later run", (*shell).cmdSaveLocks},
		{"loadlocks", "FILE", 1, 1, "merge a saved lock order graph", (*shell).cmdLoadLocks},
		{"profile", "FILE", 1, 1, "write the contention profile", (*shell).cmdProfile},
		{"help", "", 0, 0, "list commands", (*shell).cmdHelp},
		{"quit", "", 0, 0, "exit", func(*shell, []string) error { return errQuit }},
	}
}

// exec runs one command line. Blank lines and lines starting with #
// are ignored.
func (sh *shell) exec(line string) error {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil
	}
	for _, c := range commands {
		if c.name != f[0] {
			continue
		}
		args := f[1:]
		if len(args) < c.min || len(args) > c.max {
			return fmt.Errorf("usage: %s %s", c.name, c.args)
		}
		return c.run(sh, args)
	}
	return fmt.Errorf("unknown command %q (try help)", f[0])
}

func (sh *shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) thread(name string) (thread.ID, error) {
	t := sh.sys.LookupThread(name)
	if t == nil {
		return 0, fmt.Errorf("no thread %q", name)
	}
	return t.ID(), nil
}

func parsePriority(s string) (thread.Priority, error) {
	p, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad priority %q", s)
	}
	return thread.Priority(p), nil
}

func parseTicks(args []string, i int) (uint64, error) {
	if len(args) <= i {
		return 0, nil
	}
	n, err := strconv.ParseUint(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad tick count %q", args[i])
	}
	return n, nil
}

// report prints the outcome of a wait that may block.
func (sh *shell) report(who, what string, code status.Code) {
	if code == status.Blocked {
		sh.printf("%s blocks on %s\n", who, what)
		return
	}
	sh.printf("%s %s: %v\n", who, what, code.Classic())
}

func (sh *shell) cmdThread(args []string) error {
	p, err := parsePriority(args[1])
	if err != nil {
		return err
	}
	sched := ""
	if len(args) > 2 {
		sched = args[2]
	}
	id, err := sh.sys.CreateThread(args[0], p, sched)
	if err != nil {
		return err
	}
	sh.printf("%s %v\n", args[0], id)
	return nil
}

func (sh *shell) threadOp(name string, op func(thread.ID) error) error {
	id, err := sh.thread(name)
	if err != nil {
		return err
	}
	return op(id)
}

func (sh *shell) cmdStart(args []string) error   { return sh.threadOp(args[0], sh.sys.StartThread) }
func (sh *shell) cmdSuspend(args []string) error { return sh.threadOp(args[0], sh.sys.SuspendThread) }
func (sh *shell) cmdResume(args []string) error  { return sh.threadOp(args[0], sh.sys.ResumeThread) }
func (sh *shell) cmdDelete(args []string) error  { return sh.threadOp(args[0], sh.sys.DeleteThread) }
func (sh *shell) cmdYield(args []string) error   { return sh.threadOp(args[0], sh.sys.Yield) }

func (sh *shell) cmdPrio(args []string) error {
	p, err := parsePriority(args[1])
	if err != nil {
		return err
	}
	return sh.threadOp(args[0], func(id thread.ID) error {
		old, err := sh.sys.SetPriority(id, p)
		if err == nil {
			sh.printf("%s priority %v -> %v\n", args[0], old, p)
		}
		return err
	})
}

func (sh *shell) cmdAffinity(args []string) error {
	set, err := scheduler.ParseProcessorSet(args[1])
	if err != nil {
		return err
	}
	return sh.threadOp(args[0], func(id thread.ID) error { return sh.sys.SetAffinity(id, set) })
}

func (sh *shell) cmdSched(args []string) error {
	return sh.threadOp(args[0], func(id thread.ID) error { return sh.sys.SetScheduler(id, args[1]) })
}

func (sh *shell) cmdMutex(args []string) error {
	d, err := coremutex.ParseDiscipline(args[1])
	if err != nil {
		return err
	}
	attr := coremutex.Attributes{Discipline: d, OnlyOwnerRelease: true}
	if len(args) > 2 {
		if d != coremutex.PriorityCeiling {
			return fmt.Errorf("ceiling given for %v mutex", d)
		}
		if attr.PriorityCeiling, err = parsePriority(args[2]); err != nil {
			return err
		}
	}
	_, err = sh.sys.NewMutex(args[0], attr)
	return err
}

func (sh *shell) seize(args []string, wait bool) error {
	ticks, err := parseTicks(args, 2)
	if err != nil {
		return err
	}
	return sh.threadOp(args[0], func(id thread.ID) error {
		code, err := sh.sys.Seize(id, args[1], wait, ticks)
		if err == nil {
			sh.report(args[0], args[1], code)
		}
		return err
	})
}

func (sh *shell) cmdSeize(args []string) error { return sh.seize(args, true) }
func (sh *shell) cmdTry(args []string) error   { return sh.seize(args, false) }

func (sh *shell) cmdSurrender(args []string) error {
	return sh.threadOp(args[0], func(id thread.ID) error {
		code, err := sh.sys.Surrender(id, args[1])
		if err == nil && code != status.Successful {
			sh.printf("%s surrender %s: %v\n", args[0], args[1], code.Classic())
		}
		return err
	})
}

func (sh *shell) cmdCeiling(args []string) error {
	p, err := parsePriority(args[1])
	if err != nil {
		return err
	}
	old, err := sh.sys.SetPriorityCeiling(args[0], p)
	if err == nil {
		sh.printf("%s ceiling %v -> %v\n", args[0], old, p)
	}
	return err
}

func (sh *shell) cmdFutex(args []string) error {
	_, err := sh.sys.NewFutex(args[0])
	return err
}

func (sh *shell) cmdWait(args []string) error {
	v, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		return fmt.Errorf("bad value %q", args[2])
	}
	ticks, err := parseTicks(args, 3)
	if err != nil {
		return err
	}
	return sh.threadOp(args[0], func(id thread.ID) error {
		err := sh.sys.FutexWait(id, args[1], uint32(v), ticks)
		if err != nil {
			sh.printf("%s wait %s: %v\n", args[0], args[1], err)
			return nil
		}
		sh.report(args[0], args[1], status.Blocked)
		return nil
	})
}

func (sh *shell) cmdWake(args []string) error {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad count %q", args[1])
	}
	woken, err := sh.sys.FutexWake(args[0], n)
	if err == nil {
		sh.printf("woke %d\n", woken)
	}
	return err
}

func (sh *shell) cmdSet(args []string) error {
	v, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad value %q", args[1])
	}
	return sh.sys.SetFutexValue(args[0], uint32(v))
}

func (sh *shell) cmdTick(args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n < 0 {
			return fmt.Errorf("bad tick count %q", args[0])
		}
	}
	for i := 0; i < n; i++ {
		sh.sys.Tick()
	}
	sh.printf("uptime %v\n", sh.sys.Clock().Uptime())
	return nil
}

func (sh *shell) cmdPs(args []string) error {
	tw := tabwriter.NewWriter(sh.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tID\tSTATE\tPRIO\tCPU\tWAIT\n")
	for _, t := range sh.sys.Registry().Threads() {
		prio := t.RealPriority().String()
		if t.CurrentPriority() != t.RealPriority() {
			prio += "/" + t.CurrentPriority().String()
		}
		cpu := "-"
		if c := t.CPU(); c >= 0 {
			cpu = strconv.Itoa(c)
		}
		wait := "-"
		if q := t.Wait.Queue(); q != nil {
			wait = q.Name()
		} else if code, done, err := sh.sys.WaitStatus(t.ID()); err == nil && done && code != status.Successful {
			wait = code.Classic()
		}
		fmt.Fprintf(tw, "%s\t%v\t%v\t%s\t%s\t%s\n", t.Name(), t.ID(), t.State(), prio, cpu, wait)
	}
	return tw.Flush()
}

func (sh *shell) cmdCPUs(args []string) error {
	owner := make(map[int]string)
	for _, sc := range sh.sys.Schedulers() {
		sc.Processors().Each(func(cpu int) { owner[cpu] = sc.Name() })
	}
	tw := tabwriter.NewWriter(sh.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "CPU\tSCHED\tEXECUTING\tHEIR\tSWITCHES\n")
	for _, c := range sh.sys.Processors().All() {
		name := func(t *thread.Thread) string {
			if t == nil {
				return "-"
			}
			return t.Name()
		}
		sched := owner[c.Index()]
		if sched == "" {
			sched = "offline"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", c.Index(), sched, name(c.Executing()), name(c.Heir()), c.Dispatches())
	}
	return tw.Flush()
}

func (sh *shell) cmdObjects(args []string) error {
	tw := tabwriter.NewWriter(sh.out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tKIND\tHOLDER\tWAITERS\n")
	for _, m := range sh.sys.Mutexes() {
		holder := "-"
		if h := m.Holder(); h != nil {
			holder = fmt.Sprintf("%s(%d)", h.Name(), m.NestCount())
		}
		fmt.Fprintf(tw, "%s\t%v mutex\t%s\t%d\n", m.Name(), m.Attributes().Discipline, holder, m.Queue().Len())
	}
	for _, f := range sh.sys.Futexes() {
		fmt.Fprintf(tw, "%s\tfutex=%d\t-\t%d\n", f.Name(), f.Value.Load(), f.Queue().Len())
	}
	return tw.Flush()
}

func (sh *shell) cmdOnline(args []string) error {
	cpu, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad processor %q", args[1])
	}
	return sh.sys.AddProcessor(args[0], cpu)
}

func (sh *shell) cmdOffline(args []string) error {
	cpu, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad processor %q", args[0])
	}
	return sh.sys.RemoveProcessor(cpu)
}

func (sh *shell) cmdDeadlocks(args []string) error {
	if d := sh.sys.Deadlocks(); len(d) > 0 {
		sh.printf("deadlocked threads: %s\n", strings.Join(d, " "))
	} else {
		sh.printf("no deadlocked threads\n")
	}
	if !sh.sys.LockOrderReport(sh.out) {
		sh.printf("no lock order cycles\n")
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (sh *shell) cmdLockOrder(args []string) error {
	return writeFile(args[0], sh.sys.LockOrderDot)
}

func (sh *shell) cmdSaveLocks(args []string) error {
	return writeFile(args[0], sh.sys.SaveLockOrder)
}

func (sh *shell) cmdLoadLocks(args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return sh.sys.LoadLockOrder(f)
}

func (sh *shell) cmdProfile(args []string) error {
	return writeFile(args[0], sh.sys.ContentionProfile)
}

func (sh *shell) cmdHelp(args []string) error {
	tw := tabwriter.NewWriter(sh.out, 0, 8, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "%s %s\t%s\n", c.name, c.args, c.help)
	}
	return tw.Flush()
}
