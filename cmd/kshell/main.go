// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Kshell boots a simulated system and drives it with commands read
// from the terminal or from script files.
//
// Usage:
//
//	kshell [-config file.json] [-locklog file] [-v] [script...]
//
// Without scripts, kshell reads commands interactively. Type "help" for
// the list of commands.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/chzyer/readline"

	"supercore/kernel"
)

var (
	flagConfig  = flag.String("config", "", "read the system configuration from `file`")
	flagLockLog = flag.String("locklog", "", "write the lock operation log to `file`")
	flagVerbose = flag.Bool("v", false, "log kernel events to standard error")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: kshell [flags] [script...]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetPrefix("kshell: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	cfg := kernel.DefaultConfig()
	if *flagConfig != "" {
		f, err := os.Open(*flagConfig)
		if err != nil {
			log.Fatal(err)
		}
		cfg, err = kernel.LoadConfig(f)
		f.Close()
		if err != nil {
			log.Fatalf("%s: %v", *flagConfig, err)
		}
	}
	if *flagVerbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	if *flagLockLog != "" {
		f, err := os.Create(*flagLockLog)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		cfg.LockLog = f
	}
	sys, err := kernel.Boot(cfg)
	if err != nil {
		log.Fatal(err)
	}
	sh := &shell{sys: sys, out: os.Stdout}

	if flag.NArg() > 0 {
		for _, path := range flag.Args() {
			if err := sh.runFile(path); err != nil {
				sh.finish()
				log.Fatal(err)
			}
		}
	} else if err := sh.interact(); err != nil {
		sh.finish()
		log.Fatal(err)
	}
	if err := sh.finish(); err != nil {
		log.Fatal(err)
	}
}

// runFile executes the commands of the script at path, stopping at the
// first failing command.
func (sh *shell) runFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return sh.run(f, path)
}

// run executes the commands read from r.
func (sh *shell) run(r io.Reader, name string) error {
	scan := bufio.NewScanner(r)
	for line := 1; scan.Scan(); line++ {
		err := sh.exec(scan.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
	}
	return scan.Err()
}

// interact reads commands from the terminal until quit or end of
// input. Failing commands are reported and do not end the session.
func (sh *shell) interact() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kshell> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	sh.out = rl.Stdout()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = sh.exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}

// completer completes command names.
func completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range commands {
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}

// finish flushes the lock log.
func (sh *shell) finish() error {
	return sh.sys.FlushLockLog()
}
