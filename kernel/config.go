// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"supercore/fatal"
	"supercore/scheduler"
	"supercore/thread"
)

// SchedulerConfig is one entry of the scheduler table.
type SchedulerConfig struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	Processors []int  `json:"processors"`
}

// Config is the application configuration of a system.
type Config struct {
	// Processors is the number of processors of the machine.
	// Processors not named in the scheduler table stay offline.
	Processors int `json:"processors"`

	MaxThreads  int             `json:"max_threads"`
	MaxPriority thread.Priority `json:"max_priority"`

	MicrosecondsPerTick uint32 `json:"microseconds_per_tick"`

	// Stack and thread-local storage sizes in bytes. A MaxTLSSize of
	// zero means no limit.
	IdleStackSize    int `json:"idle_stack_size"`
	MinimumStackSize int `json:"minimum_stack_size"`
	TLSSize          int `json:"tls_size"`
	MaxTLSSize       int `json:"max_tls_size"`

	Schedulers []SchedulerConfig `json:"schedulers"`

	// FatalHandler is called on fatal errors before the system
	// stops.
	FatalHandler fatal.Handler `json:"-"`

	// LockLog, if not nil, receives the lock operation log.
	LockLog io.Writer `json:"-"`

	// Logger receives kernel events. Nil discards them.
	Logger *slog.Logger `json:"-"`
}

// Default sizes.
const (
	DefaultStackSize = 4096
	MaxProcessors    = scheduler.MaxProcessors
)

// DefaultConfig returns the configuration of a uniprocessor system
// with the priority scheduler.
func DefaultConfig() Config {
	return Config{
		Processors:          1,
		MaxThreads:          64,
		MaxPriority:         thread.PriorityDefaultMaximum,
		MicrosecondsPerTick: 10000,
		IdleStackSize:       DefaultStackSize,
		MinimumStackSize:    DefaultStackSize,
		Schedulers: []SchedulerConfig{
			{Name: "UPD", Algorithm: scheduler.AlgorithmPriority.String(), Processors: []int{0}},
		},
	}
}

// LoadConfig reads a JSON configuration from r. Fields missing from
// the input keep their DefaultConfig values.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// TickDuration returns the duration of one clock tick.
func (c *Config) TickDuration() time.Duration {
	return time.Duration(c.MicrosecondsPerTick) * time.Microsecond
}

var errBadConfig = errors.New("bad configuration")

// Validate checks the structure of the configuration. Conditions the
// system reports through the fatal path, such as a too small idle
// stack, are checked by Boot.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{errBadConfig}, args...)...)
	}
	switch {
	case c.Processors < 1 || c.Processors > MaxProcessors:
		return bad("processor count %d out of range [1,%d]", c.Processors, MaxProcessors)
	case c.MaxThreads < 1 || c.MaxThreads+c.Processors > thread.MaxThreads:
		return bad("thread count %d out of range", c.MaxThreads)
	case c.MaxPriority < 1 || c.MaxPriority > thread.PriorityDefaultMaximum:
		return bad("maximum priority %d out of range [1,%d]", c.MaxPriority, thread.PriorityDefaultMaximum)
	case c.MicrosecondsPerTick == 0:
		return bad("zero tick duration")
	case len(c.Schedulers) == 0:
		return bad("no schedulers")
	}
	names := make(map[string]bool)
	var owner [MaxProcessors]string
	online := 0
	for _, sc := range c.Schedulers {
		if sc.Name == "" || names[sc.Name] {
			return bad("scheduler name %q empty or not unique", sc.Name)
		}
		names[sc.Name] = true
		a, err := scheduler.ParseAlgorithm(sc.Algorithm)
		if err != nil {
			return bad("scheduler %s: %v", sc.Name, err)
		}
		if a == scheduler.AlgorithmPriority && len(sc.Processors) > 1 {
			return bad("scheduler %s: uniprocessor algorithm with %d processors", sc.Name, len(sc.Processors))
		}
		for _, cpu := range sc.Processors {
			if cpu < 0 || cpu >= c.Processors {
				return bad("scheduler %s: processor %d out of range", sc.Name, cpu)
			}
			if owner[cpu] != "" {
				return bad("processor %d assigned to %s and %s", cpu, owner[cpu], sc.Name)
			}
			owner[cpu] = sc.Name
			online++
		}
	}
	if online == 0 {
		return bad("no processor assigned to a scheduler")
	}
	return nil
}
