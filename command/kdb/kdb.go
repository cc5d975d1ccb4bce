/*
 * minikernel32 - Interactive kernel debug monitor.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package kdb is the interactive debug monitor: a liner-backed REPL
// that runs alongside the booted kernel and inspects scheduler/task
// state without otherwise touching it.
package kdb

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/rcornwell/minikernel32/internal/hexfmt"
	"github.com/rcornwell/minikernel32/internal/ksync"
	"github.com/rcornwell/minikernel32/internal/sched"
	"github.com/rcornwell/minikernel32/internal/timer"
	"github.com/rcornwell/minikernel32/internal/vmm"
)

// Monitor owns the scheduler/timer handles the registered commands
// read from, and the command table itself.
type Monitor struct {
	sched    *sched.Scheduler
	timer    *timer.Timer
	commands map[string]func(args []string) (quit bool, err error)
}

// New returns a Monitor wired to the running kernel's scheduler/timer.
func New(s *sched.Scheduler, t *timer.Timer) *Monitor {
	m := &Monitor{sched: s, timer: t}
	m.commands = map[string]func(args []string) (bool, error){
		"ps":    m.cmdPS,
		"ticks": m.cmdTicks,
		"mem":   m.cmdMem,
		"free":  m.cmdFree,
		"sema":  m.cmdSema,
		"panic": m.cmdPanic,
		"sleep": m.cmdSleep,
		"help":  m.cmdHelp,
		"quit":  func([]string) (bool, error) { return true, nil },
		"exit":  func([]string) (bool, error) { return true, nil },
	}
	return m
}

// Run starts the REPL; it returns when the operator quits or aborts.
func (m *Monitor) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return m.complete(partial)
	})

	for {
		command, err := line.Prompt("kdb> ")
		if err == nil {
			line.AppendHistory(command)
			quit, cmdErr := m.process(command)
			if cmdErr != nil {
				fmt.Println("Error: " + cmdErr.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		slog.Error("kdb: error reading line: " + err.Error())
		return
	}
}

func (m *Monitor) complete(partial string) []string {
	var out []string
	for name := range m.commands {
		if strings.HasPrefix(name, partial) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Monitor) process(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	fn, ok := m.commands[fields[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try \"help\")", fields[0])
	}
	return fn(fields[1:])
}

func (m *Monitor) cmdPS([]string) (bool, error) {
	fmt.Printf("%-6s %-16s %-5s %-9s %s\n", "PID", "NAME", "PRIO", "STATUS", "ELAPSED")
	for _, snap := range m.sched.Snapshot() {
		fmt.Printf("%-6d %-16s %-5d %-9s %d\n", snap.PID, snap.Name, snap.Priority, snap.Status.String(), snap.Elapsed)
	}
	return false, nil
}

func (m *Monitor) cmdTicks([]string) (bool, error) {
	fmt.Printf("ticks: %d\n", m.timer.Ticks())
	return false, nil
}

// cmdMem implements "mem <hex-addr> [length]": a physical memory dump
// read straight through internal/vmm.ReadByte, the same physical-store
// accessor vmm.ReadVirt uses after translating a virtual address, so
// the monitor sees exactly what the kernel sees.
func (m *Monitor) cmdMem(args []string) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("usage: mem <hex-addr> [length]")
	}
	addr64, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 32)
	if err != nil {
		return false, fmt.Errorf("mem: bad address %q: %w", args[0], err)
	}
	length := 64
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("mem: bad length %q: %w", args[1], err)
		}
		length = n
	}

	addr := uint32(addr64)
	data := make([]byte, 0, length)
	for i := 0; i < length; i++ {
		b, ok := vmm.ReadByte(addr + uint32(i))
		if !ok {
			return false, fmt.Errorf("mem: address %#x not backed by RAM", addr+uint32(i))
		}
		data = append(data, b)
	}
	fmt.Print(hexfmt.Dump(addr, data))
	return false, nil
}

// cmdFree implements "free": reports each physical pool's occupancy,
// the same bitmap internal/vmm tracks allocations against.
func (m *Monitor) cmdFree([]string) (bool, error) {
	report := func(name string, p *vmm.Pool) {
		fmt.Printf("%-6s %6d free / %6d total\n", name, p.Free(), p.Total())
	}
	report("kernel", vmm.KernelPool())
	report("user", vmm.UserPool())
	return false, nil
}

// cmdSema implements "sema <name>": looks the name up in
// internal/ksync's registry and prints its counter. Negative means
// |value| tasks are currently blocked on it.
func (m *Monitor) cmdSema(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: sema <name>")
	}
	sem, ok := ksync.LookupSemaphore(args[0])
	if !ok {
		return false, fmt.Errorf("sema: no semaphore registered as %q", args[0])
	}
	fmt.Printf("%s: %d\n", args[0], sem.Value())
	return false, nil
}

// cmdPanic implements "panic": forces a kernel panic on demand, for
// exercising the PANIC logging/halt path from the monitor rather than
// waiting for a real invariant violation.
func (m *Monitor) cmdPanic([]string) (bool, error) {
	slog.Error("kdb: operator-forced panic")
	panic("kdb: panic command invoked")
}

// cmdSleep implements "sleep <ms>": blocks the monitor itself for at
// least ms milliseconds via mtime_sleep, the same tick-counting wait
// every kernel task uses.
func (m *Monitor) cmdSleep(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: sleep <ms>")
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return false, fmt.Errorf("sleep: bad duration %q: %w", args[0], err)
	}
	m.timer.MtimeSleep(ms)
	return false, nil
}

func (m *Monitor) cmdHelp([]string) (bool, error) {
	fmt.Println("commands: ps, ticks, mem <addr> [len], free, sema <name>, panic, sleep <ms>, help, quit")
	return false, nil
}
