/*
 * minikernel32 - Programmable interval timer (PIT) driver.
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

// Package timer implements the PIT driver: a regular tick source that
// asserts IRQ0, which fires the scheduler's quantum accounting on every
// pulse. A time.Ticker driven by a dedicated goroutine, gated by an
// enable channel and torn down with a sync.WaitGroup and a
// timeout-guarded Shutdown.
package timer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
)

// DefaultInterval is the simulated PIT pulse rate: real hardware
// leaves the exact rate unspecified, so 1000Hz (1 tick == 1ms) is
// chosen to keep quantum accounting legible in the debug monitor.
const DefaultInterval = time.Millisecond

// Timer drives internal/sched's quantum accounting off IRQ0.
type Timer struct {
	wg       sync.WaitGroup
	sched    *sched.Scheduler
	interval time.Duration
	running  bool
	enable   chan bool
	done     chan struct{}
	ticker   *time.Ticker
	ticks    atomic.Uint64
}

// New creates a Timer wired to s, pulsing every interval (DefaultInterval
// if zero). The driver goroutine starts immediately but the ticker
// stays disabled until Start is called.
func New(s *sched.Scheduler, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Timer{
		sched:    s,
		interval: interval,
		enable:   make(chan bool, 1),
		done:     make(chan struct{}),
	}
	intr.RegisterHandler(intr.VectorIRQBase+intr.IRQTimer, t.isr)
	t.wg.Add(1)
	go t.run()
	return t
}

// Start begins delivering IRQ0 pulses.
func (t *Timer) Start() {
	t.enable <- true
}

// Stop suspends IRQ0 pulses without tearing down the driver goroutine.
func (t *Timer) Stop() {
	t.enable <- false
}

// Shutdown stops the driver goroutine, waiting up to one second.
func (t *Timer) Shutdown() {
	close(t.done)
	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		slog.Warn("timer: timed out waiting for driver goroutine to exit")
	}
}

// Ticks returns the number of pulses delivered so far.
func (t *Timer) Ticks() uint64 {
	return t.ticks.Load()
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(t.interval)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running {
				intr.Raise(intr.IRQTimer)
			}
		case t.running = <-t.enable:
			if t.running {
				t.ticker.Reset(t.interval)
			}
		case <-t.done:
			return
		}
	}
}

// MtimeSleep blocks the calling task for at least ms milliseconds of
// timer ticks: ms is converted to ticks (rounding up against the
// driver's own interval) and the caller spins on sched.ThreadYield
// until Ticks() has advanced that far past its starting count. There
// is no hardware wait-for-interrupt to block on, so yielding
// repeatedly through the scheduler is the only way this simulation can
// give up the CPU while it waits.
func (t *Timer) MtimeSleep(ms int) {
	if ms <= 0 {
		return
	}
	want := time.Duration(ms) * time.Millisecond
	sleepTicks := uint64((want + t.interval - 1) / t.interval)

	start := t.Ticks()
	for t.Ticks()-start < sleepTicks {
		t.sched.ThreadYield()
	}
}

// isr is the registered ISR for vector 0x20: it counts
// the pulse and hands quantum accounting to the scheduler. The
// scheduler itself only requests a reschedule; it is up to the running
// task's next Checkpoint call to actually yield, since a goroutine
// cannot be preempted between two arbitrary instructions the way a
// real CPU can between two machine instructions.
func (t *Timer) isr(_ int) {
	t.ticks.Add(1)
	t.sched.Tick()
}
