/*
 * minikernel32 - Counting semaphore and reentrant mutex.
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

// Package ksync implements a counting semaphore with a
// FIFO wait queue built on internal/list, and a reentrant mutex layered
// on top of a binary semaphore. Both block through internal/sched
// rather than a native OS primitive, so waiting here is waiting the
// same way any other kernel task waits - off the scheduler's
// ready_list until ThreadUnblock requeues it, not on a goroutine-runtime
// channel a task outside this simulation could never observe.
package ksync

import (
	"fmt"
	"sync"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/list"
	"github.com/rcornwell/minikernel32/internal/sched"
	"github.com/rcornwell/minikernel32/internal/task"
)

// Semaphore is a counting semaphore: Down blocks while value <= 0,
// Up increments and wakes the longest-waiting blocked task, if any.
type Semaphore struct {
	sched   *sched.Scheduler
	value   int
	waiters *list.List
}

// NewSemaphore returns a semaphore initialised to value.
func NewSemaphore(s *sched.Scheduler, value int) *Semaphore {
	return &Semaphore{sched: s, value: value, waiters: list.New()}
}

// Down implements sema_down: decrements value; if the result is
// negative, blocks the caller until a matching Up wakes it. Exactly
// one Up corresponds to exactly one waiter leaving the queue (Up only
// pops when it observes a negative value, and only ever pops one), so
// the decrement already accounted for in this call never needs to be
// repeated after waking - there is no condvar-style spurious wakeup to
// re-check here, since ThreadUnblock on this waiter is only ever
// invoked by the matching Up.
func (sem *Semaphore) Down() {
	st := intr.Disable()
	sem.value--
	if sem.value >= 0 {
		intr.SetState(st)
		return
	}
	cur := sem.sched.Current()
	sem.waiters.PushBack(&cur.GeneralTag, cur)
	intr.SetState(st)

	sem.sched.ThreadBlock(task.Waiting)
}

// Up implements sema_up: increments value and, if any task is waiting,
// pops the oldest one off the wait queue and unblocks it.
func (sem *Semaphore) Up() {
	st := intr.Disable()
	sem.value++
	var woken *task.Task
	if sem.value <= 0 {
		if e := sem.waiters.PopFront(); e != nil {
			woken, _ = e.Value().(*task.Task)
		}
	}
	intr.SetState(st)

	if woken != nil {
		sem.sched.ThreadUnblock(woken)
	}
}

// Value returns the current counter, for tests and the monitor's
// "sema" introspection command. Negative means |Value| tasks waiting.
func (sem *Semaphore) Value() int {
	st := intr.Disable()
	defer intr.SetState(st)
	return sem.value
}

// registry lets drivers publish a semaphore under a name so the debug
// monitor's "sema" command can report its value without either side
// needing a direct reference to the other.
var (
	registryMu sync.Mutex
	registry   = map[string]*Semaphore{}
)

// RegisterSemaphore makes sem visible under name to LookupSemaphore.
// Registering the same name twice overwrites the earlier entry.
func RegisterSemaphore(name string, sem *Semaphore) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = sem
}

// LookupSemaphore returns the semaphore registered under name, if any.
func LookupSemaphore(name string) (*Semaphore, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	sem, ok := registry[name]
	return sem, ok
}

// Mutex is a reentrant lock built on a binary Semaphore: the owning
// task may acquire it again without deadlocking itself: a reentrant
// acquire never blocks.
type Mutex struct {
	sched *sched.Scheduler
	sem   *Semaphore
	owner *task.Task
	depth int
}

// NewMutex returns an unlocked reentrant mutex.
func NewMutex(s *sched.Scheduler) *Mutex {
	return &Mutex{sched: s, sem: NewSemaphore(s, 1)}
}

// Acquire locks m. If the calling task already owns m, this only
// increments the recursion depth and returns immediately.
func (m *Mutex) Acquire() {
	cur := m.sched.Current()
	st := intr.Disable()
	if m.owner == cur && m.depth > 0 {
		m.depth++
		intr.SetState(st)
		return
	}
	intr.SetState(st)

	m.sem.Down()

	st = intr.Disable()
	m.owner = cur
	m.depth = 1
	intr.SetState(st)
}

// Release unlocks one level of recursion; the underlying semaphore is
// only posted once depth reaches zero. Releasing a mutex the calling
// task does not hold is a programming error and panics rather than
// silently tolerating it.
func (m *Mutex) Release() {
	cur := m.sched.Current()
	st := intr.Disable()
	if m.owner != cur {
		intr.SetState(st)
		panic(fmt.Sprintf("ksync: Release by %q, held by %v", cur.Name, m.owner))
	}
	m.depth--
	release := m.depth == 0
	if release {
		m.owner = nil
	}
	intr.SetState(st)

	if release {
		m.sem.Up()
	}
}

// Locked reports whether m is currently held by any task.
func (m *Mutex) Locked() bool {
	st := intr.Disable()
	defer intr.SetState(st)
	return m.owner != nil
}
