/*
 * minikernel32 - Priority-weighted, time-sliced scheduler.
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

// Package sched implements a single FIFO ready_list,
// priority-as-quantum accounting, block/unblock, yield and the idle
// task. Real hardware preemption has no Go equivalent - a goroutine
// cannot be paused mid-instruction by another goroutine - so a running
// task's body is expected to call Checkpoint at natural loop
// boundaries (every iteration of a CPU-bound loop, every pass through
// a driver's polling loop). internal/timer's Tick still fires
// independently and decrements the quantum exactly as the real ISR
// would; Checkpoint is simply where that decision is finally acted on.
// This is a deliberate, cooperative stand-in for true hardware
// preemption, which a single-process goroutine scheduler cannot provide.
package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/list"
	"github.com/rcornwell/minikernel32/internal/task"
)

// Scheduler owns the run queues and the notion of "current" task.
type Scheduler struct {
	mu          sync.Mutex
	readyList   *list.List
	allList     *list.List
	current     *task.Task
	idle        *task.Task
	needResched atomic.Bool
}

// New returns an empty scheduler with no tasks; MakeMainThread and
// StartIdle must be called before Schedule does anything useful.
func New() *Scheduler {
	return &Scheduler{readyList: list.New(), allList: list.New()}
}

var def = New()

// Default returns the process-wide scheduler instance, for callers that
// don't carry their own *Scheduler reference.
func Default() *Scheduler { return def }

// ResetDefault discards all scheduler state. Test isolation only.
func ResetDefault() { def = New() }

// MakeMainThread adopts the calling goroutine as the TCB the loader
// left running at boot: no separate
// goroutine is spawned, since the caller's own goroutine already *is*
// this task's execution context.
func (s *Scheduler) MakeMainThread() *task.Task {
	t := task.New("main", 31, nil, nil)
	s.mu.Lock()
	t.Status = task.Running
	s.allList.PushBack(&t.AllTag, t)
	s.current = t
	s.mu.Unlock()
	return t
}

// StartIdle creates and registers the idle task (priority 10):
// block(BLOCKED); sti; hlt; loop. Its own first turn blocks
// itself; thereafter only Schedule (when ready_list drains) wakes it.
func (s *Scheduler) StartIdle() *task.Task {
	idle := task.New("idle", 10, func(any) {
		for {
			s.ThreadBlock(task.Blocked)
			// pickNext re-selects idle immediately whenever ready_list
			// is otherwise empty, since there is no real hlt to park
			// the goroutine on; a short real sleep keeps that from
			// becoming a tight spin until something else is ready.
			time.Sleep(time.Millisecond)
		}
	}, nil)
	s.idle = idle
	s.mu.Lock()
	s.allList.PushBack(&idle.AllTag, idle)
	s.readyList.PushBack(&idle.GeneralTag, idle)
	s.mu.Unlock()
	s.spawnGoroutine(idle)
	return idle
}

// ThreadStart implements thread_start: allocate, fill
// in identity fields with status READY and ticks == priority, and
// append to both lists. fn runs on its own goroutine once scheduled.
func (s *Scheduler) ThreadStart(name string, priority int, fn func(arg any), arg any) *task.Task {
	t := task.New(name, priority, fn, arg)
	s.mu.Lock()
	s.allList.PushBack(&t.AllTag, t)
	s.readyList.PushBack(&t.GeneralTag, t)
	s.mu.Unlock()
	s.spawnGoroutine(t)
	return t
}

// ThreadFork duplicates parent's user address space via task.Fork,
// queues the resulting child as READY on both lists, and spawns its
// goroutine - the scheduler-facing half of task.Fork, mirroring how
// ThreadStart handles a freshly created TCB.
func (s *Scheduler) ThreadFork(parent *task.Task, name string) (*task.Task, error) {
	child, err := task.Fork(parent, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.allList.PushBack(&child.AllTag, child)
	s.readyList.PushBack(&child.GeneralTag, child)
	s.mu.Unlock()
	s.spawnGoroutine(child)
	return child, nil
}

func (s *Scheduler) spawnGoroutine(t *task.Task) {
	go func() {
		t.WaitForResume()
		if t.Fn != nil {
			t.Fn(t.Arg)
		}
		s.exit(t)
	}()
}

// Current returns the task presently marked RUNNING.
func (s *Scheduler) Current() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// pickNext pops the head of ready_list, waking idle first if the list
// is empty, and installs it as current. Caller holds no lock.
func (s *Scheduler) pickNext() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readyList.Empty() && s.idle != nil && s.idle.Status != task.Ready {
		s.idle.ResetQuantum()
		s.idle.Status = task.Ready
		s.readyList.PushFront(&s.idle.GeneralTag, s.idle)
	}

	elem := s.readyList.PopFront()
	var next *task.Task
	if elem != nil {
		next, _ = elem.Value().(*task.Task)
	}
	s.current = next
	if next != nil {
		next.Status = task.Running
	}
	return next
}

// reschedule hands the CPU to whatever pickNext selects, resuming it
// if different from cur, and parks cur's own goroutine until some
// future Schedule call resumes it again.
func (s *Scheduler) reschedule(cur *task.Task) {
	next := s.pickNext()
	if next == cur {
		return
	}
	if next != nil {
		next.Resume()
	}
	if cur != nil {
		cur.WaitForResume()
	}
}

// Schedule implements schedule(): if current is
// RUNNING, reset its quantum, mark it READY and requeue it; pick the
// new head of ready_list (waking idle if necessary); switch to it.
// Callers must already have interrupts disabled; Schedule restores
// nothing on its own, matching "no preemption disable counting."
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	cur := s.current
	if cur != nil && cur.Status == task.Running {
		cur.ResetQuantum()
		cur.Status = task.Ready
		s.readyList.PushBack(&cur.GeneralTag, cur)
	}
	s.mu.Unlock()
	s.reschedule(cur)
}

// ThreadBlock implements thread_block(state): disable
// interrupts, set the requested non-runnable state, reschedule, and on
// resume restore the prior interrupt state.
func (s *Scheduler) ThreadBlock(state task.Status) {
	st := intr.Disable()
	s.mu.Lock()
	cur := s.current
	if cur != nil {
		cur.Status = state
	}
	s.mu.Unlock()
	s.reschedule(cur)
	intr.SetState(st)
}

// ThreadUnblock implements thread_unblock(t): if t is
// not already READY, it must not already be queued; push it to the
// front of ready_list so it runs soon, and mark it READY. It does not
// itself switch to t.
func (s *Scheduler) ThreadUnblock(t *task.Task) {
	st := intr.Disable()
	defer intr.SetState(st)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == task.Ready {
		return
	}
	if s.readyList.Contains(&t.GeneralTag) {
		panic(fmt.Sprintf("thread_unblock: task %q already queued", t.Name))
	}
	t.ResetQuantum()
	t.Status = task.Ready
	s.readyList.PushFront(&t.GeneralTag, t)
}

// ThreadYield implements thread_yield(): remain READY, rotate to the
// back of ready_list. Schedule already does exactly this for a RUNNING
// current task, so ThreadYield is Schedule under another name.
func (s *Scheduler) ThreadYield() {
	st := intr.Disable()
	s.Schedule()
	intr.SetState(st)
}

// Checkpoint is the cooperative preemption point a running task's loop
// calls periodically. If the timer has exhausted the quantum since the
// last checkpoint, this yields the CPU exactly as a real preemption
// would; otherwise it returns immediately.
func (s *Scheduler) Checkpoint() {
	if s.needResched.Swap(false) {
		s.Schedule()
	}
}

// Tick implements the per-tick portion of the timer ISR: assert
// the running task's stack canary, decrement its quantum, and request
// a reschedule at the task's next Checkpoint once it reaches zero.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	cur := s.current
	if cur == nil {
		s.mu.Unlock()
		return
	}
	if !cur.CheckCanary() {
		s.mu.Unlock()
		panic(fmt.Sprintf("stack overflow: canary corrupted on task %q (pid %d)", cur.Name, cur.PID))
	}
	if cur.Status == task.Running {
		cur.Ticks--
		cur.Elapsed++
		if cur.Ticks <= 0 {
			s.needResched.Store(true)
		}
	}
	s.mu.Unlock()
}

// exit implements the DIED/reaped transition: remove from all_list,
// pick whatever runs next, and let this goroutine return without ever
// parking on its own resume channel again.
func (s *Scheduler) exit(t *task.Task) {
	st := intr.Disable()
	s.mu.Lock()
	t.Status = task.Died
	s.allList.Remove(&t.AllTag)
	s.mu.Unlock()

	next := s.pickNext()
	intr.SetState(st)

	t.MarkDone()
	if next != nil {
		next.Resume()
	}
}

// ReadyContains reports whether t is presently linked into ready_list:
// a task appears in ready_list if and only if it is READY.
func (s *Scheduler) ReadyContains(t *task.Task) bool {
	return s.readyList.Contains(&t.GeneralTag)
}

// Snapshot returns a point-in-time summary of every live task, for the
// interactive monitor's "ps" command and for tests.
type Snapshot struct {
	PID      uint16
	Name     string
	Priority int
	Status   task.Status
	Elapsed  uint64
}

func (s *Scheduler) Snapshot() []Snapshot {
	var out []Snapshot
	s.allList.Traverse(func(value any, _ any) bool {
		t := value.(*task.Task)
		out = append(out, Snapshot{PID: t.PID, Name: t.Name, Priority: t.Priority, Status: t.Status, Elapsed: t.Elapsed})
		return false
	}, nil)
	return out
}
