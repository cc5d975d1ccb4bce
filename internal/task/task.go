/*
 * minikernel32 - Task control block.
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

// Package task implements the task control block. A TCB occupies one
// simulated page frame in the real kernel; here it is an ordinary Go
// struct, keeping the same fields (priority, remaining ticks, status,
// the two list hooks) so the scheduler and synchronisation primitives
// built on top read the same way. The "kernel stack" a context switch
// would save/restore has no Go equivalent - instead each task owns a
// goroutine parked on Resume until the scheduler hands it the CPU
// token (see internal/sched).
package task

import (
	"errors"

	"github.com/rcornwell/minikernel32/internal/list"
	"github.com/rcornwell/minikernel32/internal/vmm"
)

// ErrForkKernelTask is returned by Fork when the parent has no user
// address space ("pgdir == none") to duplicate.
var ErrForkKernelTask = errors.New("task: cannot fork a kernel task")

// Status is a task's scheduling state.
type Status int

const (
	Ready Status = iota
	Running
	Blocked
	Waiting
	Hanging
	Died
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Waiting:
		return "WAITING"
	case Hanging:
		return "HANGING"
	case Died:
		return "DIED"
	default:
		return "UNKNOWN"
	}
}

// StackCanaryMagic is written at TCB creation and checked on every
// timer tick.
const StackCanaryMagic = 0x3a3ae67e

// Task is the TCB. PgDir/UserVM are nil for a kernel task
// ("pgdir == none").
type Task struct {
	PID      uint16
	Name     string
	Priority int
	Ticks    int // remaining quantum
	Elapsed  uint64
	Status   Status

	PgDir  *vmm.Directory
	UserVM *vmm.VPool

	ParentPID uint16
	Canary    uint32

	GeneralTag list.Elem // run/wait queue hook
	AllTag     list.Elem // global all-tasks hook

	Fn  func(arg any)
	Arg any

	resume chan struct{}
	done   chan struct{}
}

var pidCounter uint16 = 1

func nextPID() uint16 {
	pidCounter++
	return pidCounter
}

// New allocates a TCB for thread_start: identity
// fields, status READY, ticks == priority, and the stack canary. The
// caller (internal/sched) is responsible for appending it to
// ready_list/all_list.
func New(name string, priority int, fn func(arg any), arg any) *Task {
	t := &Task{
		PID:      nextPID(),
		Name:     name,
		Priority: priority,
		Ticks:    priority,
		Status:   Ready,
		Canary:   StackCanaryMagic,
		Fn:       fn,
		Arg:      arg,
		resume:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	return t
}

// CheckCanary reports whether the task's canary is intact.
func (t *Task) CheckCanary() bool {
	return t.Canary == StackCanaryMagic
}

// ResetQuantum restores Ticks to Priority, done on (re-)entry to the
// ready queue.
func (t *Task) ResetQuantum() {
	t.Ticks = t.Priority
}

// Resume unblocks the goroutine waiting in WaitForResume - the
// simulated half of switch_to that hands this task the CPU. The resume
// channel holds one pending token, so a Resume that lands before the
// goroutine has parked is kept for its next WaitForResume.
func (t *Task) Resume() {
	select {
	case t.resume <- struct{}{}:
	default:
	}
}

// WaitForResume parks the calling goroutine until Resume is called.
func (t *Task) WaitForResume() {
	<-t.resume
}

// MarkDone closes the task's completion channel; idempotent.
func (t *Task) MarkDone() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// Done returns a channel closed when the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Fork duplicates parent's user address space into a new TCB named
// name, in READY status, ready for a scheduler to queue and run. The
// child's virtual bitmap is cloned bit-for-bit from the parent's, then
// every page the parent currently has mapped is given a fresh physical
// frame at the same virtual address (vmm.GetAPageWithoutVBitmap - the
// vbitmap copy above already marks it, so the fork variant does not
// re-mark it) and the parent's bytes are copied across one at a time.
// A real fork() duplicates the caller's entire execution context so
// both parent and child return from the same call site; a goroutine
// has no such dual-return, so the child instead starts fresh at the
// parent's own entry function - the closest a goroutine can come to
// "continuing from the fork point" with a fresh stack.
func Fork(parent *Task, name string) (*Task, error) {
	if parent.PgDir == nil || parent.UserVM == nil {
		return nil, ErrForkKernelTask
	}

	child := New(name, parent.Priority, parent.Fn, parent.Arg)
	child.ParentPID = parent.PID
	child.PgDir = vmm.NewUserDirectory()
	child.UserVM = parent.UserVM.Clone()

	var copyErr error
	parent.UserVM.EachSet(func(vaddr uint32) {
		if copyErr != nil {
			return
		}
		if err := vmm.GetAPageWithoutVBitmap(vmm.UserFlag, child.PgDir, vaddr); err != nil {
			copyErr = err
			return
		}
		for off := uint32(0); off < vmm.PageSize; off++ {
			b, ok := vmm.ReadVirt(parent.PgDir, vaddr+off)
			if ok {
				vmm.WriteVirt(child.PgDir, vaddr+off, b)
			}
		}
	})
	if copyErr != nil {
		return nil, copyErr
	}
	return child, nil
}
