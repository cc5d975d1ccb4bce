/*
 * minikernel32 - Intrusive doubly-linked list.
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

// Package list implements an intrusive doubly-linked list: a TCB
// participates in two independent lists (ready/all) by embedding two
// distinct Elem fields rather than being copied into a node-owning
// container, generalised to a reusable element type with head/tail
// sentinels.
//
// Every mutating operation brackets its critical section with
// intr.Disable/intr.SetState, so a list shared between a task and an
// IRQ-simulating goroutine (the timer tick, an IDE completion) never
// observes a half-updated chain.
package list

import "github.com/rcornwell/minikernel32/internal/intr"

// Elem is an embeddable link. A struct wanting to live on N lists
// embeds N independent Elem fields (e.g. TCB.GeneralTag, TCB.AllTag).
type Elem struct {
	prev  *Elem
	next  *Elem
	value any
}

// Value returns the payload stored on insert.
func (e *Elem) Value() any { return e.value }

// List is a sentinel-headed intrusive list.
type List struct {
	head Elem
	tail Elem
	n    int
}

// New returns an empty list with head/tail sentinels linked to each other.
func New() *List {
	l := &List{}
	l.head.next = &l.tail
	l.tail.prev = &l.head
	return l
}

// InsertBefore splices e immediately before mark.
func (l *List) InsertBefore(e *Elem, mark *Elem, value any) {
	st := intr.Disable()
	defer intr.SetState(st)

	e.value = value
	e.prev = mark.prev
	e.next = mark
	mark.prev.next = e
	mark.prev = e
	l.n++
}

// PushFront inserts e at the head of the list.
func (l *List) PushFront(e *Elem, value any) {
	l.InsertBefore(e, l.head.next, value)
}

// PushBack inserts e at the tail of the list.
func (l *List) PushBack(e *Elem, value any) {
	l.InsertBefore(e, &l.tail, value)
}

// Remove unlinks e. It is a no-op if e is not currently linked.
func (l *List) Remove(e *Elem) {
	st := intr.Disable()
	defer intr.SetState(st)

	if e.prev == nil || e.next == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	l.n--
}

// PopFront removes and returns the first element, or nil if empty.
func (l *List) PopFront() *Elem {
	st := intr.Disable()
	if l.head.next == &l.tail {
		intr.SetState(st)
		return nil
	}
	e := l.head.next
	intr.SetState(st)
	l.Remove(e)
	return e
}

// Contains reports whether e is currently linked into l.
//
// This walks the chain rather than checking e.prev/e.next alone so it
// also rejects an Elem that happens to be linked into a different list.
func (l *List) Contains(e *Elem) bool {
	st := intr.Disable()
	defer intr.SetState(st)

	for cur := l.head.next; cur != &l.tail; cur = cur.next {
		if cur == e {
			return true
		}
	}
	return false
}

// Traverse calls check(value, arg) for every element in order, stopping
// early and returning the matching element's value if check returns true.
func (l *List) Traverse(check func(value any, arg any) bool, arg any) any {
	st := intr.Disable()
	defer intr.SetState(st)

	for cur := l.head.next; cur != &l.tail; cur = cur.next {
		if check(cur.value, arg) {
			return cur.value
		}
	}
	return nil
}

// Len returns the number of linked elements.
func (l *List) Len() int {
	st := intr.Disable()
	defer intr.SetState(st)
	return l.n
}

// Empty reports whether the list has no elements.
func (l *List) Empty() bool {
	return l.Len() == 0
}

// Front returns the first element's value, or nil if empty.
func (l *List) Front() any {
	st := intr.Disable()
	defer intr.SetState(st)
	if l.head.next == &l.tail {
		return nil
	}
	return l.head.next.value
}
