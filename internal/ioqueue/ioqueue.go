/*
 * minikernel32 - Bounded character ring buffer.
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

// Package ioqueue implements the bounded single-producer/single-consumer
// character ring buffer: a fixed-capacity backing array with head/tail
// indices, one slot left permanently empty so head==tail means empty and
// next(tail)==head means full. Only one task can ever be blocked waiting
// to write and only one waiting to read - a single producer and a single
// consumer are all this ring buffer's contract allows - so a bare
// producer/consumer task pointer stands in for what would otherwise need
// a full wait queue.
package ioqueue

import (
	"fmt"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
	"github.com/rcornwell/minikernel32/internal/task"
)

// Queue is a fixed-capacity ring buffer of bytes.
type Queue struct {
	sched    *sched.Scheduler
	buf      []byte     // len == capacity+1; one slot always left empty
	head     int        // next slot to read
	tail     int        // next slot to write
	producer *task.Task // the one task blocked waiting for a free slot, if any
	consumer *task.Task // the one task blocked waiting for data, if any
}

// New returns a ring buffer holding up to capacity bytes.
func New(s *sched.Scheduler, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		sched: s,
		buf:   make([]byte, capacity+1),
	}
}

func next(i, n int) int {
	i++
	if i == n {
		return 0
	}
	return i
}

// Putchar implements putchar(q, c): blocks while the buffer is full,
// then appends c and wakes the one waiting reader, if any.
func (q *Queue) Putchar(c byte) {
	for {
		st := intr.Disable()
		if next(q.tail, len(q.buf)) != q.head {
			q.buf[q.tail] = c
			q.tail = next(q.tail, len(q.buf))
			wake := q.consumer
			q.consumer = nil
			intr.SetState(st)
			if wake != nil {
				q.sched.ThreadUnblock(wake)
			}
			return
		}

		cur := q.sched.Current()
		if q.producer != nil && q.producer != cur {
			intr.SetState(st)
			panic(fmt.Sprintf("ioqueue: %q tried to write while %q was already waiting to write", cur.Name, q.producer.Name))
		}
		q.producer = cur
		intr.SetState(st)
		q.sched.ThreadBlock(task.Waiting)
	}
}

// Getchar implements getchar(q): blocks while the buffer is empty, then
// removes and returns the oldest byte, waking the one waiting writer, if
// any.
func (q *Queue) Getchar() byte {
	for {
		st := intr.Disable()
		if q.head != q.tail {
			c := q.buf[q.head]
			q.head = next(q.head, len(q.buf))
			wake := q.producer
			q.producer = nil
			intr.SetState(st)
			if wake != nil {
				q.sched.ThreadUnblock(wake)
			}
			return c
		}

		cur := q.sched.Current()
		if q.consumer != nil && q.consumer != cur {
			intr.SetState(st)
			panic(fmt.Sprintf("ioqueue: %q tried to read while %q was already waiting to read", cur.Name, q.consumer.Name))
		}
		q.consumer = cur
		intr.SetState(st)
		q.sched.ThreadBlock(task.Waiting)
	}
}

// Len reports the number of bytes currently queued, for introspection
// and tests; it is a snapshot, not a synchronisation point.
func (q *Queue) Len() int {
	st := intr.Disable()
	defer intr.SetState(st)
	return (q.tail - q.head + len(q.buf)) % len(q.buf)
}

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf) - 1
}
