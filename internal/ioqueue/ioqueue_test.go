package ioqueue

import (
	"testing"
	"time"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
)

func newTestScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()
	return s
}

func TestPutGetRoundTripUncontended(t *testing.T) {
	s := newTestScheduler(t)
	q := New(s, 4)

	q.Putchar('a')
	q.Putchar('b')
	if got := q.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if c := q.Getchar(); c != 'a' {
		t.Fatalf("Getchar() = %q, want 'a'", c)
	}
	if c := q.Getchar(); c != 'b' {
		t.Fatalf("Getchar() = %q, want 'b'", c)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestGetcharBlocksUntilPutchar(t *testing.T) {
	s := newTestScheduler(t)
	q := New(s, 2)

	got := make(chan byte, 1)
	s.ThreadStart("reader", 5, func(any) {
		got <- q.Getchar()
	}, nil)

	s.Schedule() // reader runs, blocks on an empty queue, control returns here

	select {
	case <-got:
		t.Fatalf("reader should still be blocked on an empty queue")
	default:
	}

	q.Putchar('z')
	s.Schedule() // dispatch the now-unblocked reader

	select {
	case c := <-got:
		if c != 'z' {
			t.Fatalf("reader got %q, want 'z'", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader never woke up after Putchar")
	}
}

func TestPutcharBlocksWhenFull(t *testing.T) {
	s := newTestScheduler(t)
	q := New(s, 1)
	q.Putchar('x') // fills the only slot

	wrote := make(chan struct{})
	s.ThreadStart("writer", 5, func(any) {
		q.Putchar('y')
		close(wrote)
	}, nil)

	s.Schedule() // writer runs, blocks since the queue is full
	select {
	case <-wrote:
		t.Fatalf("writer should still be blocked on a full queue")
	default:
	}

	if c := q.Getchar(); c != 'x' {
		t.Fatalf("Getchar() = %q, want 'x'", c)
	}
	s.Schedule() // dispatch the now-unblocked writer
	<-wrote

	if c := q.Getchar(); c != 'y' {
		t.Fatalf("Getchar() = %q, want 'y'", c)
	}
}

// TestPutcharPanicsOnSecondWaitingWriter exercises the single
// producer-slot invariant: once one task is parked waiting for room to
// write, a second task trying to do the same is a contract violation,
// not a case to queue behind.
func TestPutcharPanicsOnSecondWaitingWriter(t *testing.T) {
	s := newTestScheduler(t)
	q := New(s, 1)
	q.Putchar('x') // fills the only slot

	s.ThreadStart("writer1", 5, func(any) {
		q.Putchar('a') // blocks: becomes the one waiting producer
	}, nil)

	paniced := make(chan struct{})
	s.ThreadStart("writer2", 5, func(any) {
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic: a second task tried to wait to write")
			}
			close(paniced)
		}()
		q.Putchar('b')
	}, nil)

	s.Schedule() // writer1 runs, blocks as the sole waiting producer
	s.Schedule() // writer2 runs, finds a producer already waiting, panics

	select {
	case <-paniced:
	case <-time.After(time.Second):
		t.Fatalf("writer2 never panicked")
	}
}

// TestGetcharPanicsOnSecondWaitingReader is the consumer-side mirror of
// TestPutcharPanicsOnSecondWaitingWriter.
func TestGetcharPanicsOnSecondWaitingReader(t *testing.T) {
	s := newTestScheduler(t)
	q := New(s, 1)

	s.ThreadStart("reader1", 5, func(any) {
		q.Getchar() // blocks: becomes the one waiting consumer
	}, nil)

	paniced := make(chan struct{})
	s.ThreadStart("reader2", 5, func(any) {
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic: a second task tried to wait to read")
			}
			close(paniced)
		}()
		q.Getchar()
	}, nil)

	s.Schedule() // reader1 runs, blocks as the sole waiting consumer
	s.Schedule() // reader2 runs, finds a consumer already waiting, panics

	select {
	case <-paniced:
	case <-time.After(time.Second):
		t.Fatalf("reader2 never panicked")
	}
}
