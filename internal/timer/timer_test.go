package timer

import (
	"testing"
	"time"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
)

func TestTimerDeliversPulsesOnlyWhileRunning(t *testing.T) {
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()

	tm := New(s, time.Millisecond)
	defer tm.Shutdown()

	time.Sleep(20 * time.Millisecond)
	if tm.Ticks() != 0 {
		t.Fatalf("Ticks() = %d before Start, want 0", tm.Ticks())
	}

	tm.Start()
	time.Sleep(30 * time.Millisecond)
	tm.Stop()
	got := tm.Ticks()
	if got == 0 {
		t.Fatalf("expected at least one pulse after Start")
	}

	time.Sleep(20 * time.Millisecond)
	if tm.Ticks() != got {
		t.Fatalf("Ticks() changed after Stop: %d -> %d", got, tm.Ticks())
	}
}

func TestTimerTicksDecrementCurrentTaskQuantum(t *testing.T) {
	intr.Reset()
	s := sched.New()
	main := s.MakeMainThread()
	s.StartIdle()
	main.Ticks = 5

	tm := New(s, time.Millisecond)
	defer tm.Shutdown()

	tm.Start()
	time.Sleep(50 * time.Millisecond)
	tm.Stop()

	if main.Ticks >= 5 {
		t.Fatalf("running task's quantum should have been decremented by ticks, got %d", main.Ticks)
	}
}

func TestMtimeSleepBlocksUntilTicksAdvance(t *testing.T) {
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()

	tm := New(s, time.Millisecond)
	defer tm.Shutdown()
	tm.Start()

	start := tm.Ticks()
	tm.MtimeSleep(20) // called on the adopted main thread; loops over ThreadYield
	if elapsed := tm.Ticks() - start; elapsed < 20 {
		t.Fatalf("MtimeSleep returned after only %d new ticks, want >= 20", elapsed)
	}
}

func TestMtimeSleepNonPositiveIsNoop(t *testing.T) {
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()

	tm := New(s, time.Millisecond)
	defer tm.Shutdown()
	tm.MtimeSleep(0)
	tm.MtimeSleep(-5)
}

func TestShutdownStopsDriverGoroutine(t *testing.T) {
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()

	tm := New(s, time.Millisecond)
	tm.Start()
	time.Sleep(10 * time.Millisecond)
	tm.Shutdown()

	got := tm.Ticks()
	time.Sleep(20 * time.Millisecond)
	if tm.Ticks() != got {
		t.Fatalf("ticks advanced after Shutdown: %d -> %d", got, tm.Ticks())
	}
}
