package kdb

import (
	"strings"
	"testing"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/ksync"
	"github.com/rcornwell/minikernel32/internal/sched"
	"github.com/rcornwell/minikernel32/internal/timer"
	"github.com/rcornwell/minikernel32/internal/vmm"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()
	tm := timer.New(s, timer.DefaultInterval)
	t.Cleanup(tm.Shutdown)
	return New(s, tm)
}

func TestProcessDispatchesKnownCommand(t *testing.T) {
	m := newTestMonitor(t)
	quit, err := m.process("ps")
	if err != nil {
		t.Fatalf("process(ps): %v", err)
	}
	if quit {
		t.Fatalf("ps should not request quit")
	}
}

func TestProcessRejectsUnknownCommand(t *testing.T) {
	m := newTestMonitor(t)
	_, err := m.process("frobnicate")
	if err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestProcessEmptyLineIsNoop(t *testing.T) {
	m := newTestMonitor(t)
	quit, err := m.process("   ")
	if err != nil || quit {
		t.Fatalf("process(blank) = (%v, %v), want (false, nil)", quit, err)
	}
}

func TestProcessQuitRequestsExit(t *testing.T) {
	m := newTestMonitor(t)
	quit, err := m.process("quit")
	if err != nil || !quit {
		t.Fatalf("process(quit) = (%v, %v), want (true, nil)", quit, err)
	}
}

func TestMemDumpsBackedAddress(t *testing.T) {
	vmm.SetTotalRAM(4096)
	vmm.WriteByte(0, 0x41)
	m := newTestMonitor(t)
	quit, err := m.process("mem 0x0 16")
	if err != nil {
		t.Fatalf("process(mem): %v", err)
	}
	if quit {
		t.Fatalf("mem should not request quit")
	}
}

func TestMemRejectsUnbackedAddress(t *testing.T) {
	vmm.SetTotalRAM(16)
	m := newTestMonitor(t)
	_, err := m.process("mem 0xffff 16")
	if err == nil {
		t.Fatalf("expected an error for an address beyond RAM")
	}
	if !strings.Contains(err.Error(), "not backed") {
		t.Fatalf("error = %v, want mention of unbacked RAM", err)
	}
}

func TestFreeReportsPoolOccupancy(t *testing.T) {
	vmm.Init(2*1024*1024+8*vmm.PageSize, 0xC0000000, 16)
	m := newTestMonitor(t)
	quit, err := m.process("free")
	if err != nil {
		t.Fatalf("process(free): %v", err)
	}
	if quit {
		t.Fatalf("free should not request quit")
	}
}

func TestSemaReportsRegisteredValue(t *testing.T) {
	m := newTestMonitor(t)
	sem := ksync.NewSemaphore(m.sched, 2)
	ksync.RegisterSemaphore("kdb-test.sem", sem)

	quit, err := m.process("sema kdb-test.sem")
	if err != nil {
		t.Fatalf("process(sema): %v", err)
	}
	if quit {
		t.Fatalf("sema should not request quit")
	}
}

func TestSemaRejectsUnknownName(t *testing.T) {
	m := newTestMonitor(t)
	if _, err := m.process("sema no-such-semaphore"); err == nil {
		t.Fatalf("expected an error for an unregistered semaphore name")
	}
}

func TestSleepBlocksForAtLeastDuration(t *testing.T) {
	m := newTestMonitor(t)
	m.timer.Start()

	start := m.timer.Ticks()
	if _, err := m.process("sleep 5"); err != nil {
		t.Fatalf("process(sleep): %v", err)
	}
	if elapsed := m.timer.Ticks() - start; elapsed < 5 {
		t.Fatalf("sleep returned after only %d ticks, want >= 5", elapsed)
	}
}

func TestSleepRejectsBadDuration(t *testing.T) {
	m := newTestMonitor(t)
	if _, err := m.process("sleep notanumber"); err == nil {
		t.Fatalf("expected an error for a non-numeric duration")
	}
}

func TestPanicCommandPanics(t *testing.T) {
	m := newTestMonitor(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected the panic command to panic")
		}
	}()
	m.process("panic")
}

func TestCompleteFiltersByPrefix(t *testing.T) {
	m := newTestMonitor(t)
	got := m.complete("q")
	if len(got) != 1 || got[0] != "quit" {
		t.Fatalf("complete(q) = %v, want [quit]", got)
	}
}
