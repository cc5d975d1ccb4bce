package ide

import (
	"bytes"
	"testing"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
)

func newTestChannel(t *testing.T, base uint16, irq int) (*sched.Scheduler, *Channel) {
	t.Helper()
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()
	c := NewChannel(s, base, irq)
	c.AttachDrive(0, NewDisk(2048))
	return s, c
}

// TestReadBackRoundTrip writes a distinctive pattern to sector 1000,
// reads it back into a different buffer, and compares.
func TestReadBackRoundTrip(t *testing.T) {
	_, c := newTestChannel(t, 0x1F0, 14)

	want := bytes.Repeat([]byte{0x55}, sectorSize)
	if err := c.WriteSectors(0, 1000, want); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}

	got, err := c.ReadSectors(0, 1000, 1)
	if err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read-back mismatch: got %x, want %x", got[:16], want[:16])
	}
}

func TestReadSectorsSpanningMultipleSectors(t *testing.T) {
	_, c := newTestChannel(t, 0x1F0, 14)

	data := make([]byte, sectorSize*3)
	for i := range data {
		data[i] = byte(i)
	}
	if err := c.WriteSectors(0, 0, data); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}
	got, err := c.ReadSectors(0, 0, 3)
	if err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("multi-sector read-back mismatch")
	}
}

func TestLBABeyondDebugCapRejected(t *testing.T) {
	_, c := newTestChannel(t, 0x1F0, 14)
	_, err := c.ReadSectors(0, MaxLBA+1, 1)
	if err == nil {
		t.Fatalf("expected error reading past the debug LBA cap")
	}
}

func TestSpuriousInterruptIgnoredWhenNotExpecting(t *testing.T) {
	_, c := newTestChannel(t, 0x170, 15)
	// No command in flight: expecting_intr is false, so raising the
	// channel's IRQ must not post the disk-done semaphore.
	before := c.diskDone.Value()
	intr.Raise(15)
	if c.diskDone.Value() != before {
		t.Fatalf("spurious interrupt altered disk_done semaphore")
	}
}
