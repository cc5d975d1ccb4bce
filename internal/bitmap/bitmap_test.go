package bitmap

import "testing"

func TestAllocFindsFirstRun(t *testing.T) {
	b := New(32)
	for i := 0; i < 10; i++ {
		b.Set(i, true)
	}
	i := b.Alloc(4)
	if i != 10 {
		t.Fatalf("Alloc(4) = %d, want 10", i)
	}
}

func TestAllocAcrossByteBoundary(t *testing.T) {
	b := New(32)
	for i := 0; i < 32; i++ {
		b.Set(i, true)
	}
	for i := 6; i < 12; i++ {
		b.Set(i, false)
	}
	i := b.Alloc(6)
	if i != 6 {
		t.Fatalf("Alloc(6) = %d, want 6", i)
	}
}

func TestAllocFailsWhenNoRun(t *testing.T) {
	b := New(16)
	for i := 0; i < 16; i += 2 {
		b.Set(i, true)
	}
	if i := b.Alloc(2); i != -1 {
		t.Fatalf("Alloc(2) = %d, want -1", i)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New(64)
	snap := b.Snapshot()
	i := b.Alloc(8)
	for k := i; k < i+8; k++ {
		b.Set(k, true)
	}
	if b.Equal(snap) {
		t.Fatalf("expected bitmap to differ from snapshot after alloc")
	}
	for k := i; k < i+8; k++ {
		b.Set(k, false)
	}
	if !b.Equal(snap) {
		t.Fatalf("expected bitmap to return to snapshot after free")
	}
}

func TestGetSetOutOfRange(t *testing.T) {
	b := New(8)
	b.Set(100, true) // must not panic
	if b.Get(100) {
		t.Fatalf("Get out of range should report false")
	}
}
