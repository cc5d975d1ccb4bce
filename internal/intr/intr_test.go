package intr

import "testing"

func TestEnableDisableRoundTrip(t *testing.T) {
	Reset()
	Enable()
	old := Disable()
	if !old {
		t.Fatalf("Disable should report previous state true")
	}
	if Get() {
		t.Fatalf("Get should report false after Disable")
	}
	SetState(old)
	if !Get() {
		t.Fatalf("SetState(true) should restore enabled state")
	}
}

func TestRaiseInvokesHandler(t *testing.T) {
	Reset()
	var got int = -1
	RegisterHandler(VectorIRQBase+IRQTimer, func(vector int) { got = vector })
	Raise(IRQTimer)
	if got != VectorIRQBase+IRQTimer {
		t.Fatalf("handler got vector %#x, want %#x", got, VectorIRQBase+IRQTimer)
	}
}

func TestRaiseMaskedIRQIgnored(t *testing.T) {
	Reset()
	MaskIRQ(IRQAta0)
	called := false
	RegisterHandler(VectorIRQBase+IRQAta0, func(int) { called = true })
	Raise(IRQAta0)
	if called {
		t.Fatalf("masked IRQ should not reach its handler")
	}
	UnmaskIRQ(IRQAta0)
	Raise(IRQAta0)
	if !called {
		t.Fatalf("unmasked IRQ should reach its handler")
	}
}

func TestSpuriousIRQ7Ignored(t *testing.T) {
	Reset()
	UnmaskIRQ(7)
	// No handler registered for vector 0x27; must not panic or warn-crash.
	Raise(7)
}
