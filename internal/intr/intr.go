/*
 * minikernel32 - Interrupt controller, IDT and vector dispatch.
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

// Package intr models a 48-vector IDT/handler table, the
// 8259A PIC cascade's masking policy, and the get/enable/disable/set
// primitives that stand in for EFLAGS.IF. There is no register-level
// Go equivalent of cli/sti/iret, so the "interrupt state" here is a
// single mutex-guarded boolean shared by every simulated IRQ source
// (internal/timer's ticker goroutine, internal/ide's completion
// goroutine) and every task; Raise runs the registered handler
// synchronously on the caller's goroutine, modelling a trap on a
// single core.
package intr

import (
	"fmt"
	"log/slog"
	"sync"
)

// NumVectors is the size of the IDT: 32 CPU exceptions/reserved slots
// plus the 16 remapped PIC IRQ vectors 0x20..0x2f.
const NumVectors = 0x30

// IRQ0..IRQ15 map to vectors 0x20..0x2f, the remapped PIC range.
const (
	VectorIRQBase = 0x20
	IRQTimer      = 0 // PIT, vector 0x20
	IRQCascade    = 2 // slave PIC cascade
	IRQAta0       = 14
	IRQAta1       = 15
)

// HandlerFunc is a registered interrupt-service routine.
type HandlerFunc func(vector int)

type controller struct {
	mu       sync.Mutex
	ifFlag   bool // true == interrupts enabled, stands in for EFLAGS.IF
	handlers [NumVectors]HandlerFunc
	masked   [16]bool // PIC IRQ mask, true == masked/disabled
}

var c = newController()

func newController() *controller {
	ctl := &controller{ifFlag: true}
	// Initial PIC mask unmasks only IRQ0 (timer) and IRQ2 (cascade),
	//; everything else waits for a driver to register.
	for i := range ctl.masked {
		ctl.masked[i] = true
	}
	ctl.masked[IRQTimer] = false
	ctl.masked[IRQCascade] = false
	return ctl
}

// Reset restores the controller to its post-boot state. Exists for
// test isolation; production boot never needs to call it twice.
func Reset() {
	c = newController()
}

// RegisterHandler installs fn as the ISR for vector. A nil fn's vector
// falls back to the default handler on the next Raise.
func RegisterHandler(vector int, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[vector] = fn
}

// UnmaskIRQ marks irq as serviceable by the PIC; MaskIRQ the reverse.
func UnmaskIRQ(irq int) { setMask(irq, false) }
func MaskIRQ(irq int)   { setMask(irq, true) }

func setMask(irq int, masked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if irq < 0 || irq >= len(c.masked) {
		return
	}
	c.masked[irq] = masked
}

// IRQMasked reports whether irq is currently masked off.
func IRQMasked(irq int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if irq < 0 || irq >= len(c.masked) {
		return true
	}
	return c.masked[irq]
}

// Raise delivers IRQ irq (vector VectorIRQBase+irq) to its registered
// handler, the way a real ISR stub would after pushing the vector and
// calling intr_handler_table[vec]. A masked or
// unregistered IRQ7/IRQ15 is the documented spurious case and is
// silently ignored; any other unregistered vector logs and is ignored.
func Raise(irq int) {
	if IRQMasked(irq) {
		return
	}
	vector := VectorIRQBase + irq
	c.mu.Lock()
	fn := c.handlers[vector]
	c.mu.Unlock()
	if fn == nil {
		if irq == 7 || irq == 15 {
			return
		}
		slog.Warn(fmt.Sprintf("spurious or unhandled interrupt vector %#x", vector))
		return
	}
	fn(vector)
}

// Get reads the simulated IF flag.
func Get() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ifFlag
}

// Enable sets IF and returns the previous state, mirroring sti.
func Enable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.ifFlag
	c.ifFlag = true
	return old
}

// Disable clears IF and returns the previous state, mirroring cli.
func Disable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.ifFlag
	c.ifFlag = false
	return old
}

// SetState restores a previously saved IF value. A naive port might
// compute "status && INTR_ON" as a boolean-coercion bug; SetState takes
// a bool directly so the only two inputs possible are the two intended
// ones, and applies a direct assignment with no branch to get wrong.
func SetState(state bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ifFlag = state
}
