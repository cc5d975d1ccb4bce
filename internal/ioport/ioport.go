/*
 * minikernel32 - Simulated x86 port I/O address space.
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

// Package ioport models the IA-32 I/O address space.
// `in`/`out`/`insw`/`outsw` have no inline-assembly equivalent in Go;
// here they address a flat byte array sized to cover the legacy ports
// this kernel core actually uses (PIC, PIT, IDE0/IDE1) and every
// device driver (internal/timer, internal/ide) installs a Handler for
// the ports it owns, so a write is dispatched to the owning device the
// same way real port I/O reaches a chip on the ISA bus.
package ioport

import "sync"

// Handler receives port reads/writes for a registered range.
type Handler interface {
	In(port uint16) uint8
	Out(port uint16, value uint8)
}

type space struct {
	mu       sync.Mutex
	handlers map[uint16]Handler
}

var s = &space{handlers: make(map[uint16]Handler)}

// Register installs h as the handler for a contiguous port range
// [base, base+count).
func Register(base uint16, count int, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := base; p < base+uint16(count); p++ {
		s.handlers[p] = h
	}
}

// Unregister removes any handler installed for [base, base+count).
func Unregister(base uint16, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := base; p < base+uint16(count); p++ {
		delete(s.handlers, p)
	}
}

func handlerFor(port uint16) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[port]
}

// In reads a single byte from port. An unmapped port reads as 0xff,
// the conventional floating-bus value on real hardware.
func In(port uint16) uint8 {
	h := handlerFor(port)
	if h == nil {
		return 0xff
	}
	return h.In(port)
}

// Out writes a single byte to port. A write to an unmapped port is
// dropped.
func Out(port uint16, value uint8) {
	if h := handlerFor(port); h != nil {
		h.Out(port, value)
	}
}

// Insw reads count 16-bit little-endian words from port into buf,
// which must be at least 2*count bytes.
func Insw(port uint16, buf []byte, count int) {
	for i := 0; i < count; i++ {
		lo := In(port)
		hi := In(port)
		buf[2*i] = lo
		buf[2*i+1] = hi
	}
}

// Outsw writes count 16-bit little-endian words from buf to port.
func Outsw(port uint16, buf []byte, count int) {
	for i := 0; i < count; i++ {
		Out(port, buf[2*i])
		Out(port, buf[2*i+1])
	}
}
