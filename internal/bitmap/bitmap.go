/*
 * minikernel32 - Fixed-length bitmap over page-sized bit arrays.
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

// Package bitmap implements the one-bit-per-frame allocation bitmap used
// by the physical and virtual page pools. Callers hold whatever lock
// guards the pool; Bitmap itself does no locking.
package bitmap

// Bitmap is a byte-backed array of bits, one per trackable unit (a page
// frame or a virtual page, depending on the owning pool).
type Bitmap struct {
	bits []byte
	n    int // number of usable bits
}

// New allocates a bitmap able to track n bits, all initially clear.
func New(n int) *Bitmap {
	b := &Bitmap{
		bits: make([]byte, (n+7)/8),
		n:    n,
	}
	return b
}

// Len returns the number of bits tracked.
func (b *Bitmap) Len() int {
	return b.n
}

// Init clears every bit.
func (b *Bitmap) Init() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Get returns the value of bit i.
func (b *Bitmap) Get(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.bits[i>>3]&(1<<uint(i&7)) != 0
}

// Set assigns bit i to v.
func (b *Bitmap) Set(i int, v bool) {
	if i < 0 || i >= b.n {
		return
	}
	if v {
		b.bits[i>>3] |= 1 << uint(i&7)
	} else {
		b.bits[i>>3] &^= 1 << uint(i&7)
	}
}

// Alloc finds the first run of n consecutive clear bits, sets none of
// them (the caller sets bits it actually consumes), and returns the
// index of the run's first bit, or -1 if no such run exists.
//
// The search scans byte-by-byte for the first byte that is not 0xff,
// then walks bit-by-bit from there looking for the start of a run long
// enough to hold n bits, rather than doing a naive bit-by-bit scan of
// the whole map.
func (b *Bitmap) Alloc(n int) int {
	if n <= 0 || n > b.n {
		return -1
	}

	run := 0
	start := -1
	for i := 0; i < b.n; i++ {
		// Fast-forward over whole full bytes when not mid-run.
		if run == 0 && i&7 == 0 && i+8 <= b.n && b.bits[i>>3] == 0xff {
			i += 7
			continue
		}
		if b.Get(i) {
			run = 0
			start = -1
			continue
		}
		if start < 0 {
			start = i
		}
		run++
		if run == n {
			return start
		}
	}
	return -1
}

// Snapshot returns a copy of the underlying bits, for before/after
// round-trip comparisons in tests.
func (b *Bitmap) Snapshot() []byte {
	cp := make([]byte, len(b.bits))
	copy(cp, b.bits)
	return cp
}

// Equal reports whether a snapshot matches the bitmap's current state.
func (b *Bitmap) Equal(snapshot []byte) bool {
	if len(snapshot) != len(b.bits) {
		return false
	}
	for i := range b.bits {
		if b.bits[i] != snapshot[i] {
			return false
		}
	}
	return true
}
