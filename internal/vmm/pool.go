/*
 * minikernel32 - Physical and virtual page pools.
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

// Package vmm implements the physical/virtual page allocator built on
// internal/bitmap, plus the flat simulated physical store that backs
// every mapped page. There is no way to hand a Go caller a raw pointer
// into an arbitrary simulated physical frame, so memory contents are
// reached by address, through ReadByte/WriteByte rather than pointer
// arithmetic.
package vmm

import (
	"errors"
	"sync"

	"github.com/rcornwell/minikernel32/internal/bitmap"
)

// PageSize is the frame/page size, fixed at 4 KiB.
const PageSize = 4096

// ErrOOM is returned by any allocation step that cannot be satisfied.
var ErrOOM = errors.New("vmm: out of memory")

// Pool is a physical memory pool: a bitmap of frame ownership, a base
// physical address, and a mutex.
type Pool struct {
	mu    sync.Mutex
	bm    *bitmap.Bitmap
	base  uint32
	nframe int
}

// NewPool creates a pool covering nframe frames starting at physical
// address base.
func NewPool(base uint32, nframe int) *Pool {
	return &Pool{bm: bitmap.New(nframe), base: base, nframe: nframe}
}

// AllocFrame reserves and returns the physical address of one free
// frame, or ErrOOM.
func (p *Pool) AllocFrame() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.bm.Alloc(1)
	if i < 0 {
		return 0, ErrOOM
	}
	p.bm.Set(i, true)
	return p.base + uint32(i)*PageSize, nil
}

// FreeFrame releases the frame at physical address addr back to the pool.
func (p *Pool) FreeFrame(addr uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := int((addr - p.base) / PageSize)
	p.bm.Set(i, false)
}

// Free reports how many frames in the pool are currently unallocated,
// for the debug monitor's "free" command.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	free := 0
	for i := 0; i < p.nframe; i++ {
		if !p.bm.Get(i) {
			free++
		}
	}
	return free
}

// Total reports the pool's fixed frame count.
func (p *Pool) Total() int {
	return p.nframe
}

// Owns reports whether addr falls within this pool's frame range.
func (p *Pool) Owns(addr uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if addr < p.base {
		return false
	}
	i := int((addr - p.base) / PageSize)
	return i < p.nframe
}

// FrameBitSet reports the occupancy bit for the frame at addr; an addr
// outside this pool's range reports false. The kernel and user pools
// cover disjoint frame ranges, so a mapped frame's bit is set in at
// most one of them.
func (p *Pool) FrameBitSet(addr uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := int((addr - p.base) / PageSize)
	return p.bm.Get(i)
}

// Snapshot/Equal expose the pool bitmap for before/after round-trip
// tests.
func (p *Pool) Snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bm.Snapshot()
}

func (p *Pool) Equal(snap []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bm.Equal(snap)
}

// VPool is a virtual address pool: a bitmap of reserved virtual pages
// and a starting virtual address.
type VPool struct {
	mu   sync.Mutex
	bm   *bitmap.Bitmap
	base uint32
}

// NewVPool creates a virtual pool covering npage pages starting at
// virtual address base.
func NewVPool(base uint32, npage int) *VPool {
	return &VPool{bm: bitmap.New(npage), base: base}
}

// Reserve finds and marks n contiguous free virtual pages, returning
// the starting virtual address.
func (v *VPool) Reserve(n int) (uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.bm.Alloc(n)
	if i < 0 {
		return 0, ErrOOM
	}
	for k := i; k < i+n; k++ {
		v.bm.Set(k, true)
	}
	return v.base + uint32(i)*PageSize, nil
}

// Release clears n pages of reservation starting at vaddr.
func (v *VPool) Release(vaddr uint32, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := int((vaddr - v.base) / PageSize)
	for k := i; k < i+n; k++ {
		v.bm.Set(k, false)
	}
}

// SetBit marks (or clears) the single virtual page at vaddr, used by
// GetAPage/GetAPageWithoutVBitmap which address one page at a caller-
// chosen virtual address instead of reserving a fresh range.
func (v *VPool) SetBit(vaddr uint32, val bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := int((vaddr - v.base) / PageSize)
	v.bm.Set(i, val)
}

func (v *VPool) Snapshot() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bm.Snapshot()
}

func (v *VPool) Equal(snap []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bm.Equal(snap)
}

// Clone returns a new VPool over the same base address with its bitmap
// copied bit-for-bit from v, used by task.Fork to give a child the same
// reserved virtual range as its parent before the backing pages
// themselves are copied.
func (v *VPool) Clone() *VPool {
	v.mu.Lock()
	defer v.mu.Unlock()
	nv := &VPool{bm: bitmap.New(v.bm.Len()), base: v.base}
	for i := 0; i < v.bm.Len(); i++ {
		nv.bm.Set(i, v.bm.Get(i))
	}
	return nv
}

// EachSet calls fn once, in ascending order, with the virtual address
// of every currently reserved page - used by task.Fork to walk a
// parent's mapped range without holding v's lock across fn.
func (v *VPool) EachSet(fn func(vaddr uint32)) {
	v.mu.Lock()
	var vaddrs []uint32
	for i := 0; i < v.bm.Len(); i++ {
		if v.bm.Get(i) {
			vaddrs = append(vaddrs, v.base+uint32(i)*PageSize)
		}
	}
	v.mu.Unlock()
	for _, a := range vaddrs {
		fn(a)
	}
}
