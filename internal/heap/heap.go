/*
 * minikernel32 - Arena/block heap allocator.
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

// Package heap implements sys_malloc/sys_free: seven
// fixed-size block descriptors backed by page-sized arenas, plus a
// large-allocation path that hands oversized requests straight to the
// page allocator. An arena is addressed by its own uint32 vaddr handle
// (mirroring internal/vmm's address-by-handle model) rather than a Go
// pointer, since sys_malloc's "pointer" is itself just a simulated
// virtual address.
package heap

import (
	"errors"
	"sync"

	"github.com/rcornwell/minikernel32/internal/vmm"
)

// ErrOOM mirrors vmm.ErrOOM for callers that only import heap.
var ErrOOM = errors.New("heap: out of memory")

// descSizes are the seven fixed block sizes small allocations round up to.
var descSizes = [7]int{16, 32, 64, 128, 256, 512, 1024}

const headerSize = 16 // arena header reserved at the start of its first page

type blockDesc struct {
	size       int
	blocks     int // slots per page for this size
	freeList   []uint32
	arenaOwner map[uint32]uint32 // block vaddr -> owning arena vaddr
}

type arena struct {
	vaddr uint32
	pages int
	large bool
	descI int // index into descriptors, -1 if large
	cnt   int // slots of this arena currently on its descriptor's free list
}

// Heap is one address space's heap state. The pool (kernel vs user),
// directory and virtual pool it draws pages from are the ones passed
// to New. task.Task carries no Heap field, so no per-task Heap is
// created alongside a TCB.
type Heap struct {
	mu      sync.Mutex
	flag    vmm.Flag
	dir     *vmm.Directory
	vpool   *vmm.VPool
	descs   [7]blockDesc
	arenas  map[uint32]*arena // page-base vaddr -> arena
}

// New creates a Heap drawing pages from the given pool/directory pair.
func New(flag vmm.Flag, dir *vmm.Directory, vpool *vmm.VPool) *Heap {
	h := &Heap{flag: flag, dir: dir, vpool: vpool, arenas: make(map[uint32]*arena)}
	for i, size := range descSizes {
		h.descs[i] = blockDesc{size: size, blocks: (vmm.PageSize - headerSize) / size, arenaOwner: make(map[uint32]uint32)}
	}
	return h
}

func pageBase(vaddr uint32) uint32 {
	return vaddr &^ (vmm.PageSize - 1)
}

// Malloc implements sys_malloc(size): requests over 1024 bytes become
// a large arena sized in whole pages; smaller requests are carved from
// the smallest descriptor whose size is at least as big as requested.
func (h *Heap) Malloc(size int) (uint32, error) {
	if size <= 0 {
		return 0, errors.New("heap: invalid size")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if size > 1024 {
		return h.mallocLarge(size)
	}
	return h.mallocSmall(size)
}

func (h *Heap) mallocLarge(size int) (uint32, error) {
	total := size + headerSize
	pages := (total + vmm.PageSize - 1) / vmm.PageSize

	vaddr, err := vmm.MallocPage(h.flag, h.dir, h.vpool, pages)
	if err != nil {
		return 0, ErrOOM
	}
	h.arenas[vaddr] = &arena{vaddr: vaddr, pages: pages, large: true, descI: -1}
	return vaddr + headerSize, nil
}

func descIndexFor(size int) int {
	for i, s := range descSizes {
		if s >= size {
			return i
		}
	}
	return -1
}

func (h *Heap) mallocSmall(size int) (uint32, error) {
	di := descIndexFor(size)
	if di < 0 {
		return 0, errors.New("heap: size class not found")
	}
	desc := &h.descs[di]

	if len(desc.freeList) == 0 {
		if err := h.growDescriptor(di); err != nil {
			return 0, err
		}
	}

	block := desc.freeList[len(desc.freeList)-1]
	desc.freeList = desc.freeList[:len(desc.freeList)-1]

	owner := desc.arenaOwner[block]
	a := h.arenas[owner]
	a.cnt--
	return block, nil
}

// growDescriptor allocates one page, carves it into desc.blocks slots
// of desc.size bytes, and threads them all onto the descriptor's free
// list.
func (h *Heap) growDescriptor(di int) error {
	desc := &h.descs[di]
	vaddr, err := vmm.MallocPage(h.flag, h.dir, h.vpool, 1)
	if err != nil {
		return ErrOOM
	}
	a := &arena{vaddr: vaddr, pages: 1, large: false, descI: di, cnt: desc.blocks}
	h.arenas[vaddr] = a

	off := vaddr + headerSize
	for i := 0; i < desc.blocks; i++ {
		block := off + uint32(i*desc.size)
		desc.freeList = append(desc.freeList, block)
		desc.arenaOwner[block] = vaddr
	}
	return nil
}

// Free implements sys_free(ptr): the enclosing arena is found by
// masking ptr down to its page base. A large arena's pages go straight
// back to the page allocator; a small arena's block is returned to its
// descriptor's free list, and the arena itself is released once every
// slot it carved has come back.
func (h *Heap) Free(ptr uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	base := pageBase(ptr)
	a, ok := h.arenas[base]
	if !ok {
		return errors.New("heap: free of unknown pointer")
	}

	if a.large {
		vmm.MfreePage(h.flag, h.dir, h.vpool, base, a.pages)
		delete(h.arenas, base)
		return nil
	}

	desc := &h.descs[a.descI]
	desc.freeList = append(desc.freeList, ptr)
	a.cnt++

	if a.cnt == desc.blocks {
		h.reclaimArena(desc, a)
	}
	return nil
}

// reclaimArena detaches every slot belonging to a from desc's free list
// and returns the backing page.
func (h *Heap) reclaimArena(desc *blockDesc, a *arena) {
	kept := desc.freeList[:0]
	for _, block := range desc.freeList {
		if desc.arenaOwner[block] == a.vaddr {
			delete(desc.arenaOwner, block)
			continue
		}
		kept = append(kept, block)
	}
	desc.freeList = kept

	vmm.MfreePage(h.flag, h.dir, h.vpool, a.vaddr, 1)
	delete(h.arenas, a.vaddr)
}

// ArenaLiveCount exposes an arena's counter of slots on the free list
// and its descriptor's slots-per-arena total, for tests: cnt is 0 when
// every slot is allocated and reaches blocks just as the arena is
// reclaimed.
func (h *Heap) ArenaLiveCount(base uint32) (cnt, blocks int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, exists := h.arenas[pageBase(base)]
	if !exists || a.large {
		return 0, 0, false
	}
	return a.cnt, h.descs[a.descI].blocks, true
}
