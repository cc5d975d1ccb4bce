/*
 * minikernel32 - Page directory / page table structures.
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

package vmm

import "sync"

const (
	pdeCount  = 1024
	pteCount  = 1024
	kernelPDE = 0xC0000000 >> 22 // first PDE index of the shared kernel range
)

type pte struct {
	frame   uint32
	present bool
}

// pageTable has its own lock, not its owning Directory's, since a
// kernel-range table is aliased into every Directory that exists and
// entries/live/frame must stay consistent no matter which directory's
// call reaches it. frame is the physical frame backing this table
// itself (drawn from the kernel pool, like any other page-table
// structure); live counts present entries so the table can be freed
// back to that pool the moment it empties.
type pageTable struct {
	mu      sync.Mutex
	entries [pteCount]pte
	frame   uint32
	live    int
}

// Directory is a two-level page directory. Real IA-32 code typically
// needs a self-mapping recursive last-PDE trick so its own PDE/PTEs are
// reachable at a fixed virtual address while editing them; that trick
// exists purely to let code edit its own page tables without a second
// address space to do it from. A Go process has no such problem - it
// can simply hold a pointer to the table it wants to edit - so
// Directory instead keeps a flat, directly-addressable struct, and
// shares the upper kernelPDE..pdeCount-1 entries across every directory
// by aliasing the same *pageTable pointers, giving every directory the
// same kernel range without the recursive-mapping machinery.
type Directory struct {
	mu     sync.Mutex
	tables [pdeCount]*pageTable
}

var kernelDir = &Directory{}

// allDirs tracks every directory ever created, so a kernel PDE brought
// into existence after a task's directory was created can still be
// published into it - the non-recursive-mapping alternative to a
// hardware recursive self-map.
var (
	allDirsMu sync.Mutex
	allDirs   []*Directory
)

// KernelDirectory returns the shared kernel directory; kernel tasks
// use this directly.
func KernelDirectory() *Directory { return kernelDir }

// ResetKernelDirectory discards every kernel page table and the
// directory registry. Exists for test isolation between independent
// Init calls; production boot never needs to call it.
func ResetKernelDirectory() {
	kernelDir = &Directory{}
	allDirsMu.Lock()
	allDirs = nil
	allDirsMu.Unlock()
}

// NewUserDirectory returns a directory whose kernel-range PDEs alias
// the kernel directory's tables, and whose user-range PDEs start empty.
// It is registered so future kernel PDEs are published into it too.
func NewUserDirectory() *Directory {
	d := &Directory{}
	kernelDir.mu.Lock()
	copy(d.tables[kernelPDE:], kernelDir.tables[kernelPDE:])
	kernelDir.mu.Unlock()

	allDirsMu.Lock()
	allDirs = append(allDirs, d)
	allDirsMu.Unlock()
	return d
}

func split(vaddr uint32) (pdeIdx, pteIdx int) {
	return int(vaddr >> 22), int((vaddr >> 12) & 0x3ff)
}

// lookup returns the PTE at vaddr and whether its page table exists.
func (d *Directory) lookup(vaddr uint32) (pte, bool) {
	pdeIdx, pteIdx := split(vaddr)
	d.mu.Lock()
	t := d.tables[pdeIdx]
	d.mu.Unlock()
	if t == nil {
		return pte{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[pteIdx], true
}

// kernelPDEMu serializes creation of a shared kernel page table so its
// publication to every live directory never races with another
// directory creating the very same table concurrently.
var kernelPDEMu sync.Mutex

// ensureTable returns the page table for vaddr's PDE, allocating a
// fresh kernel frame to back it (via allocPDEFrame) if missing.
// Returns false if frame allocation fails.
func (d *Directory) ensureTable(vaddr uint32, allocPDEFrame func() (uint32, error)) (*pageTable, bool) {
	pdeIdx, _ := split(vaddr)

	if pdeIdx >= kernelPDE {
		return d.ensureKernelTable(pdeIdx, allocPDEFrame)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tables[pdeIdx] != nil {
		return d.tables[pdeIdx], true
	}
	frame, err := allocPDEFrame()
	if err != nil {
		return nil, false
	}
	t := &pageTable{frame: frame}
	d.tables[pdeIdx] = t
	return t, true
}

// ensureKernelTable creates (if needed) and publishes a kernel-range
// page table into every directory that currently exists, satisfying
// the shared-kernel-range invariant without a hardware recursive
// self-map.
func (d *Directory) ensureKernelTable(pdeIdx int, allocPDEFrame func() (uint32, error)) (*pageTable, bool) {
	kernelPDEMu.Lock()
	defer kernelPDEMu.Unlock()

	if t := kernelDir.tables[pdeIdx]; t != nil {
		d.tables[pdeIdx] = t
		return t, true
	}
	frame, err := allocPDEFrame()
	if err != nil {
		return nil, false
	}
	t := &pageTable{frame: frame}
	kernelDir.tables[pdeIdx] = t

	allDirsMu.Lock()
	for _, other := range allDirs {
		other.tables[pdeIdx] = t
	}
	allDirsMu.Unlock()
	d.tables[pdeIdx] = t
	return t, true
}

// setPTE installs a present mapping to frame at vaddr. Returns false
// (double-map) if a present mapping already exists there.
func (d *Directory) setPTE(vaddr, frame uint32) bool {
	pdeIdx, pteIdx := split(vaddr)
	d.mu.Lock()
	t := d.tables[pdeIdx]
	d.mu.Unlock()
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[pteIdx].present {
		return false
	}
	t.entries[pteIdx] = pte{frame: frame, present: true}
	t.live++
	return true
}

// clearPTE marks vaddr's mapping not-present and returns the frame
// that was mapped, or ok=false if nothing was mapped. Once a table's
// last present entry clears, the table itself is torn down and its own
// backing frame returned to the kernel pool, so a malloc/free cycle
// that is the sole user of a PDE leaves no frame behind - ensureTable
// recreates the table from scratch the next time something maps into
// that PDE range.
func (d *Directory) clearPTE(vaddr uint32) (uint32, bool) {
	pdeIdx, pteIdx := split(vaddr)
	d.mu.Lock()
	t := d.tables[pdeIdx]
	d.mu.Unlock()
	if t == nil {
		return 0, false
	}

	t.mu.Lock()
	e := t.entries[pteIdx]
	if !e.present {
		t.mu.Unlock()
		return 0, false
	}
	t.entries[pteIdx] = pte{}
	t.live--
	empty := t.live == 0
	tableFrame := t.frame
	t.mu.Unlock()

	if empty {
		d.teardownTable(pdeIdx, t)
		kernelPool.FreeFrame(tableFrame)
	}
	return e.frame, true
}

// teardownTable unlinks an emptied table from wherever it is
// referenced: a user-range table only from d, a kernel-range table
// from kernelDir and every directory in allDirs, since
// ensureKernelTable published the same pointer into all of them.
func (d *Directory) teardownTable(pdeIdx int, t *pageTable) {
	if pdeIdx < kernelPDE {
		d.mu.Lock()
		if d.tables[pdeIdx] == t {
			d.tables[pdeIdx] = nil
		}
		d.mu.Unlock()
		return
	}

	kernelPDEMu.Lock()
	if kernelDir.tables[pdeIdx] == t {
		kernelDir.tables[pdeIdx] = nil
	}
	allDirsMu.Lock()
	for _, other := range allDirs {
		if other.tables[pdeIdx] == t {
			other.tables[pdeIdx] = nil
		}
	}
	allDirsMu.Unlock()
	kernelPDEMu.Unlock()
}
