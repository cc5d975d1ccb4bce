/*
 * minikernel32 - malloc_page/get_a_page/addr_v2p/mfree_page.
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

// Flag selects which physical/virtual pool an allocation draws from.
type Flag int

const (
	KernelFlag Flag = iota
	UserFlag
)

var (
	initMu     sync.Mutex
	kernelPool *Pool
	userPool   *Pool
	kernelVM   *VPool
)

// Init carves total RAM into the kernel and user physical pools and
// creates the kernel virtual pool: the kernel
// reserves the low 1 MiB plus 256 pages of page tables, and the
// remaining frames are split evenly between the kernel and user pools.
func Init(totalBytes uint32, kernelVMBase uint32, kernelVMPages int) {
	initMu.Lock()
	defer initMu.Unlock()

	SetTotalRAM(totalBytes)
	ResetKernelDirectory()

	const reserved = (1024 * 1024) + 256*PageSize
	usable := totalBytes
	if usable > reserved {
		usable -= reserved
	} else {
		usable = 0
	}
	totalFrames := int(usable / PageSize)
	kframes := totalFrames / 2
	uframes := totalFrames - kframes

	kernelPool = NewPool(reserved, kframes)
	userPool = NewPool(reserved+uint32(kframes)*PageSize, uframes)
	kernelVM = NewVPool(kernelVMBase, kernelVMPages)
}

func poolFor(flag Flag) *Pool {
	if flag == KernelFlag {
		return kernelPool
	}
	return userPool
}

// KernelPool/UserPool/KernelVPool expose the package-level pools for
// tests, the interactive monitor's "free" command, and internal/heap.
func KernelPool() *Pool   { return kernelPool }
func UserPool() *Pool     { return userPool }
func KernelVPool() *VPool { return kernelVM }

// allocPDEFrame draws one zeroed frame from the kernel pool to back a
// freshly-created page table.
func allocPDEFrame() (uint32, error) {
	frame, err := kernelPool.AllocFrame()
	if err != nil {
		return 0, err
	}
	zeroFrame(frame)
	return frame, nil
}

// MallocPage composes three steps: reserve n
// virtual pages, allocate n physical frames one at a time, and install
// a PTE for each (creating a page table on demand). Any failure rolls
// back everything this call has done so far - freed frames, cleared
// PTEs, released virtual range - before returning ErrOOM.
func MallocPage(flag Flag, dir *Directory, vpool *VPool, n int) (uint32, error) {
	vaddr, err := vpool.Reserve(n)
	if err != nil {
		return 0, err
	}

	frames := make([]uint32, 0, n)
	rollback := func() {
		for _, f := range frames {
			poolFor(flag).FreeFrame(f)
		}
		for i := 0; i < len(frames); i++ {
			dir.clearPTE(vaddr + uint32(i)*PageSize)
		}
		vpool.Release(vaddr, n)
	}

	for i := 0; i < n; i++ {
		frame, ferr := poolFor(flag).AllocFrame()
		if ferr != nil {
			rollback()
			return 0, ErrOOM
		}
		frames = append(frames, frame)

		page := vaddr + uint32(i)*PageSize
		if _, ok := dir.ensureTable(page, allocPDEFrame); !ok {
			rollback()
			return 0, ErrOOM
		}
		if !dir.setPTE(page, frame) {
			rollback()
			return 0, ErrOOM
		}
	}
	return vaddr, nil
}

// GetKernelPages allocates n zeroed pages from the kernel pools.
func GetKernelPages(n int) (uint32, error) {
	vaddr, err := MallocPage(KernelFlag, kernelDir, kernelVM, n)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		zeroPageAt(kernelDir, vaddr+uint32(i)*PageSize)
	}
	return vaddr, nil
}

// GetUserPages allocates n zeroed pages for a user task's own directory
// and virtual pool.
func GetUserPages(dir *Directory, vpool *VPool, n int) (uint32, error) {
	vaddr, err := MallocPage(UserFlag, dir, vpool, n)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		zeroPageAt(dir, vaddr+uint32(i)*PageSize)
	}
	return vaddr, nil
}

func zeroPageAt(dir *Directory, vaddr uint32) {
	phys, ok := AddrV2P(dir, vaddr)
	if ok {
		zeroFrame(phys)
	}
}

// GetAPage maps one physical frame at a caller-chosen virtual address
// vaddr, setting the bit in vpool.
func GetAPage(flag Flag, dir *Directory, vpool *VPool, vaddr uint32) error {
	frame, err := poolFor(flag).AllocFrame()
	if err != nil {
		return ErrOOM
	}
	if _, ok := dir.ensureTable(vaddr, allocPDEFrame); !ok {
		poolFor(flag).FreeFrame(frame)
		return ErrOOM
	}
	if !dir.setPTE(vaddr, frame) {
		poolFor(flag).FreeFrame(frame)
		return ErrOOM
	}
	vpool.SetBit(vaddr, true)
	zeroFrame(frame)
	return nil
}

// GetAPageWithoutVBitmap is the fork variant: the caller has already
// copied the virtual bitmap, so this only maps the PTE.
func GetAPageWithoutVBitmap(flag Flag, dir *Directory, vaddr uint32) error {
	frame, err := poolFor(flag).AllocFrame()
	if err != nil {
		return ErrOOM
	}
	if _, ok := dir.ensureTable(vaddr, allocPDEFrame); !ok {
		poolFor(flag).FreeFrame(frame)
		return ErrOOM
	}
	if !dir.setPTE(vaddr, frame) {
		poolFor(flag).FreeFrame(frame)
		return ErrOOM
	}
	zeroFrame(frame)
	return nil
}

// AddrV2P resolves a mapped virtual address to its physical address,
// composing the frame base with the low-12 offset.
func AddrV2P(dir *Directory, vaddr uint32) (uint32, bool) {
	e, ok := dir.lookup(vaddr)
	if !ok || !e.present {
		return 0, false
	}
	return e.frame + (vaddr & 0xfff), true
}

// MfreePage inverts MallocPage: for each of n pages it frees the
// backing frame, clears the PTE, and releases the virtual range.
// TLB invalidation has no meaning for a simulated store with no cache,
// so it is a documented no-op.
func MfreePage(flag Flag, dir *Directory, vpool *VPool, vaddr uint32, n int) {
	for i := 0; i < n; i++ {
		page := vaddr + uint32(i)*PageSize
		if frame, ok := dir.clearPTE(page); ok {
			poolFor(flag).FreeFrame(frame)
		}
		// invlpg(page) would go here on real hardware.
	}
	vpool.Release(vaddr, n)
}
