/*
 * minikernel32 - Flat simulated physical storage.
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

var (
	storeMu sync.RWMutex
	store   []byte
)

// SetTotalRAM sizes the simulated physical store to bytes, analogous
// to the loader recording total RAM at physical 0x0B00.
// Must be called once during boot before any pool is created.
func SetTotalRAM(bytes uint32) {
	storeMu.Lock()
	defer storeMu.Unlock()
	store = make([]byte, bytes)
}

// ReadByte/WriteByte access the simulated physical store directly by
// physical address - there is no Go pointer that can address an
// arbitrary simulated frame, so callers holding a virtual address must
// translate it first via AddrV2P.
func ReadByte(phys uint32) (byte, bool) {
	storeMu.RLock()
	defer storeMu.RUnlock()
	if int(phys) >= len(store) {
		return 0, false
	}
	return store[phys], true
}

func WriteByte(phys uint32, v byte) bool {
	storeMu.Lock()
	defer storeMu.Unlock()
	if int(phys) >= len(store) {
		return false
	}
	store[phys] = v
	return true
}

func zeroFrame(phys uint32) {
	storeMu.Lock()
	defer storeMu.Unlock()
	if int(phys)+PageSize > len(store) {
		return
	}
	clear(store[phys : phys+PageSize])
}

// ReadVirt/WriteVirt translate vaddr through dir before touching the
// store.
func ReadVirt(dir *Directory, vaddr uint32) (byte, bool) {
	phys, ok := AddrV2P(dir, vaddr)
	if !ok {
		return 0, false
	}
	return ReadByte(phys)
}

func WriteVirt(dir *Directory, vaddr uint32, v byte) bool {
	phys, ok := AddrV2P(dir, vaddr)
	if !ok {
		return false
	}
	return WriteByte(phys, v)
}
