package heap

import (
	"testing"

	"github.com/rcornwell/minikernel32/internal/vmm"
)

func setupHeap(t *testing.T) *Heap {
	t.Helper()
	vmm.Init(8*1024*1024, 0xC0000000, 4096)
	return New(vmm.KernelFlag, vmm.KernelDirectory(), vmm.KernelVPool())
}

func TestMallocFreeRoundTripAllSizeClasses(t *testing.T) {
	h := setupHeap(t)
	sizes := []int{1, 16, 17, 32, 64, 128, 256, 512, 1024, 1025, 4096, 8192}

	ksnap := vmm.KernelPool().Snapshot()
	vsnap := vmm.KernelVPool().Snapshot()

	for _, size := range sizes {
		p, err := h.Malloc(size)
		if err != nil {
			t.Fatalf("Malloc(%d): %v", size, err)
		}
		if p == 0 {
			t.Fatalf("Malloc(%d) returned nil pointer", size)
		}
		if !vmm.WriteVirt(vmm.KernelDirectory(), p, 0x5A) {
			t.Fatalf("Malloc(%d): returned pointer is not writable", size)
		}
		if err := h.Free(p); err != nil {
			t.Fatalf("Free(%d): %v", size, err)
		}
	}

	if !vmm.KernelPool().Equal(ksnap) {
		t.Fatalf("kernel pool bitmap did not return to pre-test snapshot")
	}
	if !vmm.KernelVPool().Equal(vsnap) {
		t.Fatalf("kernel vpool bitmap did not return to pre-test snapshot")
	}
}

func TestArenaLiveCountInvariant(t *testing.T) {
	h := setupHeap(t)
	desc := &h.descs[0] // 16-byte class
	blocks := desc.blocks

	ptrs := make([]uint32, 0, blocks)
	for i := 0; i < blocks; i++ {
		p, err := h.Malloc(16)
		if err != nil {
			t.Fatalf("Malloc: %v", err)
		}
		ptrs = append(ptrs, p)
	}

	cnt, total, ok := h.ArenaLiveCount(ptrs[0])
	if !ok {
		t.Fatalf("expected arena lookup to succeed")
	}
	if total != blocks {
		t.Fatalf("arena block total = %d, want %d", total, blocks)
	}
	if cnt != 0 {
		t.Fatalf("arena should report zero free slots once every slot is allocated, got %d", cnt)
	}

	for _, p := range ptrs {
		if err := h.Free(p); err != nil {
			t.Fatalf("Free: %v", err)
		}
	}
	_, _, ok = h.ArenaLiveCount(ptrs[0])
	if ok {
		t.Fatalf("arena should have been reclaimed once every slot came back")
	}
}

func TestLargeAllocationBypassesDescriptors(t *testing.T) {
	h := setupHeap(t)
	p, err := h.Malloc(5000)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	if err := h.Free(p); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestFreeUnknownPointerErrors(t *testing.T) {
	h := setupHeap(t)
	if err := h.Free(0xdeadb000); err == nil {
		t.Fatalf("expected error freeing an unknown pointer")
	}
}
