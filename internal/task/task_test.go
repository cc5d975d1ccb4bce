package task

import (
	"testing"

	"github.com/rcornwell/minikernel32/internal/vmm"
)

func TestNewHasReadyStatusAndFullQuantum(t *testing.T) {
	tsk := New("probe", 7, nil, nil)
	if tsk.Status != Ready {
		t.Fatalf("new task status = %v, want READY", tsk.Status)
	}
	if tsk.Ticks != 7 {
		t.Fatalf("new task ticks = %d, want priority 7", tsk.Ticks)
	}
	if !tsk.CheckCanary() {
		t.Fatalf("new task canary should be intact")
	}
}

func TestDistinctTasksGetDistinctPIDs(t *testing.T) {
	a := New("a", 1, nil, nil)
	b := New("b", 1, nil, nil)
	if a.PID == b.PID {
		t.Fatalf("expected distinct PIDs, both got %d", a.PID)
	}
}

func TestResetQuantumRestoresPriority(t *testing.T) {
	tsk := New("probe", 12, nil, nil)
	tsk.Ticks = 0
	tsk.ResetQuantum()
	if tsk.Ticks != 12 {
		t.Fatalf("Ticks after ResetQuantum = %d, want 12", tsk.Ticks)
	}
}

func TestCanaryDetectsCorruption(t *testing.T) {
	tsk := New("probe", 1, nil, nil)
	tsk.Canary = 0xdeadbeef
	if tsk.CheckCanary() {
		t.Fatalf("expected CheckCanary to fail on a corrupted canary")
	}
}

func TestResumeWaitForResumeHandoff(t *testing.T) {
	tsk := New("probe", 1, nil, nil)
	done := make(chan struct{})
	go func() {
		tsk.WaitForResume()
		close(done)
	}()
	tsk.Resume()
	<-done
}

func TestMarkDoneIsIdempotentAndObservable(t *testing.T) {
	tsk := New("probe", 1, nil, nil)
	tsk.MarkDone()
	tsk.MarkDone() // must not panic on double-close

	select {
	case <-tsk.Done():
	default:
		t.Fatalf("Done channel should already be closed")
	}
}

func TestForkOfKernelTaskErrors(t *testing.T) {
	parent := New("kernel-probe", 1, nil, nil)
	if _, err := Fork(parent, "child"); err != ErrForkKernelTask {
		t.Fatalf("Fork of a task with no PgDir/UserVM = %v, want ErrForkKernelTask", err)
	}
}

func TestForkDuplicatesAddressSpaceAndDataBytes(t *testing.T) {
	vmm.Init(4*1024*1024, 0xC0000000, 1024)

	parent := New("parent", 5, nil, "argv")
	parent.PgDir = vmm.NewUserDirectory()
	parent.UserVM = vmm.NewVPool(0x08000000, 16)

	vaddr, err := vmm.GetUserPages(parent.PgDir, parent.UserVM, 1)
	if err != nil {
		t.Fatalf("GetUserPages: %v", err)
	}
	if !vmm.WriteVirt(parent.PgDir, vaddr, 0x42) {
		t.Fatalf("WriteVirt into parent's fresh page failed")
	}

	child, err := Fork(parent, "child")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.ParentPID != parent.PID {
		t.Fatalf("child ParentPID = %d, want %d", child.ParentPID, parent.PID)
	}
	if child.Status != Ready {
		t.Fatalf("child status = %v, want READY", child.Status)
	}

	b, ok := vmm.ReadVirt(child.PgDir, vaddr)
	if !ok || b != 0x42 {
		t.Fatalf("child byte at vaddr = %v,%v want 0x42,true", b, ok)
	}

	if !vmm.WriteVirt(parent.PgDir, vaddr, 0x99) {
		t.Fatalf("WriteVirt into parent after fork failed")
	}
	b, ok = vmm.ReadVirt(child.PgDir, vaddr)
	if !ok || b != 0x42 {
		t.Fatalf("child page should be a private copy, got %v,%v want 0x42,true", b, ok)
	}
}

func TestStatusStringCoversAllStates(t *testing.T) {
	cases := map[Status]string{
		Ready:   "READY",
		Running: "RUNNING",
		Blocked: "BLOCKED",
		Waiting: "WAITING",
		Hanging: "HANGING",
		Died:    "DIED",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
