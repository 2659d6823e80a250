package pm

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/fs"
	"github.com/me/pmcore/internal/mm"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/vm"
	"github.com/me/pmcore/pkg/model"
)

type readyScheduler struct{}

func (readyScheduler) Sched(p *proc.Process) {
	p.SetState(model.ProcStateReady)
	p.Counter = 0
}

type sent struct {
	pid int
	sig model.Signal
}

type recordingSignaler struct {
	sent []sent
}

func (r *recordingSignaler) Send(p *proc.Process, sig model.Signal) {
	if p != nil {
		r.sent = append(r.sent, sent{p.PID, sig})
	}
}

// faultyVM fails the n-th duplication or the attachment of a given slot.
type faultyVM struct {
	*vm.Manager
	failDupAt    int
	failAttachAt int
	dups         int
}

func (f *faultyVM) DupRegion(r *mm.Region) (*mm.Region, error) {
	f.dups++
	if f.dups == f.failDupAt {
		return nil, errors.New("injected duplication failure")
	}
	return f.Manager.DupRegion(r)
}

func (f *faultyVM) AttachRegion(p *proc.Process, slot int, start uintptr, r *mm.Region) error {
	if slot == f.failAttachAt && p.Flags == model.ProcFlagNew {
		return errors.New("injected attach failure")
	}
	return f.Manager.AttachRegion(p, slot, start, r)
}

type fixture struct {
	tab    *proc.Table
	pool   *mm.Pool
	vmm    *vm.Manager
	sig    *recordingSignaler
	m      *Manager
	parent *proc.Process
	root   *fs.Inode
	file   *fs.File
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a table of four entries with one parent process
// holding a shared text region, private data and stack regions, one open
// file and directory references.
func newFixture(t *testing.T, frames int) *fixture {
	t.Helper()
	f := &fixture{
		tab:  proc.NewTable(4),
		pool: mm.NewPool(frames),
		sig:  &recordingSignaler{},
	}
	f.tab.Boot()
	f.vmm = vm.NewManager(f.pool, discardLogger())
	f.m = NewManager(f.tab, Deps{
		VM:      f.vmm,
		Sched:   readyScheduler{},
		Signals: f.sig,
		Clock:   clock.New(),
	}, discardLogger())

	p, err := f.tab.FindFree()
	if err != nil {
		t.Fatalf("FindFree: %v", err)
	}
	p.Flags = model.ProcFlagValid
	p.PID = f.tab.AllocPID()
	p.Name = "parent"
	p.Priority = proc.PrioUser
	p.Nice = proc.NZero
	p.UID, p.EUID, p.SUID = 100, 100, 100
	p.Handlers[model.SIGUSR1] = proc.SigIgnore
	readyScheduler{}.Sched(p)

	if err := f.vmm.CreateAddressSpace(p); err != nil {
		t.Fatalf("CreateAddressSpace: %v", err)
	}
	f.attach(t, p, proc.TEXT, 0x1000, 2, true)
	f.attach(t, p, proc.DATA, 0x10000, 3, false)
	f.attach(t, p, proc.STACK, 0x80000, 1, false)

	f.root = fs.NewInode(1, "/")
	p.Root = f.root
	p.Pwd = f.root.Dup()
	f.file = fs.Open(fs.NewInode(2, "/dev/tty"), fs.ORdWr)
	p.OFiles[0] = f.file

	f.parent = p
	return f
}

func (f *fixture) attach(t *testing.T, p *proc.Process, slot int, start uintptr, pages int, shared bool) {
	t.Helper()
	r, err := f.vmm.AllocRegion(pages, shared)
	if err != nil {
		t.Fatalf("AllocRegion: %v", err)
	}
	if err := f.vmm.AttachRegion(p, slot, start, r); err != nil {
		t.Fatalf("AttachRegion: %v", err)
	}
}

func regionCounts(p *proc.Process) [proc.NRPRegions]int {
	var out [proc.NRPRegions]int
	for i, preg := range p.PRegs {
		if preg.Reg != nil {
			out[i] = preg.Reg.Count()
		}
	}
	return out
}

func TestManager_Fork(t *testing.T) {
	f := newFixture(t, 64)
	parent := f.parent

	pid, err := f.m.Fork(parent)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	child, ok := f.tab.Lookup(pid)
	if !ok {
		t.Fatalf("child pid %d not in table", pid)
	}

	if pid != 2 {
		t.Errorf("pid = %d, want 2", pid)
	}
	if child.State != model.ProcStateReady || child.Counter != 0 {
		t.Errorf("child state/counter = %v/%d, want READY/0", child.State, child.Counter)
	}
	if child.Flags != model.ProcFlagValid {
		t.Errorf("child Flags = %v, want VALID", child.Flags)
	}
	if child.Father != parent || parent.NChildren != 1 {
		t.Errorf("father/nchildren = %d/%d", child.FatherPID(), parent.NChildren)
	}
	if child.UID != 100 || child.Handlers[model.SIGUSR1] != proc.SigIgnore {
		t.Errorf("credentials or handlers not inherited")
	}
	if child.Size != parent.Size {
		t.Errorf("child Size = %d, want %d", child.Size, parent.Size)
	}

	// Shared region is the same object; private ones are copies.
	if child.PRegs[proc.TEXT].Reg != parent.PRegs[proc.TEXT].Reg {
		t.Error("shared text region was copied")
	}
	if parent.PRegs[proc.TEXT].Reg.Count() != 2 {
		t.Errorf("shared region count = %d, want 2", parent.PRegs[proc.TEXT].Reg.Count())
	}
	for _, slot := range []int{proc.DATA, proc.STACK} {
		if child.PRegs[slot].Reg == parent.PRegs[slot].Reg {
			t.Errorf("private region %d is shared", slot)
		}
		if child.PRegs[slot].Start != parent.PRegs[slot].Start {
			t.Errorf("region %d start = %#x, want %#x", slot, child.PRegs[slot].Start, parent.PRegs[slot].Start)
		}
	}
	if child.PRegs[proc.HEAP].Reg != nil {
		t.Error("unattached heap slot became attached")
	}

	if f.file.Count() != 2 || child.OFiles[0] != f.file {
		t.Errorf("open file count = %d, want 2 and shared", f.file.Count())
	}
	if f.root.Count() != 4 {
		t.Errorf("root inode count = %d, want 4 (root+pwd for each process)", f.root.Count())
	}
}

func TestManager_ForkEAGAIN(t *testing.T) {
	f := newFixture(t, 64)
	for i := 0; i < 2; i++ {
		if _, err := f.m.Fork(f.parent); err != nil {
			t.Fatalf("Fork %d: %v", i, err)
		}
	}
	used := f.pool.Used()
	counts := regionCounts(f.parent)
	fileCount := f.file.Count()

	_, err := f.m.Fork(f.parent)
	if !errors.Is(err, model.EAGAIN) {
		t.Fatalf("Fork on full table error = %v, want EAGAIN", err)
	}
	if f.pool.Used() != used {
		t.Errorf("frames used = %d, want %d", f.pool.Used(), used)
	}
	if regionCounts(f.parent) != counts || f.file.Count() != fileCount {
		t.Error("reference counts changed by failed fork")
	}
	if f.parent.NChildren != 2 {
		t.Errorf("NChildren = %d, want 2", f.parent.NChildren)
	}
}

func TestManager_ForkENOMEM(t *testing.T) {
	// Parent: address space 1 + pages 6 + page tables 3.
	tests := []struct {
		name   string
		frames int
	}{
		{"no frame for address space", 10},
		{"no frames for private copy", 12},
		{"no frame for last page table", 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.frames)
			used := f.pool.Used()
			counts := regionCounts(f.parent)

			_, err := f.m.Fork(f.parent)
			if !errors.Is(err, model.ENOMEM) {
				t.Fatalf("Fork error = %v, want ENOMEM", err)
			}
			if f.pool.Used() != used {
				t.Errorf("frames used = %d, want %d", f.pool.Used(), used)
			}
			if regionCounts(f.parent) != counts {
				t.Errorf("region counts = %v, want %v", regionCounts(f.parent), counts)
			}
			if f.tab.InUse() != 2 {
				t.Errorf("InUse() = %d, want 2 (child slot not released)", f.tab.InUse())
			}
			if f.parent.NChildren != 0 {
				t.Errorf("NChildren = %d, want 0", f.parent.NChildren)
			}
		})
	}
}

func TestManager_ForkRollback(t *testing.T) {
	tests := []struct {
		name         string
		failDupAt    int
		failAttachAt int
	}{
		{"duplicate first region", 1, -1},
		{"duplicate third region", 3, -1},
		{"attach shared region", 0, proc.TEXT},
		{"attach private region", 0, proc.STACK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 64)
			f.m.vm = &faultyVM{Manager: f.vmm, failDupAt: tt.failDupAt, failAttachAt: tt.failAttachAt}

			used := f.pool.Used()
			counts := regionCounts(f.parent)
			rootCount := f.root.Count()

			_, err := f.m.Fork(f.parent)
			if !errors.Is(err, model.ENOMEM) {
				t.Fatalf("Fork error = %v, want ENOMEM", err)
			}
			if got := regionCounts(f.parent); got != counts {
				t.Errorf("region counts = %v, want %v", got, counts)
			}
			if f.pool.Used() != used {
				t.Errorf("frames used = %d, want %d", f.pool.Used(), used)
			}
			if f.root.Count() != rootCount {
				t.Errorf("root count = %d, want %d", f.root.Count(), rootCount)
			}
			if s := f.tab.Slot(2); s.Flags != model.ProcFlagFree || s.Space != nil {
				t.Errorf("child slot flags/space = %v/%v, want FREE/nil", s.Flags, s.Space)
			}

			// The slot and pid counter are reusable afterwards.
			f.m.vm = f.vmm
			pid, err := f.m.Fork(f.parent)
			if err != nil {
				t.Fatalf("Fork after rollback: %v", err)
			}
			if pid != 2 {
				t.Errorf("pid after rollback = %d, want 2", pid)
			}
		})
	}
}

func TestManager_ExitWait(t *testing.T) {
	f := newFixture(t, 64)
	before := f.pool.Used()

	pid, err := f.m.Fork(f.parent)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	child, _ := f.tab.Lookup(pid)
	child.UTime, child.KTime = 7, 3

	if _, _, err := f.m.Wait(f.parent); !errors.Is(err, model.EAGAIN) {
		t.Errorf("Wait with live child error = %v, want EAGAIN", err)
	}

	if err := f.m.Exit(child, 42); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if child.State != model.ProcStateZombie {
		t.Errorf("State = %v, want ZOMBIE", child.State)
	}
	if f.pool.Used() != before {
		t.Errorf("frames used after exit = %d, want %d", f.pool.Used(), before)
	}
	if f.parent.PRegs[proc.TEXT].Reg.Count() != 1 || f.file.Count() != 1 || f.root.Count() != 2 {
		t.Error("exit did not drop the child's references")
	}
	if last := f.sig.sent[len(f.sig.sent)-1]; last != (sent{f.parent.PID, model.SIGCHLD}) {
		t.Errorf("last signal = %v, want SIGCHLD to father", last)
	}

	gotPID, status, err := f.m.Wait(f.parent)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if gotPID != pid || status != 42 {
		t.Errorf("Wait = %d, %d; want %d, 42", gotPID, status, pid)
	}
	if f.parent.CUTime != 7 || f.parent.CKTime != 3 {
		t.Errorf("child times = %d/%d, want 7/3", f.parent.CUTime, f.parent.CKTime)
	}
	if _, ok := f.tab.Lookup(pid); ok {
		t.Error("reaped child still in table")
	}
	if _, _, err := f.m.Wait(f.parent); !errors.Is(err, model.ECHILD) {
		t.Errorf("Wait without children error = %v, want ECHILD", err)
	}
}

func TestManager_ExitReparents(t *testing.T) {
	f := newFixture(t, 64)
	pid, err := f.m.Fork(f.parent)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	child, _ := f.tab.Lookup(pid)
	grandPID, err := f.m.Fork(child)
	if err != nil {
		t.Fatalf("Fork grandchild: %v", err)
	}
	grand, _ := f.tab.Lookup(grandPID)

	if err := f.m.Exit(child, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	// The parent is pid 1, which acts as init.
	if grand.Father != f.parent {
		t.Errorf("grandchild father = %d, want init", grand.FatherPID())
	}
	if f.parent.NChildren != 2 {
		t.Errorf("init NChildren = %d, want 2", f.parent.NChildren)
	}
}

func TestManager_ExitIdle(t *testing.T) {
	f := newFixture(t, 64)
	if err := f.m.Exit(f.tab.Idle(), 0); !errors.Is(err, model.EPERM) {
		t.Errorf("Exit(idle) error = %v, want EPERM", err)
	}
}
