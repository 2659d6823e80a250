package proc

import (
	"fmt"

	"github.com/me/pmcore/pkg/model"
)

// Table is the process table: a fixed arena of entries addressed by slot.
// Slot 0 is IDLE; every scan runs from First to Last and skips it.
type Table struct {
	procs   []Process
	nextPID int
}

// NewTable allocates a table of n entries, all FREE.
func NewTable(n int) *Table {
	if n < 2 {
		panic(fmt.Sprintf("proc: table of %d entries cannot hold IDLE and a process", n))
	}
	t := &Table{procs: make([]Process, n), nextPID: 1}
	for i := range t.procs {
		t.procs[i].slot = i
		t.procs[i].Flags = model.ProcFlagFree
	}
	return t
}

// Boot initializes the IDLE entry as the running process.
func (t *Table) Boot() *Process {
	idle := &t.procs[0]
	idle.reset()
	idle.Flags = model.ProcFlagValid
	idle.State = model.ProcStateRunning
	idle.Name = "idle"
	idle.Priority = PrioUser
	idle.Nice = NZero
	idle.Counter = Quantum
	idle.Intlvl = IntlvlUser
	return idle
}

// Idle returns the IDLE entry.
func (t *Table) Idle() *Process { return &t.procs[0] }

// First returns the first scannable slot.
func (t *Table) First() int { return 1 }

// Last returns the last scannable slot.
func (t *Table) Last() int { return len(t.procs) - 1 }

// Len returns the table size, IDLE included.
func (t *Table) Len() int { return len(t.procs) }

// Slot returns the entry at index i.
func (t *Table) Slot(i int) *Process { return &t.procs[i] }

// FindFree returns the first FREE entry, or EAGAIN when the table is full.
func (t *Table) FindFree() (*Process, error) {
	for i := t.First(); i <= t.Last(); i++ {
		if p := &t.procs[i]; p.Flags == model.ProcFlagFree {
			return p, nil
		}
	}
	return nil, model.EAGAIN
}

// Release returns p to FREE. The caller has already dropped every reference
// the entry held.
func (t *Table) Release(p *Process) {
	if p.IsIdle() {
		panic("proc: releasing IDLE")
	}
	p.reset()
}

// AllocPID returns the next process id. Ids are never reused.
func (t *Table) AllocPID() int {
	pid := t.nextPID
	t.nextPID++
	return pid
}

// Lookup finds the in-use entry with the given pid.
func (t *Table) Lookup(pid int) (*Process, bool) {
	for i := range t.procs {
		p := &t.procs[i]
		if p.InUse() && p.PID == pid {
			return p, true
		}
	}
	return nil, false
}

// Each calls fn for every in-use entry from First to Last until fn
// returns false.
func (t *Table) Each(fn func(p *Process) bool) {
	for i := t.First(); i <= t.Last(); i++ {
		p := &t.procs[i]
		if !p.InUse() {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// InUse returns the number of claimed entries, IDLE included.
func (t *Table) InUse() int {
	n := 0
	for i := range t.procs {
		if t.procs[i].InUse() {
			n++
		}
	}
	return n
}

// Snapshot returns the info of every in-use entry, IDLE first.
func (t *Table) Snapshot() []model.ProcessInfo {
	var out []model.ProcessInfo
	for i := range t.procs {
		if p := &t.procs[i]; p.InUse() {
			out = append(out, p.Info())
		}
	}
	return out
}
