// Package pm implements the process lifecycle: fork with full rollback on
// failure, exit and reaping of zombie children.
package pm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/mm"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/pkg/model"
)

// VM is the memory collaborator fork and exit depend on.
type VM interface {
	CreateAddressSpace(p *proc.Process) error
	DestroyAddressSpace(p *proc.Process)
	DupRegion(r *mm.Region) (*mm.Region, error)
	FreeRegion(r *mm.Region)
	AttachRegion(p *proc.Process, slot int, start uintptr, r *mm.Region) error
	DetachRegion(p *proc.Process, slot int)
}

// Scheduler makes a process runnable.
type Scheduler interface {
	Sched(p *proc.Process)
}

// Signaler delivers a signal to a process.
type Signaler interface {
	Send(p *proc.Process, sig model.Signal)
}

// Deps are the collaborators a Manager needs.
type Deps struct {
	VM      VM
	Sched   Scheduler
	Signals Signaler
	Clock   clock.Source
	Sink    trace.Sink // nil discards events
}

// Manager creates and destroys processes in a table.
type Manager struct {
	table   *proc.Table
	vm      VM
	sched   Scheduler
	signals Signaler
	clock   clock.Source
	sink    trace.Sink
	logger  *slog.Logger
}

// NewManager creates a Manager over table.
func NewManager(table *proc.Table, deps Deps, logger *slog.Logger) *Manager {
	if deps.Sink == nil {
		deps.Sink = trace.Discard
	}
	return &Manager{
		table:   table,
		vm:      deps.VM,
		sched:   deps.Sched,
		signals: deps.Signals,
		clock:   deps.Clock,
		sink:    deps.Sink,
		logger:  logger.With("component", "pm"),
	}
}

// Fork creates a child of src and returns its pid. The child gets its own
// copy of every private region and shares every shared region, open file and
// directory with src. It fails with model.EAGAIN when the table is full and
// with model.ENOMEM when memory runs out; in both cases nothing src or the
// table held before the call has changed.
func (m *Manager) Fork(src *proc.Process) (int, error) {
	child, err := m.table.FindFree()
	if err != nil {
		m.logger.Warn("process table overflow", "father", src.PID)
		return 0, m.forkFailed(src, fmt.Errorf("fork: %w", err))
	}

	var undo undoStack
	committed := false
	defer func() {
		if !committed {
			undo.unwind()
		}
	}()

	child.Flags = model.ProcFlagNew
	undo.push(func() { m.table.Release(child) })

	if err := m.vm.CreateAddressSpace(child); err != nil {
		return 0, m.forkFailed(src, outOfMemory("fork: create address space", err))
	}
	undo.push(func() { m.vm.DestroyAddressSpace(child) })

	// Attachments keep the parent's slot indices.
	for i, preg := range src.PRegs {
		if preg.Reg == nil {
			continue
		}
		reg, err := m.dupRegion(preg.Reg)
		if err != nil {
			return 0, m.forkFailed(src, outOfMemory(fmt.Sprintf("fork: duplicate region %d", i), err))
		}
		if err := m.vm.AttachRegion(child, i, preg.Start, reg); err != nil {
			m.vm.FreeRegion(reg)
			return 0, m.forkFailed(src, outOfMemory(fmt.Sprintf("fork: attach region %d", i), err))
		}
		slot := i
		undo.push(func() { m.vm.DetachRegion(child, slot) })
	}

	m.inherit(child, src)
	child.PID = m.table.AllocPID()
	child.Father = src
	child.Flags = model.ProcFlagValid
	m.sched.Sched(child)
	src.NChildren++
	committed = true

	m.sink.Emit(model.Event{
		Tick:   m.clock.Ticks(),
		Kind:   model.EventFork,
		PID:    src.PID,
		Target: child.PID,
	})
	m.logger.Debug("process forked", "father", src.PID, "pid", child.PID, "slot", child.Slot())
	return child.PID, nil
}

// dupRegion duplicates r while holding its lock.
func (m *Manager) dupRegion(r *mm.Region) (*mm.Region, error) {
	r.Lock()
	defer r.Unlock()
	return m.vm.DupRegion(r)
}

// inherit copies scalar state and shares file references from src.
func (m *Manager) inherit(child, src *proc.Process) {
	child.Name = src.Name
	child.Intlvl = src.Intlvl
	child.Received = 0
	child.Handlers = src.Handlers
	child.Size = src.Size

	if src.Pwd != nil {
		child.Pwd = src.Pwd.Dup()
	}
	if src.Root != nil {
		child.Root = src.Root.Dup()
	}
	for fd, f := range src.OFiles {
		if f != nil {
			child.OFiles[fd] = f.Dup()
		}
	}
	child.Close = src.Close
	child.Umask = src.Umask
	child.TTY = src.TTY

	child.UID, child.EUID, child.SUID = src.UID, src.EUID, src.SUID
	child.GID, child.EGID, child.SGID = src.GID, src.EGID, src.SGID
	child.Pgrp = src.Pgrp
	child.Priority = src.Priority
	child.Nice = src.Nice

	child.Status = 0
	child.NChildren = 0
	child.UTime, child.KTime = 0, 0
	child.CUTime, child.CKTime = 0, 0
	child.Alarm = 0
	child.Next = nil
	child.Chain = nil
}

func (m *Manager) forkFailed(src *proc.Process, err error) error {
	m.sink.Emit(model.Event{
		Tick:   m.clock.Ticks(),
		Kind:   model.EventForkFailed,
		PID:    src.PID,
		Target: -1,
		Detail: errnoName(err),
	})
	return err
}

// outOfMemory reports a fork failure as model.ENOMEM whatever the
// collaborator returned.
func outOfMemory(step string, err error) error {
	if errors.Is(err, model.ENOMEM) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %v: %w", step, err, model.ENOMEM)
}

func errnoName(err error) string {
	var errno model.Errno
	if errors.As(err, &errno) {
		return errno.Name()
	}
	return err.Error()
}

// undoStack holds compensating actions, run newest first.
type undoStack []func()

func (u *undoStack) push(fn func()) { *u = append(*u, fn) }

func (u *undoStack) unwind() {
	for i := len(*u) - 1; i >= 0; i-- {
		(*u)[i]()
	}
	*u = nil
}
