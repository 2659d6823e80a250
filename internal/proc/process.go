// Package proc defines the process control block and the fixed-size process
// table it lives in.
package proc

import (
	"strconv"

	"github.com/me/pmcore/internal/fs"
	"github.com/me/pmcore/internal/mm"
	"github.com/me/pmcore/pkg/model"
)

// Handler is a signal disposition: SigDefault, SigIgnore or a user handler
// address.
type Handler uintptr

const (
	SigDefault Handler = 0
	SigIgnore  Handler = 1
)

// PRegion is one region attachment of a process.
type PRegion struct {
	Reg   *mm.Region
	Start uintptr
}

// Process is a process control block. Entries live in a Table and are never
// allocated on their own.
type Process struct {
	slot int

	Flags    model.ProcFlag
	State    model.ProcState
	Priority int
	Nice     int
	Counter  int
	Alarm    uint64 // absolute tick deadline, 0 when disabled

	PID    int
	Father *Process
	Pgrp   int
	Name   string

	UID, EUID, SUID int
	GID, EGID, SGID int

	Intlvl   int
	Received uint32 // pending signals
	Handlers [NRSignals]Handler

	Size  uintptr
	Space *mm.AddressSpace
	PRegs [NRPRegions]PRegion

	OFiles [OpenMax]*fs.File
	Close  uint32 // close-on-exec bitmap
	Umask  uint16
	TTY    int
	Pwd    *fs.Inode
	Root   *fs.Inode

	Status    int
	NChildren int

	UTime, KTime   uint64
	CUTime, CKTime uint64

	// Intrusive links for sleep chains.
	Next  *Process
	Chain **Process
}

// Slot returns the index of the entry in its table.
func (p *Process) Slot() int { return p.slot }

// InUse reports whether the entry has been claimed.
func (p *Process) InUse() bool { return p.Flags != model.ProcFlagFree }

// IsIdle reports whether p is the IDLE entry.
func (p *Process) IsIdle() bool { return p.slot == 0 }

// Pending reports whether sig has been received and not yet handled.
func (p *Process) Pending(sig model.Signal) bool {
	return p.Received&sig.Mask() != 0
}

// FatherPID returns the father's pid, or -1 for an orphan entry.
func (p *Process) FatherPID() int {
	if p.Father == nil {
		return -1
	}
	return p.Father.PID
}

// SetState moves p to a new run state. An illegal move means the table is
// corrupt, so it panics with an *model.InvalidTransitionError.
func (p *Process) SetState(to model.ProcState) {
	if !p.State.CanTransitionTo(to) {
		panic(&model.InvalidTransitionError{
			Entity: "Process",
			ID:     strconv.Itoa(p.PID),
			From:   p.State.String(),
			To:     to.String(),
		})
	}
	p.State = to
}

// reset returns the entry to FREE.
func (p *Process) reset() {
	slot := p.slot
	*p = Process{slot: slot, Flags: model.ProcFlagFree}
}

// Info returns a snapshot of the entry.
func (p *Process) Info() model.ProcessInfo {
	info := model.ProcessInfo{
		Slot:      p.slot,
		PID:       p.PID,
		Father:    p.FatherPID(),
		Name:      p.Name,
		Flags:     p.Flags,
		State:     p.State,
		Priority:  p.Priority,
		Nice:      p.Nice,
		Counter:   p.Counter,
		Alarm:     p.Alarm,
		Pgrp:      p.Pgrp,
		UID:       p.UID,
		GID:       p.GID,
		NChildren: p.NChildren,
		UTime:     p.UTime,
		KTime:     p.KTime,
		Status:    p.Status,
	}
	for _, sig := range model.SignalsIn(p.Received) {
		info.Pending = append(info.Pending, sig.String())
	}
	for i, preg := range p.PRegs {
		if preg.Reg == nil {
			continue
		}
		info.Regions = append(info.Regions, model.RegionInfo{
			Slot:   i,
			Start:  uint64(preg.Start),
			Pages:  preg.Reg.Pages(),
			Shared: preg.Reg.Shared(),
			Count:  preg.Reg.Count(),
		})
	}
	for fd, f := range p.OFiles {
		if f == nil {
			continue
		}
		info.Files = append(info.Files, model.FileInfo{FD: fd, Path: f.Inode.Path, Count: f.Count()})
	}
	return info
}
