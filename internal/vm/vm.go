// Package vm implements the address-space and region operations the process
// lifecycle manager depends on, backed by a fixed pool of page frames.
//
// Every address space root costs one frame, every attachment one page-table
// frame, and every private region copy one frame per page. Shared regions
// are never copied.
package vm

import (
	"fmt"
	"log/slog"

	"github.com/me/pmcore/internal/mm"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// Manager owns the frame pool.
type Manager struct {
	pool   *mm.Pool
	logger *slog.Logger
}

// NewManager creates a Manager over pool.
func NewManager(pool *mm.Pool, logger *slog.Logger) *Manager {
	return &Manager{pool: pool, logger: logger.With("component", "vm")}
}

// Pool returns the frame pool.
func (m *Manager) Pool() *mm.Pool { return m.pool }

// CreateAddressSpace gives p a fresh translation root.
func (m *Manager) CreateAddressSpace(p *proc.Process) error {
	if p.Space != nil {
		return fmt.Errorf("create address space for slot %d: %w", p.Slot(), model.EINVAL)
	}
	if err := m.pool.Alloc(1); err != nil {
		return err
	}
	p.Space = mm.NewAddressSpace()
	return nil
}

// DestroyAddressSpace releases p's translation root. All regions must have
// been detached.
func (m *Manager) DestroyAddressSpace(p *proc.Process) {
	if p.Space == nil {
		return
	}
	if p.Space.Len() != 0 {
		panic(fmt.Sprintf("vm: destroying address space of slot %d with %d regions attached", p.Slot(), p.Space.Len()))
	}
	p.Space = nil
	m.pool.Free(1)
}

// AllocRegion creates an unattached region backed by pages frames.
func (m *Manager) AllocRegion(pages int, shared bool) (*mm.Region, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("alloc region of %d pages: %w", pages, model.EINVAL)
	}
	if err := m.pool.Alloc(pages); err != nil {
		return nil, err
	}
	return mm.NewRegion(pages, shared), nil
}

// DupRegion duplicates r for a child. Shared regions are returned as is;
// private regions are copied into fresh frames. The caller holds r's lock.
func (m *Manager) DupRegion(r *mm.Region) (*mm.Region, error) {
	if r.Shared() {
		return r, nil
	}
	if err := m.pool.Alloc(r.Pages()); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// FreeRegion releases a region that was never attached.
func (m *Manager) FreeRegion(r *mm.Region) {
	r.Lock()
	defer r.Unlock()
	if r.Count() != 0 {
		return
	}
	m.pool.Free(r.Pages())
}

// AttachRegion attaches r to p at the given slot and start address.
func (m *Manager) AttachRegion(p *proc.Process, slot int, start uintptr, r *mm.Region) error {
	if slot < 0 || slot >= proc.NRPRegions {
		return fmt.Errorf("attach region slot %d: %w", slot, model.EINVAL)
	}
	if p.Space == nil {
		return fmt.Errorf("attach region to slot %d without address space: %w", p.Slot(), model.EINVAL)
	}
	if p.PRegs[slot].Reg != nil {
		return fmt.Errorf("attach region slot %d: already in use: %w", slot, model.EINVAL)
	}
	if err := m.pool.Alloc(1); err != nil {
		return err
	}
	if err := p.Space.Map(start, r); err != nil {
		m.pool.Free(1)
		return fmt.Errorf("attach region slot %d: %v: %w", slot, err, model.ENOMEM)
	}

	r.Lock()
	r.Ref()
	r.Unlock()

	p.PRegs[slot] = proc.PRegion{Reg: r, Start: start}
	p.Size += r.Size()
	return nil
}

// DetachRegion detaches the region in slot from p, destroying it when p held
// the last attachment.
func (m *Manager) DetachRegion(p *proc.Process, slot int) {
	preg := p.PRegs[slot]
	if preg.Reg == nil {
		return
	}
	r := preg.Reg

	r.Lock()
	last := r.Unref()
	r.Unlock()

	p.Space.Unmap(preg.Start)
	p.PRegs[slot] = proc.PRegion{}
	p.Size -= r.Size()
	m.pool.Free(1)
	if last {
		m.pool.Free(r.Pages())
		m.logger.Debug("region destroyed", "pages", r.Pages())
	}
}
