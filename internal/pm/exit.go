package pm

import (
	"fmt"

	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// InitPID is the pid orphans are handed to.
const InitPID = 1

// Exit terminates p with status. Every region, file and directory p holds is
// released, its children are handed to init, and p becomes a ZOMBIE until
// its father reaps it. The caller reschedules if p was running.
func (m *Manager) Exit(p *proc.Process, status int) error {
	if p.IsIdle() {
		return fmt.Errorf("exit idle: %w", model.EPERM)
	}
	if p.State == model.ProcStateZombie {
		return fmt.Errorf("exit pid %d: already a zombie: %w", p.PID, model.ESRCH)
	}

	for i := range p.PRegs {
		m.vm.DetachRegion(p, i)
	}
	m.vm.DestroyAddressSpace(p)

	for fd, f := range p.OFiles {
		if f != nil {
			f.Close()
			p.OFiles[fd] = nil
		}
	}
	if p.Pwd != nil {
		p.Pwd.Put()
		p.Pwd = nil
	}
	if p.Root != nil {
		p.Root.Put()
		p.Root = nil
	}

	m.reparent(p)

	p.Alarm = 0
	p.Received = 0
	p.Status = status
	p.SetState(model.ProcStateZombie)

	m.sink.Emit(model.Event{
		Tick:   m.clock.Ticks(),
		Kind:   model.EventExit,
		PID:    p.PID,
		Target: p.FatherPID(),
		Detail: fmt.Sprintf("status %d", status),
	})
	m.logger.Debug("process exited", "pid", p.PID, "status", status)
	m.signals.Send(p.Father, model.SIGCHLD)
	return nil
}

// reparent hands the children of p to init, or to IDLE when init is p
// itself or gone.
func (m *Manager) reparent(p *proc.Process) {
	heir, ok := m.table.Lookup(InitPID)
	if !ok || heir == p || heir.State == model.ProcStateZombie {
		heir = m.table.Idle()
	}
	m.table.Each(func(q *proc.Process) bool {
		if q.Father != p {
			return true
		}
		q.Father = heir
		heir.NChildren++
		if q.State == model.ProcStateZombie {
			m.signals.Send(heir, model.SIGCHLD)
		}
		return true
	})
	p.NChildren = 0
}

// Wait reaps one zombie child of father and returns its pid and exit
// status. The child's times are added to father's. It fails with
// model.ECHILD when father has no children and model.EAGAIN when none has
// exited yet.
func (m *Manager) Wait(father *proc.Process) (int, int, error) {
	if father.NChildren == 0 {
		return 0, 0, fmt.Errorf("wait pid %d: %w", father.PID, model.ECHILD)
	}

	var zombie *proc.Process
	m.table.Each(func(q *proc.Process) bool {
		if q.Father == father && q.State == model.ProcStateZombie {
			zombie = q
			return false
		}
		return true
	})
	if zombie == nil {
		return 0, 0, fmt.Errorf("wait pid %d: %w", father.PID, model.EAGAIN)
	}

	pid, status := zombie.PID, zombie.Status
	father.CUTime += zombie.UTime + zombie.CUTime
	father.CKTime += zombie.KTime + zombie.CKTime
	father.NChildren--
	m.table.Release(zombie)

	m.sink.Emit(model.Event{
		Tick:   m.clock.Ticks(),
		Kind:   model.EventReap,
		PID:    father.PID,
		Target: pid,
		Detail: fmt.Sprintf("status %d", status),
	})
	m.logger.Debug("process reaped", "father", father.PID, "pid", pid, "status", status)
	return pid, status, nil
}
