package kernel

import (
	"fmt"

	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// Tick is the timer interrupt. IDLE reschedules on every tick; any other
// process is charged the tick, has its pending signals acted on, and is
// preempted once its quantum runs out.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.clock.Advance()
	curr := k.sched.Current()

	if curr.IsIdle() {
		curr.Received = 0
		k.reapOrphans()
		k.sched.Yield()
		return
	}

	curr.UTime++
	if k.issig(curr) {
		return
	}
	curr.Counter--
	if curr.Counter <= 0 {
		k.sched.Yield()
	}
}

// reapOrphans collects zombies IDLE has inherited.
func (k *Kernel) reapOrphans() {
	idle := k.table.Idle()
	for idle.NChildren > 0 {
		if _, _, err := k.pm.Wait(idle); err != nil {
			return
		}
	}
}

// issig acts on the pending signals of the running process p and reports
// whether p gave up the processor. Caught signals are consumed; default
// actions ignore, stop or terminate.
func (k *Kernel) issig(p *proc.Process) bool {
	for {
		sig, ok := k.signals.Next(p)
		if !ok {
			return false
		}
		if h := p.Handlers[sig]; h != proc.SigDefault && sig.Catchable() {
			k.logger.Debug("signal caught", "pid", p.PID, "signal", sig)
			continue
		}
		switch defaultAction(sig) {
		case actionIgnore:
			continue
		case actionStop:
			if err := k.sched.Stop(); err != nil {
				k.logger.Warn("stop failed", "pid", p.PID, "error", err)
				continue
			}
			return true
		default:
			k.terminate(p, 128+int(sig))
			return true
		}
	}
}

type action int

const (
	actionTerminate action = iota
	actionIgnore
	actionStop
)

func defaultAction(sig model.Signal) action {
	switch sig {
	case model.SIGCHLD, model.SIGCONT:
		return actionIgnore
	case model.SIGSTOP, model.SIGTSTP, model.SIGTTIN, model.SIGTTOU:
		return actionStop
	}
	return actionTerminate
}

// terminate exits p and reschedules if it was running.
func (k *Kernel) terminate(p *proc.Process, status int) {
	if err := k.pm.Exit(p, status); err != nil {
		k.logger.Warn("exit failed", "pid", p.PID, "error", err)
		return
	}
	if p == k.sched.Current() {
		k.sched.Yield()
	}
}

// Yield gives up the processor voluntarily.
func (k *Kernel) Yield() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sched.Yield()
}

// Fork duplicates the running process and returns the child's pid.
func (k *Kernel) Fork() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pm.Fork(k.sched.Current())
}

// ForkFrom duplicates the process pid as if it had called fork.
func (k *Kernel) ForkFrom(pid int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return 0, err
	}
	if p.State == model.ProcStateZombie {
		return 0, fmt.Errorf("fork from pid %d: %w", pid, model.ESRCH)
	}
	return k.pm.Fork(p)
}

// Stop stops the running process and returns its pid.
func (k *Kernel) Stop() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	pid := k.sched.Current().PID
	if err := k.sched.Stop(); err != nil {
		return 0, err
	}
	return pid, nil
}

// Resume continues a stopped process. Other processes are left alone.
func (k *Kernel) Resume(pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	k.sched.Resume(p)
	return nil
}

// Signal sends sig to pid. SIGKILL terminates the target at once; other
// signals are acted on when the target next runs. IDLE takes no signals.
func (k *Kernel) Signal(pid int, sig model.Signal) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if sig <= 0 || int(sig) >= proc.NRSignals {
		return fmt.Errorf("signal %d: %w", int(sig), model.EINVAL)
	}
	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	if p.IsIdle() {
		return fmt.Errorf("signal idle: %w", model.EPERM)
	}
	if p.State == model.ProcStateZombie {
		return nil
	}
	if sig == model.SIGKILL {
		k.terminate(p, 128+int(sig))
		return nil
	}
	k.signals.Send(p, sig)
	return nil
}

// SetAlarm arms an alarm that fires SIGALRM at pid after n ticks, or
// disarms it when n is zero. It returns the ticks left on the previous alarm.
// IDLE is never scanned for alarms and refuses them.
func (k *Kernel) SetAlarm(pid int, n uint64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return 0, err
	}
	if p.IsIdle() {
		return 0, fmt.Errorf("alarm on idle: %w", model.EPERM)
	}
	now := k.clock.Ticks()
	var left uint64
	if p.Alarm > now {
		left = p.Alarm - now
	}
	if n == 0 {
		p.Alarm = 0
	} else {
		p.Alarm = now + n
	}
	return left, nil
}

// SetNice sets the nice value of pid, clamped to 0..2*NZero-1.
func (k *Kernel) SetNice(pid, nice int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	p.Nice = min(max(nice, 0), 2*proc.NZero-1)
	return nil
}

// SetName renames pid.
func (k *Kernel) SetName(pid int, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

// SetHandler installs a disposition for sig in pid. SIGKILL and SIGSTOP
// keep their default.
func (k *Kernel) SetHandler(pid int, sig model.Signal, h proc.Handler) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if sig <= 0 || int(sig) >= proc.NRSignals || !sig.Catchable() {
		return fmt.Errorf("handler for %s: %w", sig, model.EINVAL)
	}
	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	p.Handlers[sig] = h
	return nil
}

// Exit terminates the running process with status and reschedules.
func (k *Kernel) Exit(status int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	curr := k.sched.Current()
	if err := k.pm.Exit(curr, status); err != nil {
		return err
	}
	k.sched.Yield()
	return nil
}

// Wait reaps one exited child of pid.
func (k *Kernel) Wait(pid int) (int, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return 0, 0, err
	}
	return k.pm.Wait(p)
}
