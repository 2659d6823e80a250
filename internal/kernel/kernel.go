// Package kernel assembles the process table, memory, scheduler, signal
// delivery and process lifecycle into one kernel instance.
//
// The kernel runs on a single logical processor. Every exported method takes
// the big kernel lock, so callers on different goroutines (the clock loop,
// the monitor API) are serialized; nothing below this package locks it.
package kernel

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/mm"
	"github.com/me/pmcore/internal/pm"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/sched"
	"github.com/me/pmcore/internal/signal"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/internal/vm"
	"github.com/me/pmcore/pkg/model"
)

// DefaultFrames is the size of the page frame pool when none is configured.
const DefaultFrames = 4096

// Config holds the construction parameters of a kernel.
type Config struct {
	TableSize int          // process table entries, IDLE included; 0 means proc.NRProc
	Frames    int          // page frames; 0 means DefaultFrames
	Policy    sched.Policy // nil means the aging policy
}

// Kernel is a booted kernel instance.
type Kernel struct {
	mu sync.Mutex

	clock   *clock.Clock
	table   *proc.Table
	vm      *vm.Manager
	signals *signal.Deliverer
	sched   *sched.Scheduler
	pm      *pm.Manager
	files   *fileTable
	logger  *slog.Logger

	switches   int
	dispatches map[int]int
}

// New boots a kernel: IDLE becomes the running process with its own address
// space and the root directory as root and working directory.
func New(cfg Config, sink trace.Sink, logger *slog.Logger) (*Kernel, error) {
	if cfg.TableSize == 0 {
		cfg.TableSize = proc.NRProc
	}
	if cfg.TableSize < 2 {
		return nil, fmt.Errorf("table size %d: %w", cfg.TableSize, model.EINVAL)
	}
	if cfg.Frames == 0 {
		cfg.Frames = DefaultFrames
	}
	if sink == nil {
		sink = trace.Discard
	}

	k := &Kernel{
		clock:      clock.New(),
		table:      proc.NewTable(cfg.TableSize),
		files:      newFileTable(),
		logger:     logger.With("component", "kernel"),
		dispatches: make(map[int]int),
	}
	k.vm = vm.NewManager(mm.NewPool(cfg.Frames), logger)
	k.signals = signal.New(k.clock, sink, logger)
	k.sched = sched.New(k.table, sched.Deps{
		Clock:    k.clock,
		Signals:  k.signals,
		Switcher: k,
		Policy:   cfg.Policy,
		Sink:     sink,
	}, logger)
	k.signals.SetResumer(k.sched.Resume)
	k.pm = pm.NewManager(k.table, pm.Deps{
		VM:      k.vm,
		Sched:   k.sched,
		Signals: k.signals,
		Clock:   k.clock,
		Sink:    sink,
	}, logger)

	idle := k.table.Boot()
	if err := k.vm.CreateAddressSpace(idle); err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	idle.Root = k.files.root.Dup()
	idle.Pwd = k.files.root.Dup()

	k.logger.Info("kernel booted",
		"table_size", cfg.TableSize,
		"frames", cfg.Frames,
		"policy", k.sched.Policy().Name(),
	)
	return k, nil
}

// SwitchTo implements sched.Switcher. Control returns to the caller at once:
// the simulated process continues from the next kernel entry.
func (k *Kernel) SwitchTo(prev, next *proc.Process) {
	if prev == next {
		return
	}
	k.switches++
	k.dispatches[next.PID]++
	k.logger.Debug("context switch", "from", prev.PID, "to", next.PID, "tick", k.clock.Ticks())
}

// Ticks returns the current tick.
func (k *Kernel) Ticks() uint64 { return k.clock.Ticks() }

// Stats returns a summary of the kernel.
func (k *Kernel) Stats() model.KernelStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	pool := k.vm.Pool()
	last := -1
	if p := k.sched.Last(); p != nil {
		last = p.PID
	}
	return model.KernelStats{
		Ticks:       k.clock.Ticks(),
		Current:     k.sched.Current().PID,
		Last:        last,
		Policy:      k.sched.Policy().Name(),
		TableSize:   k.table.Len(),
		InUse:       k.table.InUse(),
		FramesUsed:  pool.Used(),
		FramesTotal: pool.Total(),
		Switches:    k.switches,
	}
}

// Current returns the pid of the running process.
func (k *Kernel) Current() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sched.Current().PID
}

// Dispatches returns how many times each pid was switched to.
func (k *Kernel) Dispatches() map[int]int {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[int]int, len(k.dispatches))
	for pid, n := range k.dispatches {
		out[pid] = n
	}
	return out
}

// Processes returns a snapshot of every in-use table entry, IDLE first.
func (k *Kernel) Processes() []model.ProcessInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.table.Snapshot()
}

// Process returns a snapshot of one process.
func (k *Kernel) Process(pid int) (model.ProcessInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.lookup(pid)
	if err != nil {
		return model.ProcessInfo{}, err
	}
	return p.Info(), nil
}

// lookup finds a live process by pid. Zombies are found too.
func (k *Kernel) lookup(pid int) (*proc.Process, error) {
	p, ok := k.table.Lookup(pid)
	if !ok {
		return nil, fmt.Errorf("pid %d: %w", pid, model.ESRCH)
	}
	return p, nil
}
