// Package sim drives a kernel through a workload: it forks the declared
// processes, runs each one's behavior while it holds the processor, injects
// scripted events and records the trace of the run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/me/pmcore/internal/kernel"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/sched"
	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/internal/workload"
	"github.com/me/pmcore/pkg/model"
)

// FlushEvery is how many ticks pass between trace flushes.
const FlushEvery = 500

// catchHandler is the handler address installed for caught signals.
const catchHandler proc.Handler = 0x400000

// Result is the outcome of one run.
type Result struct {
	RunID      string
	Name       string
	Policy     model.PolicyName
	Ticks      uint64
	Stats      model.KernelStats
	Processes  []model.ProcessInfo // table at the end of the run
	Names      map[int]string      // name of every pid that ever existed
	RunTicks   map[int]int         // ticks charged to each pid
	Dispatches map[int]int         // switches to each pid
	Events     map[model.EventKind]int
}

// Summary keys dispatch counts by "pid:name".
func (r *Result) Summary() map[string]int {
	out := make(map[string]int, len(r.Dispatches))
	for pid, n := range r.Dispatches {
		out[strconv.Itoa(pid)+":"+r.Names[pid]] = n
	}
	return out
}

// Runner executes workloads. Store may be nil, in which case runs are not
// persisted.
type Runner struct {
	store    store.Store
	policies *sched.Registry
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, policies *sched.Registry, logger *slog.Logger) *Runner {
	return &Runner{
		store:    st,
		policies: policies,
		logger:   logger.With("component", "sim"),
	}
}

// run is the state of one workload execution.
type run struct {
	w         *workload.Workload
	k         *kernel.Kernel
	logger    *slog.Logger
	pids      map[string]int
	names     map[int]string
	behaviors map[int]*workload.Behavior
	runTicks  map[int]int
	events    map[uint64][]workload.Event
}

// Run executes w to completion or until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, w *workload.Workload) (*Result, error) {
	policy, err := r.policies.Get(w.Policy, w.Seed)
	if err != nil {
		return nil, err
	}

	runID := trace.NewRunID()
	logger := r.logger.With("run_id", runID, "workload", w.Name)
	var writer trace.Writer
	if r.store != nil {
		writer = r.store
	}
	rec := trace.NewRecorder(runID, writer, r.logger)

	k, err := kernel.New(kernel.Config{
		TableSize: w.TableSize,
		Frames:    w.Frames,
		Policy:    policy,
	}, rec, r.logger)
	if err != nil {
		return nil, fmt.Errorf("boot kernel: %w", err)
	}

	if r.store != nil {
		if err := r.store.CreateRun(ctx, &model.Run{
			ID:        runID,
			Name:      w.Name,
			Policy:    policy.Name(),
			TableSize: w.TableSize,
			Quantum:   proc.Quantum,
			Seed:      w.Seed,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}

	s := &run{
		w:         w,
		k:         k,
		logger:    logger,
		pids:      make(map[string]int),
		names:     map[int]string{0: "idle"},
		behaviors: make(map[int]*workload.Behavior),
		runTicks:  make(map[int]int),
		events:    make(map[uint64][]workload.Event),
	}
	for _, ev := range w.Events {
		s.events[ev.At] = append(s.events[ev.At], ev)
	}
	if err := s.spawn(); err != nil {
		return nil, err
	}
	logger.Info("run started", "policy", policy.Name(), "processes", len(w.Processes), "ticks", w.Ticks)

	var ticks uint64
	for ticks < w.Ticks {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", "tick", ticks)
			break
		}
		ticks++
		s.deliver(ticks)
		s.step()
		charged := k.Current()
		k.Tick()
		s.runTicks[charged]++

		if ticks%FlushEvery == 0 {
			if err := rec.Flush(ctx); err != nil {
				logger.Error("trace flush failed", "error", err)
			}
		}
	}

	// Flush with a fresh context so a cancelled run still keeps its trace.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rec.Flush(flushCtx); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      runID,
		Name:       w.Name,
		Policy:     policy.Name(),
		Ticks:      ticks,
		Stats:      k.Stats(),
		Processes:  k.Processes(),
		Names:      s.names,
		RunTicks:   s.runTicks,
		Dispatches: k.Dispatches(),
		Events:     make(map[model.EventKind]int),
	}
	for _, kind := range []model.EventKind{
		model.EventFork, model.EventForkFailed, model.EventSwitch, model.EventStop, model.EventResume,
		model.EventSignal, model.EventAlarm, model.EventExit, model.EventReap,
	} {
		if n := rec.Count(kind); n > 0 {
			res.Events[kind] = n
		}
	}

	if r.store != nil {
		if err := r.store.FinishRun(flushCtx, runID, ticks, res.Summary()); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
	}
	logger.Info("run finished", "ticks", ticks, "switches", res.Stats.Switches, "events", rec.Total())
	return res, ctx.Err()
}

// spawn forks the declared processes in order and sets them up.
func (s *run) spawn() error {
	for _, decl := range s.w.Processes {
		parent := 0
		if decl.Parent != "" {
			parent = s.pids[decl.Parent]
		}
		pid, err := s.k.ForkFrom(parent)
		if err != nil {
			return fmt.Errorf("fork %s: %w", decl.Name, err)
		}
		s.pids[decl.Name] = pid
		s.names[pid] = decl.Name

		if err := s.setup(pid, decl); err != nil {
			return fmt.Errorf("set up %s: %w", decl.Name, err)
		}
		if decl.Behavior != "" {
			b, err := workload.CompileBehavior(decl.Behavior)
			if err != nil {
				return fmt.Errorf("%s: %w", decl.Name, err)
			}
			s.behaviors[pid] = b
		}
	}
	return nil
}

func (s *run) setup(pid int, decl workload.Process) error {
	k := s.k
	if err := k.SetName(pid, decl.Name); err != nil {
		return err
	}
	if decl.Nice != nil {
		if err := k.SetNice(pid, *decl.Nice); err != nil {
			return err
		}
	}
	if decl.Alarm > 0 {
		if _, err := k.SetAlarm(pid, decl.Alarm); err != nil {
			return err
		}
	}
	for _, r := range decl.Regions {
		slot, _ := r.SlotIndex()
		if err := k.MapRegion(pid, slot, uintptr(r.Start), r.Pages, r.Shared); err != nil {
			return fmt.Errorf("region %s: %w", r.Slot, err)
		}
	}
	for _, path := range decl.Files {
		if _, err := k.Open(pid, path, 0); err != nil {
			return err
		}
	}
	for _, name := range decl.Catch {
		sig, err := model.ParseSignal(name)
		if err != nil {
			return err
		}
		if err := k.SetHandler(pid, sig, catchHandler); err != nil {
			return err
		}
	}
	return nil
}

// deliver applies the scripted events due at tick.
func (s *run) deliver(tick uint64) {
	for _, ev := range s.events[tick] {
		pid := s.pids[ev.Target]
		var err error
		switch ev.Action {
		case workload.ActionResume:
			err = s.k.Resume(pid)
		case workload.ActionKill:
			err = s.k.Signal(pid, model.SIGKILL)
		case workload.ActionSignal:
			var sig model.Signal
			if sig, err = model.ParseSignal(ev.Signal); err == nil {
				err = s.k.Signal(pid, sig)
			}
		}
		if err != nil {
			s.logger.Warn("scripted event failed", "tick", tick, "action", ev.Action, "target", ev.Target, "error", err)
		}
	}
}

// step lets the running process act before the tick is charged. Processes
// reap their exited children whenever they run.
func (s *run) step() {
	k := s.k
	pid := k.Current()
	if pid == 0 {
		return
	}
	info, err := k.Process(pid)
	if err != nil {
		return
	}
	for n := info.NChildren; n > 0; n-- {
		if _, _, err := k.Wait(pid); err != nil {
			break
		}
	}

	b := s.behaviors[pid]
	if b == nil {
		return
	}
	act, err := b.Eval(workload.Env{
		Tick:    k.Ticks(),
		PID:     pid,
		Name:    info.Name,
		Counter: info.Counter,
		UTime:   info.UTime,
		Nice:    info.Nice,
		Pending: info.Pending,
	})
	if err != nil {
		s.logger.Warn("behavior failed, exiting process", "pid", pid, "error", err)
		act = workload.Action{Kind: workload.ActExit, Arg: 1}
	}
	if err := s.apply(pid, b, act); err != nil && !errors.Is(err, model.EAGAIN) {
		s.logger.Warn("action failed", "pid", pid, "action", act.Kind, "error", err)
	}
}

func (s *run) apply(pid int, b *workload.Behavior, act workload.Action) error {
	k := s.k
	switch act.Kind {
	case workload.ActYield:
		k.Yield()
	case workload.ActStop:
		_, err := k.Stop()
		return err
	case workload.ActFork:
		child, err := k.Fork()
		if err != nil {
			return err
		}
		s.names[child] = s.names[pid]
		s.behaviors[child] = b
	case workload.ActExit:
		delete(s.behaviors, pid)
		return k.Exit(act.Arg)
	case workload.ActAlarm:
		_, err := k.SetAlarm(pid, uint64(act.Arg))
		return err
	case workload.ActNice:
		return k.SetNice(pid, act.Arg)
	}
	return nil
}
