package sched

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// Policy selects the next process to run. Pick scans the READY entries of
// the table once, starting from IDLE as the candidate, and returns the
// winner. It updates the waiting credit of every entry it passes over.
type Policy interface {
	Name() model.PolicyName
	Pick(t *proc.Table) *proc.Process
}

// Factory builds a policy. seed only matters to randomized policies.
type Factory func(seed uint64) Policy

// Registry maps policy names to factories.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[model.PolicyName]Factory
	logger    *slog.Logger
}

// NewRegistry creates a Registry holding the built-in policies.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		factories: make(map[model.PolicyName]Factory),
		logger:    logger.With("component", "policy-registry"),
	}
	r.Register(model.PolicyAging, func(uint64) Policy { return Aging() })
	r.Register(model.PolicyPriority, func(uint64) Policy { return Priority() })
	r.Register(model.PolicyLottery, func(seed uint64) Policy { return Lottery(seed) })
	return r
}

// Register adds a policy factory under name.
func (r *Registry) Register(name model.PolicyName, f Factory) {
	r.factories[name] = f
	r.logger.Debug("policy registered", "name", name)
}

// Get builds the named policy. An empty name selects the default.
func (r *Registry) Get(name model.PolicyName, seed uint64) (Policy, error) {
	if name == "" {
		name = model.DefaultPolicy
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no scheduling policy registered as %q", name)
	}
	return f(seed), nil
}

// Names lists the registered policies in alphabetical order.
func (r *Registry) Names() []model.PolicyName {
	names := make([]model.PolicyName, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ready reports whether the scan should consider p.
func ready(p *proc.Process) bool {
	return p.InUse() && p.State == model.ProcStateReady
}
