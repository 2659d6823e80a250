package sched

import (
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// StarvationBound is the waiting credit past which the priority policy stops
// looking at priorities and picks by credit alone.
const StarvationBound = 10

type priority struct{}

// Priority returns the priority/nice aware policy. Below StarvationBound a
// lower priority value wins, then (at user priority) a lower nice value,
// then more credit. A process at or above the bound wins by credit.
func Priority() Policy { return priority{} }

func (priority) Name() model.PolicyName { return model.PolicyPriority }

func (priority) Pick(t *proc.Table) *proc.Process {
	next := t.Idle()
	for i := t.First(); i <= t.Last(); i++ {
		p := t.Slot(i)
		if !ready(p) {
			continue
		}
		if next.IsIdle() || beats(p, next) {
			next.Counter++
			next = p
		} else {
			p.Counter++
		}
	}
	return next
}

// beats reports whether p should replace the candidate c.
func beats(p, c *proc.Process) bool {
	if p.Counter >= StarvationBound {
		return p.Counter >= c.Counter
	}
	if c.Counter >= StarvationBound {
		return false
	}
	if p.Priority != c.Priority {
		return p.Priority < c.Priority
	}
	if p.Priority == proc.PrioUser && p.Nice != c.Nice {
		return p.Nice < c.Nice
	}
	return p.Counter >= c.Counter
}
