package sched

import (
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

type aging struct{}

// Aging returns the default policy: the READY process with the most waiting
// credit wins. Each comparison awards the loser one unit of credit, so a
// process that keeps losing eventually wins. Ties keep the earlier entry.
// IDLE only runs when nothing else is READY.
func Aging() Policy { return aging{} }

func (aging) Name() model.PolicyName { return model.PolicyAging }

func (aging) Pick(t *proc.Table) *proc.Process {
	next := t.Idle()
	for i := t.First(); i <= t.Last(); i++ {
		p := t.Slot(i)
		if !ready(p) {
			continue
		}
		if next.IsIdle() || p.Counter > next.Counter {
			next.Counter++
			next = p
		} else {
			p.Counter++
		}
	}
	return next
}
