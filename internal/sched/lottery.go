package sched

import (
	"math/rand/v2"

	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

type lottery struct {
	rng *rand.Rand
}

// Lottery returns the randomized policy. Every READY process holds tickets
// in proportion to its urgency and waiting credit; one ticket is drawn per
// round. Draws are reproducible for a given seed.
func Lottery(seed uint64) Policy {
	return &lottery{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (*lottery) Name() model.PolicyName { return model.PolicyLottery }

// tickets is the weight of p in a draw; always at least one.
func tickets(p *proc.Process) int {
	w := proc.PrioUser + 60 - p.Priority + p.Counter/10
	if w < 1 {
		return 1
	}
	return w
}

func (l *lottery) Pick(t *proc.Table) *proc.Process {
	total := 0
	for i := t.First(); i <= t.Last(); i++ {
		if p := t.Slot(i); ready(p) {
			total += tickets(p)
		}
	}
	next := t.Idle()
	if total == 0 {
		return next
	}

	draw := l.rng.IntN(total)
	chosen := false
	for i := t.First(); i <= t.Last(); i++ {
		p := t.Slot(i)
		if !ready(p) {
			continue
		}
		w := tickets(p)
		if !chosen && draw < w {
			next.Counter++
			next = p
			chosen = true
			continue
		}
		draw -= w
		p.Counter++
	}
	return next
}
