package signal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/me/pmcore/internal/clock"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/internal/trace"
	"github.com/me/pmcore/pkg/model"
)

func testDeliverer(t *testing.T) (*Deliverer, *trace.Recorder, *proc.Table) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := trace.NewRecorder("run_test", nil, logger)
	tab := proc.NewTable(4)
	tab.Boot()
	return New(clock.New(), rec, logger), rec, tab
}

func TestSend_SetsPendingBit(t *testing.T) {
	d, rec, tab := testDeliverer(t)
	p, _ := tab.FindFree()
	p.Flags = model.ProcFlagValid
	p.PID = 4

	d.Send(p, model.SIGALRM)
	if !p.Pending(model.SIGALRM) {
		t.Error("SIGALRM not pending")
	}
	if rec.Count(model.EventSignal) != 1 {
		t.Errorf("signal events = %d, want 1", rec.Count(model.EventSignal))
	}
}

func TestSend_DropsFreeAndIgnored(t *testing.T) {
	d, rec, tab := testDeliverer(t)
	free := tab.Slot(2)
	d.Send(free, model.SIGCHLD)
	d.Send(nil, model.SIGCHLD)
	if free.Received != 0 {
		t.Error("free entry received a signal")
	}

	p := tab.Slot(1)
	p.Flags = model.ProcFlagValid
	p.Handlers[model.SIGCHLD] = proc.SigIgnore
	p.Handlers[model.SIGKILL] = proc.SigIgnore
	d.Send(p, model.SIGCHLD)
	d.Send(p, model.SIGKILL)
	d.Send(p, model.Signal(40))

	if p.Pending(model.SIGCHLD) {
		t.Error("ignored SIGCHLD delivered")
	}
	if !p.Pending(model.SIGKILL) {
		t.Error("SIGKILL cannot be ignored")
	}
	if rec.Total() != 1 {
		t.Errorf("events = %d, want 1", rec.Total())
	}
}

func TestSend_ContinueResumesStopped(t *testing.T) {
	d, _, tab := testDeliverer(t)
	p := tab.Slot(1)
	p.Flags = model.ProcFlagValid
	p.State = model.ProcStateStopped

	var resumed *proc.Process
	d.SetResumer(func(p *proc.Process) { resumed = p })

	d.Send(p, model.SIGCONT)
	if resumed != p {
		t.Error("SIGCONT did not resume the stopped process")
	}

	resumed = nil
	p.State = model.ProcStateReady
	d.Send(p, model.SIGCONT)
	if resumed != nil {
		t.Error("SIGCONT resumed a process that was not stopped")
	}
}

func TestNext_PopsLowestFirst(t *testing.T) {
	d, _, tab := testDeliverer(t)
	p := tab.Slot(1)
	p.Flags = model.ProcFlagValid
	d.Send(p, model.SIGCHLD)
	d.Send(p, model.SIGALRM)

	for _, want := range []model.Signal{model.SIGALRM, model.SIGCHLD} {
		sig, ok := d.Next(p)
		if !ok || sig != want {
			t.Fatalf("Next() = %v, %v; want %v", sig, ok, want)
		}
	}
	if _, ok := d.Next(p); ok {
		t.Error("Next() on empty mask returned a signal")
	}
}
