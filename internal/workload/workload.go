// Package workload loads simulation workloads: the processes to fork at
// boot, the behavior each one follows while it runs, and scripted events
// delivered from outside at fixed ticks.
package workload

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// DefaultTicks is the run length when a workload does not set one.
const DefaultTicks = 1000

// Workload is a parsed workload document.
type Workload struct {
	Name      string           `yaml:"name"`
	Policy    model.PolicyName `yaml:"policy"`
	Seed      uint64           `yaml:"seed"`
	Ticks     uint64           `yaml:"ticks"`
	TableSize int              `yaml:"table_size"`
	Frames    int              `yaml:"frames"`
	Processes []Process        `yaml:"processes"`
	Events    []Event          `yaml:"events"`
}

// Process declares one process forked at boot.
type Process struct {
	Name     string   `yaml:"name"`
	Parent   string   `yaml:"parent"` // name of an earlier process; empty forks from IDLE
	Nice     *int     `yaml:"nice"`
	Alarm    uint64   `yaml:"alarm"`
	Regions  []Region `yaml:"regions"`
	Files    []string `yaml:"files"`
	Catch    []string `yaml:"catch"`
	Behavior string   `yaml:"behavior"`
}

// Region declares a region attached to a process before it first runs.
type Region struct {
	Slot   string `yaml:"slot"` // text, data, stack or heap
	Start  uint64 `yaml:"start"`
	Pages  int    `yaml:"pages"`
	Shared bool   `yaml:"shared"`
}

// Event actions.
const (
	ActionResume = "resume"
	ActionSignal = "signal"
	ActionKill   = "kill"
)

// Event is delivered to a process at a fixed tick, before the tick runs.
type Event struct {
	At     uint64 `yaml:"at"`
	Action string `yaml:"action"`
	Target string `yaml:"target"`
	Signal string `yaml:"signal"`
}

var regionSlots = map[string]int{
	"text":  proc.TEXT,
	"data":  proc.DATA,
	"stack": proc.STACK,
	"heap":  proc.HEAP,
}

// SlotIndex returns the attachment slot a region names.
func (r Region) SlotIndex() (int, bool) {
	i, ok := regionSlots[strings.ToLower(r.Slot)]
	return i, ok
}

// Load reads and parses a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes a workload document, fills defaults and validates it.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workload: %w", err)
	}
	if w.Policy == "" {
		w.Policy = model.DefaultPolicy
	}
	if w.Ticks == 0 {
		w.Ticks = DefaultTicks
	}
	if w.TableSize == 0 {
		w.TableSize = proc.NRProc
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the workload for semantic errors. It returns nil or an
// *model.APIError listing every problem found.
func (w *Workload) Validate() error {
	var errs []model.FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, model.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if w.TableSize < 2 {
		add("table_size", "table size %d leaves no room beside idle", w.TableSize)
	} else if len(w.Processes) > w.TableSize-1 {
		add("processes", "%d processes do not fit a table of %d", len(w.Processes), w.TableSize)
	}

	seen := make(map[string]bool, len(w.Processes))
	for i, p := range w.Processes {
		field := fmt.Sprintf("processes[%d]", i)
		switch {
		case p.Name == "":
			add(field+".name", "name is required")
		case seen[p.Name]:
			add(field+".name", "duplicate process name %q", p.Name)
		}
		if p.Parent != "" && !seen[p.Parent] {
			add(field+".parent", "parent %q is not declared before %q", p.Parent, p.Name)
		}
		seen[p.Name] = true

		if p.Nice != nil && (*p.Nice < 0 || *p.Nice >= 2*proc.NZero) {
			add(field+".nice", "nice %d out of range 0..%d", *p.Nice, 2*proc.NZero-1)
		}
		slots := make(map[int]bool)
		for j, r := range p.Regions {
			rf := fmt.Sprintf("%s.regions[%d]", field, j)
			slot, ok := r.SlotIndex()
			if !ok {
				add(rf+".slot", "unknown region slot %q", r.Slot)
			} else if slots[slot] {
				add(rf+".slot", "slot %q attached twice", r.Slot)
			}
			slots[slot] = true
			if r.Pages <= 0 {
				add(rf+".pages", "pages must be positive")
			}
		}
		for j, path := range p.Files {
			if !strings.HasPrefix(path, "/") {
				add(fmt.Sprintf("%s.files[%d]", field, j), "path %q must be absolute", path)
			}
		}
		for j, name := range p.Catch {
			sig, err := model.ParseSignal(name)
			if err != nil {
				add(fmt.Sprintf("%s.catch[%d]", field, j), "%v", err)
			} else if !sig.Catchable() {
				add(fmt.Sprintf("%s.catch[%d]", field, j), "%s cannot be caught", sig)
			}
		}
		if p.Behavior != "" {
			if _, err := CompileBehavior(p.Behavior); err != nil {
				add(field+".behavior", "%v", err)
			}
		}
	}

	for i, ev := range w.Events {
		field := fmt.Sprintf("events[%d]", i)
		if !seen[ev.Target] {
			add(field+".target", "unknown process %q", ev.Target)
		}
		switch ev.Action {
		case ActionResume, ActionKill:
		case ActionSignal:
			if _, err := model.ParseSignal(ev.Signal); err != nil {
				add(field+".signal", "%v", err)
			}
		default:
			add(field+".action", "unknown action %q; expected resume, signal or kill", ev.Action)
		}
		if ev.At == 0 || ev.At > w.Ticks {
			add(field+".at", "tick %d outside 1..%d", ev.At, w.Ticks)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError("invalid workload", errs...)
}
