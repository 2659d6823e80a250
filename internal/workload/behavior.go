package workload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// ActionKind is what a running process asks the kernel to do on a tick.
type ActionKind string

const (
	ActRun   ActionKind = "run"   // keep computing
	ActYield ActionKind = "yield" // give up the processor
	ActStop  ActionKind = "stop"  // stop itself
	ActFork  ActionKind = "fork"  // fork a child running the same behavior
	ActExit  ActionKind = "exit"  // exit with Arg as status
	ActAlarm ActionKind = "alarm" // arm an alarm Arg ticks out, 0 disarms
	ActNice  ActionKind = "nice"  // set nice to Arg
)

// Action is the parsed result of a behavior evaluation.
type Action struct {
	Kind ActionKind
	Arg  int
}

// Env is what a behavior can see of its process.
type Env struct {
	Tick    uint64
	PID     int
	Name    string
	Counter int
	UTime   uint64
	Nice    int
	Pending []string
}

// Behavior is a compiled behavior expression. A plain source is a
// JavaScript expression; a source wrapped in ${ } is a function body that
// returns the action. Either way the result is an action string such as
// "run", "exit 3" or "alarm 20"; undefined and null mean "run".
//
// A Behavior holds its own runtime and is not safe for concurrent use.
type Behavior struct {
	src  string
	prog *goja.Program
	vm   *goja.Runtime
}

// CompileBehavior compiles src once for repeated evaluation.
func CompileBehavior(src string) (*Behavior, error) {
	code := strings.TrimSpace(src)
	if strings.HasPrefix(code, "${") && strings.HasSuffix(code, "}") {
		code = fmt.Sprintf("(function() { %s })()", code[2:len(code)-1])
	} else {
		code = fmt.Sprintf("(%s)", code)
	}
	prog, err := goja.Compile("behavior", code, true)
	if err != nil {
		return nil, fmt.Errorf("compile behavior: %w", err)
	}
	return &Behavior{src: src, prog: prog, vm: goja.New()}, nil
}

// Source returns the behavior as written.
func (b *Behavior) Source() string { return b.src }

// Eval runs the behavior against env.
func (b *Behavior) Eval(env Env) (Action, error) {
	pending := env.Pending
	if pending == nil {
		pending = []string{}
	}
	vars := map[string]any{
		"tick":    env.Tick,
		"pid":     env.PID,
		"name":    env.Name,
		"counter": env.Counter,
		"utime":   env.UTime,
		"nice":    env.Nice,
		"pending": pending,
	}
	for k, v := range vars {
		if err := b.vm.Set(k, v); err != nil {
			return Action{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	val, err := b.vm.RunProgram(b.prog)
	if err != nil {
		return Action{}, fmt.Errorf("JavaScript error: %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return Action{Kind: ActRun}, nil
	}
	s, ok := val.Export().(string)
	if !ok {
		return Action{}, fmt.Errorf("behavior returned %v, want an action string", val.Export())
	}
	return ParseAction(s)
}

// ParseAction parses "run", "yield", "stop", "fork", "exit [status]",
// "alarm N" and "nice N".
func ParseAction(s string) (Action, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return Action{Kind: ActRun}, nil
	}
	kind := ActionKind(fields[0])
	switch kind {
	case ActRun, ActYield, ActStop, ActFork:
		if len(fields) != 1 {
			return Action{}, fmt.Errorf("action %q takes no argument", kind)
		}
		return Action{Kind: kind}, nil
	case ActExit:
		if len(fields) == 1 {
			return Action{Kind: kind}, nil
		}
	case ActAlarm, ActNice:
		if len(fields) == 1 {
			return Action{}, fmt.Errorf("action %q needs an argument", kind)
		}
	default:
		return Action{}, fmt.Errorf("unknown action %q", s)
	}
	if len(fields) != 2 {
		return Action{}, fmt.Errorf("action %q takes one argument", kind)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return Action{}, fmt.Errorf("action %q: bad argument %q", kind, fields[1])
	}
	if n < 0 {
		return Action{}, fmt.Errorf("action %q: negative argument %d", kind, n)
	}
	return Action{Kind: kind, Arg: n}, nil
}
