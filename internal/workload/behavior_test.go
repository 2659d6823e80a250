package workload

import "testing"

func TestBehavior_Eval(t *testing.T) {
	env := Env{Tick: 120, PID: 3, Name: "shell", Counter: 7, UTime: 40, Nice: 20, Pending: []string{"SIGUSR1"}}

	tests := []struct {
		name string
		src  string
		want Action
	}{
		{"literal", "'yield'", Action{Kind: ActYield}},
		{"ternary on tick", "tick > 100 ? 'stop' : 'run'", Action{Kind: ActStop}},
		{"exit with status", "'exit ' + pid", Action{Kind: ActExit, Arg: 3}},
		{"exit bare", "'exit'", Action{Kind: ActExit}},
		{"alarm", "'alarm ' + (counter * 2)", Action{Kind: ActAlarm, Arg: 14}},
		{"nice", "'nice ' + (nice + 5)", Action{Kind: ActNice, Arg: 25}},
		{"name", "name == 'shell' ? 'fork' : 'run'", Action{Kind: ActFork}},
		{"undefined runs", "undefined", Action{Kind: ActRun}},
		{"null runs", "null", Action{Kind: ActRun}},
		{"code block", "${ if (pending.indexOf('SIGUSR1') >= 0) return 'yield'; return 'run'; }", Action{Kind: ActYield}},
		{"code block without return", "${ var x = utime; }", Action{Kind: ActRun}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := CompileBehavior(tt.src)
			if err != nil {
				t.Fatalf("CompileBehavior: %v", err)
			}
			got, err := b.Eval(env)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBehavior_Rebinds(t *testing.T) {
	b, err := CompileBehavior("utime >= 3 ? 'exit' : 'run'")
	if err != nil {
		t.Fatalf("CompileBehavior: %v", err)
	}
	for utime, want := range []ActionKind{ActRun, ActRun, ActRun, ActExit} {
		got, err := b.Eval(Env{UTime: uint64(utime)})
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if got.Kind != want {
			t.Errorf("utime %d: Kind = %q, want %q", utime, got.Kind, want)
		}
	}
}

func TestBehavior_Errors(t *testing.T) {
	if _, err := CompileBehavior("tick +"); err == nil {
		t.Error("CompileBehavior(syntax error) = nil error")
	}

	tests := []struct {
		name string
		src  string
	}{
		{"throws", "${ throw new Error('boom'); }"},
		{"not a string", "42"},
		{"unknown action", "'dance'"},
		{"reference error", "nosuchvar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := CompileBehavior(tt.src)
			if err != nil {
				t.Fatalf("CompileBehavior: %v", err)
			}
			if _, err := b.Eval(Env{}); err == nil {
				t.Error("Eval() = nil error")
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"run", Action{Kind: ActRun}, false},
		{"", Action{Kind: ActRun}, false},
		{"  YIELD ", Action{Kind: ActYield}, false},
		{"exit 2", Action{Kind: ActExit, Arg: 2}, false},
		{"alarm 0", Action{Kind: ActAlarm}, false},
		{"alarm", Action{}, true},
		{"nice x", Action{}, true},
		{"nice -3", Action{}, true},
		{"stop now", Action{}, true},
		{"exit 1 2", Action{}, true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAction(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
