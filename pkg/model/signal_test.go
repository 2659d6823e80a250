package model

import "testing"

func TestParseSignal(t *testing.T) {
	tests := []struct {
		input   string
		want    Signal
		wantErr bool
	}{
		{"SIGALRM", SIGALRM, false},
		{"alrm", SIGALRM, false},
		{"CHLD", SIGCHLD, false},
		{"9", SIGKILL, false},
		{" sigcont ", SIGCONT, false},
		{"tstp", SIGTSTP, false},
		{"SIGTTIN", SIGTTIN, false},
		{"22", SIGTTOU, false},
		{"0", 0, true},
		{"SIGNOPE", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSignal(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSignal(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSignal(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSignal_String(t *testing.T) {
	if got := SIGCHLD.String(); got != "SIGCHLD" {
		t.Errorf("SIGCHLD.String() = %q", got)
	}
	if got := Signal(7).String(); got != "SIG7" {
		t.Errorf("Signal(7).String() = %q", got)
	}
}

func TestSignalsIn(t *testing.T) {
	mask := SIGALRM.Mask() | SIGCHLD.Mask()
	got := SignalsIn(mask)
	if len(got) != 2 || got[0] != SIGALRM || got[1] != SIGCHLD {
		t.Errorf("SignalsIn = %v, want [SIGALRM SIGCHLD]", got)
	}
	if len(SignalsIn(0)) != 0 {
		t.Error("SignalsIn(0) should be empty")
	}
}
