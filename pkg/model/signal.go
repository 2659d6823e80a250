package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Signal is a signal number.
type Signal int

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGQUIT Signal = 3
	SIGKILL Signal = 9
	SIGUSR1 Signal = 10
	SIGUSR2 Signal = 12
	SIGALRM Signal = 14
	SIGTERM Signal = 15
	SIGCHLD Signal = 17
	SIGCONT Signal = 18
	SIGSTOP Signal = 19
	SIGTSTP Signal = 20
	SIGTTIN Signal = 21
	SIGTTOU Signal = 22
)

var signalNames = map[Signal]string{
	SIGHUP:  "SIGHUP",
	SIGINT:  "SIGINT",
	SIGQUIT: "SIGQUIT",
	SIGKILL: "SIGKILL",
	SIGUSR1: "SIGUSR1",
	SIGUSR2: "SIGUSR2",
	SIGALRM: "SIGALRM",
	SIGTERM: "SIGTERM",
	SIGCHLD: "SIGCHLD",
	SIGCONT: "SIGCONT",
	SIGSTOP: "SIGSTOP",
	SIGTSTP: "SIGTSTP",
	SIGTTIN: "SIGTTIN",
	SIGTTOU: "SIGTTOU",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "SIG" + strconv.Itoa(int(s))
}

// Mask returns the bit for s in a pending-signal mask.
func (s Signal) Mask() uint32 {
	return 1 << uint(s)
}

// Catchable returns false for signals whose disposition cannot be changed.
func (s Signal) Catchable() bool {
	return s != SIGKILL && s != SIGSTOP
}

// ParseSignal accepts "SIGALRM", "ALRM", "alrm" or a decimal number.
func ParseSignal(s string) (Signal, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("signal %d out of range", n)
		}
		return Signal(n), nil
	}
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	for sig, name := range signalNames {
		if name == s {
			return sig, nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

// SignalsIn lists the signals set in a pending mask, lowest number first.
func SignalsIn(mask uint32) []Signal {
	var out []Signal
	for i := 1; i < 32; i++ {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, Signal(i))
		}
	}
	return out
}
