package model

import "time"

// EventKind classifies a kernel trace event.
type EventKind string

const (
	EventFork       EventKind = "fork"
	EventForkFailed EventKind = "fork_failed"
	EventSwitch     EventKind = "switch"
	EventStop       EventKind = "stop"
	EventResume     EventKind = "resume"
	EventSignal     EventKind = "signal"
	EventAlarm      EventKind = "alarm"
	EventExit       EventKind = "exit"
	EventReap       EventKind = "reap"
)

// Event is one kernel trace record. PID is the subject of the event and
// Target the other party (child, father, next process), -1 when absent.
type Event struct {
	RunID     string    `json:"run_id,omitempty"`
	Seq       int       `json:"seq"`
	Tick      uint64    `json:"tick"`
	Kind      EventKind `json:"kind"`
	PID       int       `json:"pid"`
	Target    int       `json:"target"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one recorded simulation or monitor session.
type Run struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Policy     PolicyName     `json:"policy"`
	TableSize  int            `json:"table_size"`
	Quantum    int            `json:"quantum"`
	Seed       uint64         `json:"seed"`
	Ticks      uint64         `json:"ticks"`
	Events     int            `json:"events"`
	Summary    map[string]int `json:"summary,omitempty"` // dispatches per process
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
}
