package model

// ProcState represents the run state of a process table entry.
type ProcState string

const (
	ProcStateReady   ProcState = "READY"
	ProcStateRunning ProcState = "RUNNING"
	ProcStateStopped ProcState = "STOPPED"
	ProcStateZombie  ProcState = "ZOMBIE"
)

// String returns the string representation of the process state.
func (s ProcState) String() string {
	return string(s)
}

// ValidProcTransitions defines the allowed run-state transitions.
// A freshly claimed entry has no run state yet and enters READY through sched.
var ValidProcTransitions = map[ProcState][]ProcState{
	"":               {ProcStateReady},
	ProcStateReady:   {ProcStateRunning, ProcStateReady, ProcStateZombie},
	ProcStateRunning: {ProcStateReady, ProcStateStopped, ProcStateZombie},
	ProcStateStopped: {ProcStateReady, ProcStateZombie},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcState) CanTransitionTo(next ProcState) bool {
	for _, allowed := range ValidProcTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ProcFlag is the lifecycle flag of a process table slot.
type ProcFlag string

const (
	// ProcFlagFree marks an unused slot; every other field is meaningless.
	ProcFlagFree ProcFlag = "FREE"
	// ProcFlagNew marks a slot claimed by fork that is not yet runnable.
	ProcFlagNew ProcFlag = "NEW"
	// ProcFlagValid marks a fully initialized slot.
	ProcFlagValid ProcFlag = "VALID"
)

// String returns the string representation of the flag.
func (f ProcFlag) String() string {
	return string(f)
}

// PolicyName identifies a scheduling policy.
type PolicyName string

const (
	PolicyAging    PolicyName = "aging"
	PolicyPriority PolicyName = "priority"
	PolicyLottery  PolicyName = "lottery"
)

// DefaultPolicy is the policy used when none is configured.
const DefaultPolicy = PolicyAging
