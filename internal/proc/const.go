package proc

// Table geometry. These are build-time constants.
const (
	NRProc     = 64 // process table size, IDLE included
	NRPRegions = 4  // region attachments per process
	OpenMax    = 20 // open files per process
	NRSignals  = 23 // handler table size
)

// Region attachment slots.
const (
	TEXT  = 0
	DATA  = 1
	STACK = 2
	HEAP  = 3
)

// Quantum is the number of ticks a process runs before it is preempted.
const Quantum = 50

// Priorities. Lower values are more urgent; kernel sleep priorities are all
// below PrioUser, which every process gets back when it is picked to run.
const (
	PrioIO         = -100
	PrioBuffer     = -80
	PrioInode      = -60
	PrioSuperblock = -40
	PrioRegion     = -20
	PrioTTY        = 0
	PrioSig        = 20
	PrioUser       = 40
)

// NZero is the default nice value; valid nice values are 0..2*NZero-1.
const NZero = 20

// IntlvlUser is the interrupt level of a process running user code.
const IntlvlUser = 1
