package perf

// Kernel abstracts the perf_event_open(2) file-descriptor API so counters can
// be exercised without a PMU.
type Kernel interface {
	// Open requests a counter for attr scoped to pid/cpu and returns its fd
	Open(attr Attr, pid, cpu, groupFD int) (int, error)
	// Control issues one of the reset/enable/disable ioctls on fd
	Control(fd int, op ControlOp) error
	// Read fills buf with the current counter value
	Read(fd int, buf []byte) (int, error)
	// Close releases fd
	Close(fd int) error
}

// ControlOp is a counter control request.
type ControlOp int

const (
	ControlReset ControlOp = iota
	ControlEnable
	ControlDisable
)

func (op ControlOp) String() string {
	switch op {
	case ControlReset:
		return "reset"
	case ControlEnable:
		return "enable"
	case ControlDisable:
		return "disable"
	default:
		return "unknown"
	}
}

// State of a counter handle.
type State int

const (
	StateUnopened State = iota
	StateDisabled
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

const (
	// CallingProcess selects the process that opens the counter.
	CallingProcess = 0
	// AnyCPU counts on whichever CPU the process runs.
	AnyCPU = -1
	// NoGroup opens the counter as its own group leader.
	NoGroup = -1
)
