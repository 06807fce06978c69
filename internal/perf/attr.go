package perf

// Type https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/perf_event.h#L32
type Type uint32

const (
	// TypeHardware is one of the generalized hardware events
	TypeHardware Type = iota
	// TypeSoftware is a software-defined event provided by the kernel
	TypeSoftware
	// TypeTracepoint is a kernel tracepoint
	TypeTracepoint
	// TypeHWCache is a hardware cache event with its own config encoding
	TypeHWCache
	// TypeRaw is an implementation-specific event
	TypeRaw
	// TypeBreakpoint is a hardware breakpoint
	TypeBreakpoint
)

func (t Type) String() string {
	switch t {
	case TypeHardware:
		return "hardware"
	case TypeSoftware:
		return "software"
	case TypeTracepoint:
		return "tracepoint"
	case TypeHWCache:
		return "hw_cache"
	case TypeRaw:
		return "raw"
	case TypeBreakpoint:
		return "breakpoint"
	default:
		return "unknown"
	}
}

// Generalized hardware event selectors for TypeHardware.
const (
	CountHWCPUCycles uint64 = iota
	CountHWInstructions
	CountHWCacheReferences
	CountHWCacheMisses
	CountHWBranchInstructions
	CountHWBranchMisses
	CountHWBusCycles
	CountHWStalledCyclesFrontend
	CountHWStalledCyclesBackend
	CountHWRefCPUCycles
)

// AttrFlags mirrors the bitfield of perf_event_attr
type AttrFlags uint64

const (
	// AttrFlagsDisabled off by default
	AttrFlagsDisabled AttrFlags = 1 << iota
	// AttrFlagsInherit children inherit it
	AttrFlagsInherit
	// AttrFlagsPinned must always be on PMU
	AttrFlagsPinned
	// AttrFlagsExclusive only group on PMU
	AttrFlagsExclusive
	// AttrFlagsExcludeUser don't count user
	AttrFlagsExcludeUser
	// AttrFlagsExcludeKernel ditto kernel
	AttrFlagsExcludeKernel
	// AttrFlagsExcludeHV ditto hypervisor
	AttrFlagsExcludeHV
	// AttrFlagsExcludeIdle don't count when idle
	AttrFlagsExcludeIdle
)

// Has reports whether all bits of f are set.
func (a AttrFlags) Has(f AttrFlags) bool {
	return a&f == f
}

// Attr is the subset of perf_event_attr a counting (non-sampling) event needs.
type Attr struct {
	Type   Type
	Config uint64
	Flags  AttrFlags
}

// userSpaceOnly starts disabled and attributes only user-mode events.
const userSpaceOnly = AttrFlagsDisabled | AttrFlagsExcludeKernel | AttrFlagsExcludeHV
