//go:build linux

package perf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type systemKernel struct{}

// SystemKernel returns the perf_event_open(2) backed Kernel.
func SystemKernel() Kernel {
	return systemKernel{}
}

func (systemKernel) Open(attr Attr, pid, cpu, groupFD int) (int, error) {
	pe := unix.PerfEventAttr{
		Type:   uint32(attr.Type),
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config: attr.Config,
		Bits:   uint64(attr.Flags),
	}

	return unix.PerfEventOpen(&pe, pid, cpu, groupFD, unix.PERF_FLAG_FD_CLOEXEC)
}

func (systemKernel) Control(fd int, op ControlOp) error {
	var req uint
	switch op {
	case ControlReset:
		req = unix.PERF_EVENT_IOC_RESET
	case ControlEnable:
		req = unix.PERF_EVENT_IOC_ENABLE
	case ControlDisable:
		req = unix.PERF_EVENT_IOC_DISABLE
	default:
		return unix.EINVAL
	}

	return unix.IoctlSetInt(fd, req, 0)
}

func (systemKernel) Read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func (systemKernel) Close(fd int) error {
	return unix.Close(fd)
}
