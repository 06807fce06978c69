//go:build !linux

package perf

import "codeberg.org/mutker/perfcollector/internal/errors"

type systemKernel struct{}

// SystemKernel returns a Kernel that refuses every request; perf_event_open
// only exists on Linux.
func SystemKernel() Kernel {
	return systemKernel{}
}

func (systemKernel) Open(Attr, int, int, int) (int, error) {
	return -1, errors.New().New(ErrUnsupported)
}

func (systemKernel) Control(int, ControlOp) error {
	return errors.New().New(ErrUnsupported)
}

func (systemKernel) Read(int, []byte) (int, error) {
	return 0, errors.New().New(ErrUnsupported)
}

func (systemKernel) Close(int) error {
	return errors.New().New(ErrUnsupported)
}
