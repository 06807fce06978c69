package perf

import (
	"encoding/binary"

	"codeberg.org/mutker/perfcollector/internal/errors"
)

const countSize = 8

// Counter owns one kernel performance counter.
type Counter struct {
	name   string
	attr   Attr
	kernel Kernel
	fd     int
	state  State
}

// NewCounter configures a user-space-only counter that starts disabled. It
// does not touch the kernel.
func NewCounter(name string, typ Type, config uint64, kernel Kernel) *Counter {
	return &Counter{
		name: name,
		attr: Attr{
			Type:   typ,
			Config: config,
			Flags:  userSpaceOnly,
		},
		kernel: kernel,
		fd:     -1,
	}
}

func (c *Counter) Name() string {
	return c.name
}

func (c *Counter) Attr() Attr {
	return c.attr
}

func (c *Counter) State() State {
	return c.state
}

// Open acquires the kernel resource. On failure the counter stays unopened.
func (c *Counter) Open(pid, cpu, groupFD int) error {
	errFactory := errors.New()

	if c.state != StateUnopened {
		return errFactory.WithData(ErrAlreadyOpen, c.name)
	}

	fd, err := c.kernel.Open(c.attr, pid, cpu, groupFD)
	if err != nil {
		return errFactory.Wrap(ErrOpenFailed, err).WithData(counterError{
			Counter: c.name,
			Op:      "open",
			Error:   err.Error(),
		})
	}

	c.fd = fd
	c.state = StateDisabled

	return nil
}

// Start zeroes the accumulated count and enables counting.
func (c *Counter) Start() error {
	if err := c.control(ControlReset); err != nil {
		return err
	}
	if err := c.control(ControlEnable); err != nil {
		return err
	}
	c.state = StateEnabled

	return nil
}

// Stop disables counting; the accumulated value is kept.
func (c *Counter) Stop() error {
	if err := c.control(ControlDisable); err != nil {
		return err
	}
	c.state = StateDisabled

	return nil
}

func (c *Counter) control(op ControlOp) error {
	errFactory := errors.New()

	if c.state == StateUnopened {
		return errFactory.WithData(ErrNotOpen, c.name)
	}

	if err := c.kernel.Control(c.fd, op); err != nil {
		return errFactory.Wrap(ErrControlFailed, err).WithData(counterError{
			Counter: c.name,
			Op:      op.String(),
			Error:   err.Error(),
		})
	}

	return nil
}

// Read returns the count accumulated since the last Start. Reads do not
// reset the counter. A failed or short read returns 0 and an error.
func (c *Counter) Read() (uint64, error) {
	errFactory := errors.New()

	if c.state == StateUnopened {
		return 0, errFactory.WithData(ErrNotOpen, c.name)
	}

	var buf [countSize]byte
	n, err := c.kernel.Read(c.fd, buf[:])
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err).WithData(counterError{
			Counter: c.name,
			Op:      "read",
			Error:   err.Error(),
		})
	}
	if n != countSize {
		return 0, errFactory.WithData(ErrReadFailed, struct {
			Counter string
			Bytes   int
		}{
			Counter: c.name,
			Bytes:   n,
		})
	}

	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Close releases the kernel resource. It is safe to call on an unopened or
// already closed counter.
func (c *Counter) Close() error {
	if c.state == StateUnopened {
		return nil
	}

	fd := c.fd
	c.fd = -1
	c.state = StateUnopened

	if err := c.kernel.Close(fd); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err).WithData(counterError{
			Counter: c.name,
			Op:      "close",
			Error:   err.Error(),
		})
	}

	return nil
}
