// Package perftest provides an in-memory perf.Kernel for tests.
package perftest

import (
	"encoding/binary"
	"sync"

	"codeberg.org/mutker/perfcollector/internal/perf"
	"golang.org/x/sys/unix"
)

// Kernel is a fake perf.Kernel. Counters are keyed by their (type, config)
// pair; each Read of a counter returns the next value of its script, repeating
// the last value once the script is exhausted.
type Kernel struct {
	mu       sync.Mutex
	nextFD   int
	open     map[int]*event
	scripts  map[uint64][]uint64
	openErrs map[uint64]error
	readErrs map[uint64]error
	shortRd  map[uint64]bool
	opened   int
	closed   int
	controls []Control
}

// Control is one recorded ioctl.
type Control struct {
	Config uint64
	Op     perf.ControlOp
}

type event struct {
	attr    perf.Attr
	enabled bool
	reads   int
}

func New() *Kernel {
	return &Kernel{
		nextFD:   3,
		open:     make(map[int]*event),
		scripts:  make(map[uint64][]uint64),
		openErrs: make(map[uint64]error),
		readErrs: make(map[uint64]error),
		shortRd:  make(map[uint64]bool),
	}
}

// SetValues scripts the values returned by successive reads of a hardware counter.
func (k *Kernel) SetValues(config uint64, values ...uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.scripts[config] = values
}

// FailOpen makes opening the hardware counter fail with err.
func (k *Kernel) FailOpen(config uint64, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err == nil {
		err = unix.EACCES
	}
	k.openErrs[config] = err
}

// FailRead makes reads of the hardware counter fail with err.
func (k *Kernel) FailRead(config uint64, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err == nil {
		err = unix.EBADF
	}
	k.readErrs[config] = err
}

// ShortRead makes reads of the hardware counter return fewer than 8 bytes.
func (k *Kernel) ShortRead(config uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.shortRd[config] = true
}

func (k *Kernel) Open(attr perf.Attr, _, _, _ int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err, ok := k.openErrs[attr.Config]; ok {
		return -1, err
	}

	fd := k.nextFD
	k.nextFD++
	k.open[fd] = &event{attr: attr, enabled: !attr.Flags.Has(perf.AttrFlagsDisabled)}
	k.opened++

	return fd, nil
}

func (k *Kernel) Control(fd int, op perf.ControlOp) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	ev, ok := k.open[fd]
	if !ok {
		return unix.EBADF
	}
	k.controls = append(k.controls, Control{Config: ev.attr.Config, Op: op})

	switch op {
	case perf.ControlEnable:
		ev.enabled = true
	case perf.ControlDisable:
		ev.enabled = false
	}

	return nil
}

// current is the scripted value for the next read, without consuming it.
func (k *Kernel) current(ev *event) uint64 {
	script := k.scripts[ev.attr.Config]
	if len(script) == 0 {
		return 0
	}
	if ev.reads < len(script) {
		return script[ev.reads]
	}

	return script[len(script)-1]
}

func (k *Kernel) Read(fd int, buf []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	ev, ok := k.open[fd]
	if !ok {
		return 0, unix.EBADF
	}
	if err, ok := k.readErrs[ev.attr.Config]; ok {
		return 0, err
	}
	if k.shortRd[ev.attr.Config] {
		return 4, nil
	}

	value := k.current(ev)
	ev.reads++
	binary.NativeEndian.PutUint64(buf, value)

	return 8, nil
}

func (k *Kernel) Close(fd int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.open[fd]; !ok {
		return unix.EBADF
	}
	delete(k.open, fd)
	k.closed++

	return nil
}

// OpenCount is the number of fds currently held.
func (k *Kernel) OpenCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.open)
}

// Opened is the total number of successful opens.
func (k *Kernel) Opened() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.opened
}

// Closed is the total number of closes.
func (k *Kernel) Closed() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

// Enabled reports whether the hardware counter is open and counting.
func (k *Kernel) Enabled(config uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, ev := range k.open {
		if ev.attr.Config == config {
			return ev.enabled
		}
	}
	return false
}

// Controls returns the recorded ioctls in call order.
func (k *Kernel) Controls() []Control {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]Control, len(k.controls))
	copy(out, k.controls)
	return out
}
