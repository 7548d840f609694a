package blkdev

import (
	"io"
	"strconv"

	"go.uber.org/multierr"
)

// Multi routes drive numbers to an ordered list of child devices. Drive n
// is served by the n'th child, which sees itself as drive 0.
type Multi struct {
	devs []Device
}

var _ Device = (*Multi)(nil)

// NewMulti returns a Multi over devs. More devices may be added with Add.
func NewMulti(devs ...Device) *Multi {
	return &Multi{devs: append([]Device(nil), devs...)}
}

// Add appends dev and returns the drive number it is reachable at.
func (m *Multi) Add(dev Device) uint8 {
	m.devs = append(m.devs, dev)
	return uint8(len(m.devs) - 1)
}

// Len returns the number of drives.
func (m *Multi) Len() int { return len(m.devs) }

func (m *Multi) Initialize(drv uint8) Status {
	if int(drv) >= len(m.devs) {
		return StatusNoDisk
	}
	return m.devs[drv].Initialize(0)
}

func (m *Multi) Status(drv uint8) Status {
	if int(drv) >= len(m.devs) {
		return StatusNoDisk
	}
	return m.devs[drv].Status(0)
}

func (m *Multi) ReadSectors(drv uint8, dst []byte, sector uint64, count int) Result {
	if int(drv) >= len(m.devs) {
		return ResultParError
	}
	return m.devs[drv].ReadSectors(0, dst, sector, count)
}

func (m *Multi) WriteSectors(drv uint8, src []byte, sector uint64, count int) Result {
	if int(drv) >= len(m.devs) {
		return ResultParError
	}
	return m.devs[drv].WriteSectors(0, src, sector, count)
}

func (m *Multi) Control(drv uint8, ctl Control) Result {
	if int(drv) >= len(m.devs) {
		return ResultParError
	}
	return m.devs[drv].Control(0, ctl)
}

// SyncAll issues a Sync control to every initialized drive and returns the
// combined failures.
func (m *Multi) SyncAll() (err error) {
	for i, dev := range m.devs {
		if dev.Status(0)&StatusNoInit != 0 {
			continue
		}
		if res := dev.Control(0, &Sync{}); res != ResultOK {
			err = multierr.Append(err, &DriveError{Drive: uint8(i), Err: res})
		}
	}
	return err
}

// Close closes every child implementing io.Closer and returns the combined failures.
func (m *Multi) Close() (err error) {
	for i, dev := range m.devs {
		if c, ok := dev.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = multierr.Append(err, &DriveError{Drive: uint8(i), Err: cerr})
			}
		}
	}
	return err
}

// DriveError attributes a failure to a drive of a Multi.
type DriveError struct {
	Drive uint8
	Err   error
}

func (e *DriveError) Error() string {
	return "drive " + strconv.Itoa(int(e.Drive)) + ": " + e.Err.Error()
}

func (e *DriveError) Unwrap() error { return e.Err }
