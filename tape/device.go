// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tape

import "io"

// Device is the minimal set of methods this package needs from a tape drive
// opened in variable-block mode (mt_op MT_SETBLK 0): each Read call returns
// exactly one physical record, a zero-length Read is a tape mark, and Close
// releases the device.
//
// Real variable-block tape I/O is platform specific (MTIOCTOP et al.) and is
// deliberately kept out of this package: callers supply a Device, typically
// a thin OS-specific wrapper around the raw device file, built by the
// (out-of-scope) frame-level tooling named in spec.md §1.
type Device interface {
	io.Closer
	Read(p []byte) (n int, err error)
}

var _ Source = (*DeviceSource)(nil)

// DeviceSource is a Source backed by a live tape Device.
type DeviceSource struct {
	dev   Device
	gate  markGate
	stats Stats
}

// NewDeviceSource wraps dev as a Source.
func NewDeviceSource(dev Device) *DeviceSource {
	return &DeviceSource{dev: dev}
}

// Next implements Source.
func (s *DeviceSource) Next(buf []byte) (n int, isMark bool, err error) {
	if s.gate.done {
		return 0, true, nil
	}

	n, err = s.dev.Read(buf)
	switch {
	case err != nil && err != io.EOF:
		// A device read error still advances the mark gate so the
		// outer driver can make progress (spec.md §4.1).
		s.stats.FramingErrs++
		_, terminal := s.gate.observe(true, false)
		_ = terminal
		return 0, true, &ErrRead{Err: err}
	case n == 0:
		s.stats.TapeMarks++
		s.gate.observe(true, false)
		return 0, true, nil
	default:
		s.stats.RecordsRead++
		s.gate.observe(false, false)
		return n, false, nil
	}
}

// Stat implements Source.
func (s *DeviceSource) Stat() Stats { return s.stats }

// Close implements Source.
func (s *DeviceSource) Close() error { return s.dev.Close() }

// Done implements Source.
func (s *DeviceSource) Done() bool { return s.gate.done }
