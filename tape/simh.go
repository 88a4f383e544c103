// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tape

import (
	"encoding/binary"
	"io"

	"github.com/cznic/mathutil"
)

// eomMarker is the SIMH end-of-medium sentinel: a leading length field of
// 0xFFFFFFFF (-1 interpreted as a signed 32-bit value), with no trailing
// length and no payload.
const eomMarker = 0xFFFFFFFF

var _ Source = (*SimhImageSource)(nil)

// SimhImageSource is a Source backed by a SIMH .tap image: repeated
// `<u32 len LE><len bytes><u32 len LE>`; len == 0 is a tape mark (a single
// u32, no trailer); len == eomMarker is end-of-medium (terminal). Any
// mismatch between the leading and trailing length is a framing error
// (spec.md §6).
type SimhImageSource struct {
	r     io.Reader
	gate  markGate
	stats Stats
	hdr   [4]byte
}

// NewSimhImageSource wraps r as a Source.
func NewSimhImageSource(r io.Reader) *SimhImageSource {
	return &SimhImageSource{r: r}
}

// Next implements Source.
func (s *SimhImageSource) Next(buf []byte) (n int, isMark bool, err error) {
	if s.gate.done {
		return 0, true, nil
	}

	if _, err = io.ReadFull(s.r, s.hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			s.gate.observe(true, true)
			return 0, true, nil
		}
		s.stats.FramingErrs++
		return 0, false, &ErrRead{Err: err}
	}

	lead := binary.LittleEndian.Uint32(s.hdr[:])
	switch {
	case lead == eomMarker:
		s.gate.observe(true, true)
		return 0, true, nil
	case lead == 0:
		s.stats.TapeMarks++
		s.gate.observe(true, false)
		return 0, true, nil
	}

	n, err = s.readFramedPayload(buf, int(lead))
	if err != nil {
		return 0, false, err
	}

	s.stats.RecordsRead++
	s.gate.observe(false, false)
	return n, false, nil
}

func (s *SimhImageSource) readFramedPayload(buf []byte, want int) (n int, err error) {
	keep := mathutil.Min(want, len(buf))
	if _, err = io.ReadFull(s.r, buf[:keep]); err != nil {
		s.stats.FramingErrs++
		return 0, &ErrRead{Err: err}
	}

	if drop := want - keep; drop > 0 {
		if _, err = io.CopyN(io.Discard, s.r, int64(drop)); err != nil {
			s.stats.FramingErrs++
			return 0, &ErrRead{Err: err}
		}
		s.stats.BytesDropped += int64(drop)
	}

	var trail [4]byte
	if _, err = io.ReadFull(s.r, trail[:]); err != nil {
		s.stats.FramingErrs++
		return 0, &ErrRead{Err: err}
	}

	if binary.LittleEndian.Uint32(trail[:]) != uint32(want) {
		s.stats.FramingErrs++
		return 0, &ErrFraming{Msg: "leading/trailing record length mismatch"}
	}

	return keep, nil
}

// Stat implements Source.
func (s *SimhImageSource) Stat() Stats { return s.stats }

// Close implements Source.
func (s *SimhImageSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Done implements Source.
func (s *SimhImageSource) Done() bool { return s.gate.done }
