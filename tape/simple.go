// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tape

import (
	"encoding/binary"
	"io"

	"github.com/cznic/mathutil"
)

var _ Source = (*SimpleImageSource)(nil)

// SimpleImageSource is a Source backed by a "simple" on-disk tape image:
// repeated `<u32 len LE><len bytes>`, where len == 0 denotes a tape mark
// (with no payload) and end-of-file of the underlying reader is end-of-tape
// (spec.md §6).
type SimpleImageSource struct {
	r     io.Reader
	gate  markGate
	stats Stats
	hdr   [4]byte
}

// NewSimpleImageSource wraps r as a Source.
func NewSimpleImageSource(r io.Reader) *SimpleImageSource {
	return &SimpleImageSource{r: r}
}

// Next implements Source.
func (s *SimpleImageSource) Next(buf []byte) (n int, isMark bool, err error) {
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

	length := binary.LittleEndian.Uint32(s.hdr[:])
	if length == 0 {
		s.stats.TapeMarks++
		s.gate.observe(true, false)
		return 0, true, nil
	}

	n, err = s.readPayload(buf, int(length))
	if err != nil {
		return 0, false, err
	}

	s.stats.RecordsRead++
	s.gate.observe(false, false)
	return n, false, nil
}

// readPayload consumes exactly want bytes from the underlying reader,
// copying up to len(buf) into buf and discarding the remainder (spec.md
// §4.1 "records larger than cap are not truncated silently").
func (s *SimpleImageSource) readPayload(buf []byte, want int) (n int, err error) {
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

	return keep, nil
}

// Stat implements Source.
func (s *SimpleImageSource) Stat() Stats { return s.stats }

// Close implements Source.
func (s *SimpleImageSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Done implements Source.
func (s *SimpleImageSource) Done() bool { return s.gate.done }
