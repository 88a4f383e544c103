// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package label recognizes the ANSI-style 80-byte VOL1/HDR1/HDR2/EOF1/EOF2
// labels that bracket a saveset on the record stream and extracts the
// blocksize and saveset identity the rest of the decoder needs (spec.md
// §4.2).
package label

import (
	"strconv"
	"strings"

	"github.com/cznic/vmsbackup/tape"
)

const labelSize = 80

// Info is what a successful Open reports about the saveset it found.
type Info struct {
	VolumeName string // VOL1 columns 5-18, informational; Open leaves it empty, VOL1 labels are skipped
	Name       string // HDR1 columns 5-18, the saveset file name
	Sequence   int    // HDR1 columns 32-35, zero-padded ASCII decimal
	Blocksize  int    // HDR2 columns 6-10, zero-padded ASCII decimal
}

// Selector picks which saveset Open should return when a tape holds more
// than one. The zero Selector matches the first saveset found.
type Selector struct {
	Name    string // match HDR1 name (14-char comparison); "" = don't filter by name
	Ordinal int    // 1-origin index among HDR1s seen; 0 = don't filter by ordinal
}

func (s Selector) matches(name string, ordinal int) bool {
	if s.Name != "" && !hdr1NameEqual(s.Name, name) {
		return false
	}
	if s.Ordinal != 0 && s.Ordinal != ordinal {
		return false
	}
	return true
}

func hdr1NameEqual(want, got string) bool {
	const n = 14
	return padTo(want, n) == padTo(got, n)
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// Scanner consumes a tape.Source's record stream looking for saveset
// boundaries. One Scanner is used for the whole tape; Open/Close pairs are
// called once per saveset (spec.md §4.10 "rdhead ... rdtail").
type Scanner struct {
	src      tape.Source
	hdr1Seen int
}

// NewScanner wraps src.
func NewScanner(src tape.Source) *Scanner {
	return &Scanner{src: src}
}

// Outcome reports what Open found.
type Outcome int

const (
	Opened Outcome = iota
	NoMoreSavesets
)

// Open skips forward to the next saveset matching sel (or the next saveset
// at all, if sel is the zero value), consuming and discarding any
// intervening non-label records and any VOL1/HDR1/HDR2 triple that does not
// match sel (spec.md §4.2 "Selection policy"). Two consecutive tape marks
// while searching for HDR1 means there are no more savesets.
func (s *Scanner) Open(sel Selector) (Info, Outcome, error) {
	buf := make([]byte, labelSize)
	consecutiveTM := 0

	for {
		n, isMark, err := s.src.Next(buf)
		if err != nil {
			return Info{}, NoMoreSavesets, err
		}

		if isMark {
			consecutiveTM++
			if consecutiveTM >= 2 {
				return Info{}, NoMoreSavesets, nil
			}
			continue
		}
		consecutiveTM = 0

		if n < labelSize || !isLabel(buf[:n], "HDR1") {
			continue
		}

		s.hdr1Seen++
		info := Info{
			Name:     strings.TrimRight(string(buf[4:18]), " "),
			Sequence: atoiZeroPadded(buf[31:35]),
		}

		vol1, hdr2, ok := s.readVolAndHdr2(buf[:n])
		if !ok {
			continue
		}
		info.VolumeName = vol1
		info.Blocksize = hdr2

		if !sel.matches(info.Name, s.hdr1Seen) {
			s.skipToTapeMark()
			continue
		}

		return info, Opened, nil
	}
}

// readVolAndHdr2 is called with the just-read HDR1 label in hand; VOL1
// precedes HDR1 and HDR2 follows it, so it reads forward, skipping non-label
// records, until it finds HDR2. A VOL1 record that preceded HDR1 has already
// been skipped by Open, and the volumeName result is always empty: only the
// HDR1/HDR2 pair is used, which is all C10 needs to proceed.
func (s *Scanner) readVolAndHdr2(hdr1 []byte) (volumeName string, blocksize int, ok bool) {
	buf := make([]byte, labelSize)
	for {
		n, isMark, err := s.src.Next(buf)
		if err != nil || isMark {
			return "", 0, false
		}
		if n < labelSize {
			continue
		}
		if isLabel(buf[:n], "HDR2") {
			return "", atoiZeroPadded(buf[5:10]), true
		}
		if isLabel(buf[:n], "HDR1") || isLabel(buf[:n], "EOF1") {
			// Malformed pairing; give up on this saveset attempt.
			return "", 0, false
		}
		// Non-label filler between HDR1 and HDR2; keep scanning.
	}
}

// skipToTapeMark discards records until (and including) the next tape mark,
// used when a VOL1/HDR1/HDR2 triple does not match the caller's Selector
// (spec.md §4.2).
func (s *Scanner) skipToTapeMark() {
	buf := make([]byte, labelSize)
	for {
		_, isMark, err := s.src.Next(buf)
		if err != nil || isMark {
			return
		}
	}
}

// Close consumes records up to and including the next EOF1/EOF2 closure
// pair, discarding intervening data records (spec.md §4.10 "rdtail").
func (s *Scanner) Close() error {
	buf := make([]byte, labelSize)
	seenEOF1 := false
	for {
		n, isMark, err := s.src.Next(buf)
		if err != nil {
			return err
		}
		if isMark {
			if seenEOF1 {
				return nil
			}
			continue
		}
		if n >= labelSize && isLabel(buf[:n], "EOF1") {
			seenEOF1 = true
			continue
		}
		if seenEOF1 && n >= labelSize && isLabel(buf[:n], "EOF2") {
			continue
		}
	}
}

func isLabel(b []byte, ident string) bool {
	return len(b) >= len(ident) && string(b[:len(ident)]) == ident
}

// atoiZeroPadded parses a zero-padded ASCII decimal field, tolerating
// trailing spaces; a field that fails to parse reports 0.
func atoiZeroPadded(b []byte) int {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
