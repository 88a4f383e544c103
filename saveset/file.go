// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package saveset decodes the summary and file-header typed-record vectors
// (spec.md §4.5 C5, §4.6 C6) and defines the current-file descriptor (spec.md
// §3 "File Descriptor") that the rest of the decoder (vbn, output) operates
// on.
package saveset

import "time"

// RecFmt identifies a file's record structure (spec.md §3), confirmed
// against original_source/vmsbackup.c's FAB_dol_C_* defines.
type RecFmt int

const (
	RAW   RecFmt = 0
	FIX   RecFmt = 1
	VAR   RecFmt = 2
	VFC   RecFmt = 3
	STM   RecFmt = 4
	STMLF RecFmt = 5
	STMCR RecFmt = 6
	FIX11 RecFmt = 11

	// MailBit is FAB_M_MAIL: set on the recfmt byte of .MAI files, which
	// are always skipped (spec.md §3, §4.6).
	MailBit RecFmt = 0x20
)

// Base strips MailBit, the only high bit recfmt carries (spec.md §3).
func (r RecFmt) Base() RecFmt { return r &^ MailBit }

// IsMail reports whether MailBit is set.
func (r RecFmt) IsMail() bool { return r&MailBit != 0 }

func (r RecFmt) String() string {
	switch r.Base() {
	case RAW:
		return "RAW"
	case FIX:
		return "FIX"
	case VAR:
		return "VAR"
	case VFC:
		return "VFC"
	case STM:
		return "STM"
	case STMLF:
		return "STMLF"
	case STMCR:
		return "STMCR"
	case FIX11:
		return "FIX11"
	default:
		return "UNDEFINED"
	}
}

// RecAttr is the bitmask over FTN/CR/PRN/BLK record attributes (spec.md
// §3), confirmed against original_source/vmsbackup.c's FAB_dol_V_* defines.
type RecAttr int

const (
	AttrFTN RecAttr = 1 << iota
	AttrCR
	AttrPRN
	AttrBLK
)

func (a RecAttr) String() string {
	if a == 0 {
		return "NONE"
	}
	s := ""
	if a&AttrFTN != 0 {
		s += "FTN"
	}
	if a&AttrCR != 0 {
		s += "CR"
	}
	if a&AttrPRN != 0 {
		s += "PRN"
	}
	if a&AttrBLK != 0 {
		s += "BLK"
	}
	return s
}

// State is the per-file reassembly automaton's state (spec.md §4.7, C7).
type State int

const (
	IDLE State = iota
	GetRcdCount
	GetVFC
	GetData
)

// File is the single current-file descriptor parsed from a FILE typed
// record (spec.md §3 "File Descriptor"). Exactly one exists while a saveset
// is being processed: C6 creates it, C7 (package vbn) mutates it, C8
// (package output) destroys it on close.
type File struct {
	Name string
	Usr  uint16
	Grp  uint16

	RecFmt  RecFmt
	RecAttr RecAttr
	RecSize int
	VFCSize int

	NBlk int
	LNch int
	Size int64 // (nblk-1)*512 + lnch, or 0 if nblk == 0

	CTime, MTime, ATime, BTime             time.Time
	HasCTime, HasMTime, HasATime, HasBTime bool

	Directory bool

	InboundIndex  int64 // bytes of input consumed, including prefixes/VFC/pad
	OutboundIndex int64 // bytes written to the primary output
	AltboundIndex int64 // bytes written to the alternate output

	RecLen     int // outstanding VAR/VFC record bytes pending
	RecCount   int
	RecPadding int

	FileState State

	RecordError     bool
	BlkError        bool
	SizeError       bool
	FormatError     bool
	FirstErrorIndex int64
	haveFirstError  bool
}

// SetError records kind and preserves the first error's byte offset (spec.md
// §3 "first error index preserved").
func (f *File) SetError(kind string, index int64) {
	switch kind {
	case "record":
		f.RecordError = true
	case "blk":
		f.BlkError = true
	case "size":
		f.SizeError = true
	case "format":
		f.FormatError = true
	}
	if !f.haveFirstError {
		f.FirstErrorIndex = index
		f.haveFirstError = true
	}
}

// HasError reports whether any of the four error flags is set.
func (f *File) HasError() bool {
	return f.RecordError || f.BlkError || f.SizeError || f.FormatError
}

// Selectable reports whether this file should be opened for extraction at
// all: not a directory, not a mail file, and (for VAR/VFC) not declaring a
// zero record size (spec.md §4.6 "directory or mail -> SKIP_TO_FILE").
func (f *File) Selectable() bool {
	if f.Directory || f.RecFmt.IsMail() {
		return false
	}
	base := f.RecFmt.Base()
	if f.RecSize == 0 && (base == VAR || base == VFC) {
		return false
	}
	return true
}
