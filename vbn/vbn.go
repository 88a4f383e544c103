// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vbn implements the per-file virtual-block reassembly automaton
// (spec.md §4.7, C7): it converts a sequence of VBN record payloads into a
// file's logical record stream and drives an output Sink under one of four
// record formats (fixed, variable-length, variable-with-fixed-control,
// stream).
package vbn

import "github.com/cznic/vmsbackup/saveset"

// VFCPolicy controls how VFC carriage-control bytes are handled on
// extraction (spec.md §9 "Design Notes").
type VFCPolicy int

const (
	// VFCDiscard drops the two control bytes entirely: no carriage
	// control is emitted, only the record payload.
	VFCDiscard VFCPolicy = iota
	// VFCDecode translates the control bytes into the carriage-control
	// effect they describe (spec.md §4.7 "VFC carriage-control
	// semantics").
	VFCDecode
	// VFCKeep leaves the two control bytes in the primary output,
	// in-line with the record data, untranslated.
	VFCKeep
)

// Sink is what a Decoder writes reassembled bytes to: the primary
// (translated) output and, if open, the byte-faithful alternate output
// (spec.md §4.7, §4.8).
type Sink interface {
	WritePrimary(p []byte) error
	WriteAlternate(p []byte) error
}

// Result reports what a Process call observed. The skip-bits context is
// owned by the caller (the saveset driver, spec.md §9 "lifted into a
// Decoder context"), so Process never sets them directly: it only tells the
// caller what happened.
type Result int

const (
	// ResultContinue means Process consumed as much of payload as the
	// file's remaining declared size allowed; there may be more VBN
	// records still to come for this file.
	ResultContinue Result = iota
	// ResultEndOfFile means a 0xFFFF record-length sentinel was seen: the
	// caller should raise SKIP_TO_FILE (spec.md §4.7 "GET_RCD_COUNT").
	ResultEndOfFile
)

// ErrFormat reports a recfmt outside the known set (spec.md §7
// "FormatError").
type ErrFormat struct {
	RecFmt saveset.RecFmt
}

func (e *ErrFormat) Error() string { return "vbn: undefined record format" }

// Decoder is the per-file reassembly automaton (spec.md §4.7, C7).
type Decoder struct {
	File   *saveset.File
	Sink   Sink
	Policy VFCPolicy

	vfc0, vfc1 byte
	pending    []byte // carries a partial 2-byte field split across a block boundary
}

// New returns a Decoder for f, writing through sink under policy. f's
// FileState should be saveset.IDLE (the zero value) for a freshly decoded
// file header.
func New(f *saveset.File, sink Sink, policy VFCPolicy) *Decoder {
	return &Decoder{File: f, Sink: sink, Policy: policy}
}

// Process consumes one VBN record's payload, advancing the automaton and
// writing bytes to Sink as records complete. It returns ResultEndOfFile as
// soon as the file's logical end-of-data sentinel is seen; the caller must
// not call Process again for this file afterwards.
func (d *Decoder) Process(payload []byte) (Result, error) {
	f := d.File
	idx := 0

	if f.FileState == saveset.IDLE {
		if f.RecLen != 0 {
			f.FileState = saveset.GetData
		} else {
			f.FileState = saveset.GetRcdCount
		}
	}

	for idx < len(payload) && f.InboundIndex < f.Size {
		switch f.RecFmt.Base() {
		case saveset.FIX, saveset.FIX11, saveset.STM, saveset.STMLF, saveset.RAW:
			if err := d.copyThrough(payload, &idx); err != nil {
				return ResultContinue, err
			}

		case saveset.STMCR:
			if err := d.copyStmCR(payload, &idx); err != nil {
				return ResultContinue, err
			}

		case saveset.VAR, saveset.VFC:
			res, err := d.stepVarVFC(payload, &idx)
			if err != nil || res == ResultEndOfFile {
				return res, err
			}

		default:
			f.SetError("format", f.InboundIndex)
			return ResultContinue, &ErrFormat{RecFmt: f.RecFmt}
		}
	}
	return ResultContinue, nil
}

// copyThrough streams bytes straight through for recfmt in
// {FIX,FIX11,STM,STMLF,RAW}: no length prefix, write until size is reached
// (spec.md §4.7).
func (d *Decoder) copyThrough(payload []byte, idx *int) error {
	f := d.File
	n := len(payload) - *idx
	if remain := f.Size - f.InboundIndex; int64(n) > remain {
		n = int(remain)
	}
	if err := d.write(payload[*idx : *idx+n]); err != nil {
		return err
	}
	*idx += n
	f.InboundIndex += int64(n)
	return nil
}

// copyStmCR is FAB_dol_C_STMCR: every '\r' in the input becomes '\n' in the
// primary output; the alternate output keeps the untranslated bytes.
func (d *Decoder) copyStmCR(payload []byte, idx *int) error {
	f := d.File
	n := len(payload) - *idx
	if remain := f.Size - f.InboundIndex; int64(n) > remain {
		n = int(remain)
	}
	raw := payload[*idx : *idx+n]
	translated := make([]byte, n)
	for i, c := range raw {
		if c == '\r' {
			c = '\n'
		}
		translated[i] = c
	}
	if err := d.writePrimaryOnly(translated); err != nil {
		return err
	}
	if err := d.writeAlt(raw); err != nil {
		return err
	}
	*idx += n
	f.InboundIndex += int64(n)
	return nil
}

// stepVarVFC advances one step of the VAR/VFC automaton: GET_RCD_COUNT,
// GET_VFC, or GET_DATA (spec.md §4.7).
func (d *Decoder) stepVarVFC(payload []byte, idx *int) (Result, error) {
	f := d.File

	switch f.FileState {
	case saveset.GetRcdCount:
		return d.stepGetRcdCount(payload, idx)
	case saveset.GetVFC:
		return ResultContinue, d.stepGetVFC(payload, idx)
	default: // GetData
		return ResultContinue, d.stepGetData(payload, idx)
	}
}

func (d *Decoder) stepGetRcdCount(payload []byte, idx *int) (Result, error) {
	f := d.File

	b, ok := d.take(payload, idx, 2)
	if !ok {
		return ResultContinue, nil
	}
	f.InboundIndex += 2
	if err := d.writeAlt(b); err != nil {
		return ResultContinue, err
	}

	reclen := int(b[0]) | int(b[1])<<8
	f.RecCount++

	if reclen == 0xFFFF {
		f.InboundIndex = f.Size
		f.FileState = saveset.IDLE
		return ResultEndOfFile, nil
	}

	if reclen > f.RecSize+f.VFCSize {
		f.SetError("record", f.InboundIndex-2)
		// The two bytes just consumed as a (bogus) length prefix turn out
		// to be real file data; write them through before switching to
		// straight-through RAW copying for the remainder of the file
		// (original_source/vmsbackup.c's "Converting file type ... to RAW
		// to finish write").
		if err := d.writePrimaryOnly(b); err != nil {
			return ResultContinue, err
		}
		f.RecFmt = saveset.RAW
		f.FileState = saveset.GetData
		f.RecLen = 0
		return ResultContinue, nil
	}

	f.RecLen = reclen
	if f.RecFmt.Base() == saveset.VFC && f.VFCSize == 2 {
		f.FileState = saveset.GetVFC
	} else {
		f.FileState = saveset.GetData
	}
	return ResultContinue, nil
}

func (d *Decoder) stepGetVFC(payload []byte, idx *int) error {
	f := d.File

	b, ok := d.take(payload, idx, 2)
	if !ok {
		return nil
	}
	f.InboundIndex += 2
	d.vfc0, d.vfc1 = b[0], b[1]

	if err := d.writeAlt(b); err != nil {
		return err
	}

	switch d.Policy {
	case VFCKeep:
		f.RecLen -= 2
		if err := d.writePrimaryOnly(b); err != nil {
			return err
		}
	case VFCDiscard, VFCDecode:
		f.RecLen -= 2
		if d.Policy == VFCDecode {
			if err := d.emitLeadingControl(d.vfc0); err != nil {
				return err
			}
		}
	}

	f.FileState = saveset.GetData
	return nil
}

func (d *Decoder) stepGetData(payload []byte, idx *int) error {
	f := d.File

	n := len(payload) - *idx
	if n > f.RecLen {
		n = f.RecLen
	}
	// Size-exceeded policy (spec.md §4.7): trim to what the declared size
	// still allows; the rest of this block's record data is discarded.
	if remain := f.Size - f.InboundIndex; int64(n) > remain {
		n = int(remain)
	}

	chunk := payload[*idx : *idx+n]
	if err := d.write(chunk); err != nil {
		return err
	}
	*idx += n
	f.InboundIndex += int64(n)
	f.RecLen -= n

	if f.RecLen != 0 {
		return nil
	}

	if err := d.onRecordComplete(); err != nil {
		return err
	}

	if f.InboundIndex%2 != 0 {
		if pad, ok := d.take(payload, idx, 1); ok {
			f.InboundIndex++
			f.RecPadding++
			if err := d.writeAlt(pad); err != nil {
				return err
			}
		}
	}

	f.FileState = saveset.GetRcdCount
	return nil
}

// onRecordComplete emits the trailing newline/control a finished VAR/VFC
// record gets (spec.md §4.7 "emit trailing carriage control per vfc1
// (DECODE mode) or a single newline (attribute CR/FTN/PRN present)").
func (d *Decoder) onRecordComplete() error {
	f := d.File
	if f.RecFmt.Base() == saveset.VFC && d.Policy == VFCDecode {
		return d.emitTrailingControl()
	}
	if f.RecAttr&(saveset.AttrCR|saveset.AttrFTN|saveset.AttrPRN) != 0 {
		return d.writePrimaryOnly([]byte{'\n'})
	}
	return nil
}

// emitLeadingControl implements the vfc0 (pre) classification (spec.md
// §4.7).
func (d *Decoder) emitLeadingControl(vfc0 byte) error {
	switch vfc0 {
	case 0x00:
		return nil
	case ' ', '$':
		return d.writePrimaryOnly([]byte{'\n'})
	case '+':
		return nil
	case '0':
		return d.writePrimaryOnly([]byte{'\n', '\n'})
	case '1':
		return d.writePrimaryOnly([]byte{'\f'})
	default:
		return d.writePrimaryOnly([]byte{'\n'})
	}
}

// emitTrailingControl implements the vfc1 (post) classification (spec.md
// §4.7): the top 3 bits select the action; the low bits of a class-4 byte
// are a literal byte to emit.
func (d *Decoder) emitTrailingControl() error {
	b := d.vfc1
	if b == 0 {
		return nil
	}
	switch class := int(b >> 5); {
	case class <= 3:
		for i := 0; i < class; i++ {
			if err := d.writePrimaryOnly([]byte{'\n'}); err != nil {
				return err
			}
		}
		return d.writePrimaryOnly([]byte{'\r'})
	case class == 4:
		return d.writePrimaryOnly([]byte{b & 0x1F})
	default: // 5..7
		return d.writePrimaryOnly([]byte{'\r'})
	}
}

// take consumes up to n bytes from payload starting at *idx, after first
// draining any bytes carried over from a previous call in d.pending. If
// fewer than n bytes are currently available, the available bytes are
// stashed in d.pending and ok is false: the caller should return and wait
// for the rest to arrive with the next VBN record.
func (d *Decoder) take(payload []byte, idx *int, n int) (b []byte, ok bool) {
	avail := len(d.pending) + (len(payload) - *idx)
	if avail < n {
		d.pending = append(d.pending, payload[*idx:]...)
		*idx = len(payload)
		return nil, false
	}

	b = make([]byte, n)
	copied := copy(b, d.pending)
	remain := n - copied
	copy(b[copied:], payload[*idx:*idx+remain])
	*idx += remain
	d.pending = d.pending[:0]
	return b, true
}

func (d *Decoder) write(chunk []byte) error {
	if err := d.writePrimaryOnly(chunk); err != nil {
		return err
	}
	return d.writeAlt(chunk)
}

func (d *Decoder) writePrimaryOnly(chunk []byte) error {
	if err := d.Sink.WritePrimary(chunk); err != nil {
		d.File.SetError("io", d.File.InboundIndex)
		return err
	}
	d.File.OutboundIndex += int64(len(chunk))
	return nil
}

func (d *Decoder) writeAlt(chunk []byte) error {
	if err := d.Sink.WriteAlternate(chunk); err != nil {
		d.File.SetError("io", d.File.InboundIndex)
		return err
	}
	d.File.AltboundIndex += int64(len(chunk))
	return nil
}
