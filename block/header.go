// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block validates and walks saveset blocks (spec.md §4.4, C4): the
// 256-byte block header described in spec.md §3, and the 20-byte-prefixed
// typed record stream that follows it. It also implements the typed
// sub-record vector shared by the summary and file-header record payloads
// (spec.md §3 "Typed Sub-Records"); VBN record payloads are not parsed as a
// sub-record vector and are handed to the vbn package as raw file data.
package block

import "encoding/binary"

// HeaderSize is the fixed size of a block header; a block whose declared
// header size differs is rejected (spec.md §3 "header-size must equal
// 256").
const HeaderSize = 256

// RecordHeaderSize is the fixed size of the prefix preceding every typed
// record in a block's body (spec.md §3).
const RecordHeaderSize = 20

// Record type codes (rtype), confirmed against original_source/vmsbackup.c's
// brh_dol_k_* defines.
const (
	TypeNull    = 0
	TypeSummary = 1
	TypeVolume  = 2
	TypeFile    = 3
	TypeVBN     = 4
	TypePhysVol = 5
	TypeLBN     = 6
	TypeFID     = 7
)

// Header is the 256-byte block header (spec.md §3), field-for-field from
// original_source/vmsbackup.c's struct bbh. All integers are little-endian
// on the wire (spec.md §9 "Endianness").
type Header struct {
	Size        uint16
	OpSys       uint16
	SubSys      uint16
	Applic      uint16
	Number      uint32 // 1-origin, monotonically increasing within a saveset
	StrucLev    uint16
	VolNum      uint16
	CRC         uint32 // never validated (spec.md §1, §9 Open Question)
	Blocksize   uint32 // must be nonzero and equal the saveset's blocksize
	Flags       uint32
	SavesetName string
	FID         [3]uint16
	DID         [3]uint16
	Filename    string
	RType       uint8
	RAttrib     uint8
	RSize       uint16
	BktSize     uint8
	VFCSize     uint8
	MaxRec      uint16
	Filesize    uint32
	Checksum    uint16
}

// ErrHeader reports a malformed block header (spec.md §4.4 "fail
// conditions").
type ErrHeader struct {
	Msg string
}

func (e *ErrHeader) Error() string { return "block: header: " + e.Msg }

// Number extracts just the block number without validating the rest of the
// header. This is the bpool.BlockNumberFunc the look-ahead buffer pool uses
// to reorder buffers before C4's full header validation runs (spec.md §4.3,
// §4.4).
func Number(buf []byte) (uint32, error) {
	if len(buf) < HeaderSize {
		return 0, &ErrHeader{Msg: "short buffer"}
	}
	return binary.LittleEndian.Uint32(buf[8:12]), nil
}

// ParseHeader decodes the 256-byte block header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, &ErrHeader{Msg: "short buffer"}
	}

	le16 := binary.LittleEndian.Uint16
	le32 := binary.LittleEndian.Uint32

	var h Header
	h.Size = le16(buf[0:2])
	h.OpSys = le16(buf[2:4])
	h.SubSys = le16(buf[4:6])
	h.Applic = le16(buf[6:8])
	h.Number = le32(buf[8:12])
	h.StrucLev = le16(buf[32:34])
	h.VolNum = le16(buf[34:36])
	h.CRC = le32(buf[36:40])
	h.Blocksize = le32(buf[40:44])
	h.Flags = le32(buf[44:48])
	h.SavesetName = cString(buf[48:80])
	for i := 0; i < 3; i++ {
		h.FID[i] = le16(buf[80+2*i : 82+2*i])
		h.DID[i] = le16(buf[86+2*i : 88+2*i])
	}
	h.Filename = cString(buf[92:220])
	h.RType = buf[220]
	h.RAttrib = buf[221]
	h.RSize = le16(buf[222:224])
	h.BktSize = buf[224]
	h.VFCSize = buf[225]
	h.MaxRec = le16(buf[226:228])
	h.Filesize = le32(buf[228:232])
	h.Checksum = le16(buf[254:256])
	return h, nil
}

// Validate applies spec.md §4.4's block header sanity checks given the
// saveset's blocksize (discovered from HDR2, spec.md §4.2). A failure here
// means the caller should SKIP_TO_BLOCK.
func (h Header) Validate(savesetBlocksize int) error {
	switch {
	case h.Size != HeaderSize:
		return &ErrHeader{Msg: "declared header size is not 256"}
	case h.Applic > 1:
		return &ErrHeader{Msg: "applic field > 1"}
	case h.Blocksize == 0:
		return &ErrHeader{Msg: "block header blocksize is zero"}
	case savesetBlocksize == 0:
		return &ErrHeader{Msg: "saveset blocksize is zero"}
	case int(h.Blocksize) != savesetBlocksize:
		return &ErrHeader{Msg: "block header blocksize disagrees with saveset blocksize"}
	}
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
