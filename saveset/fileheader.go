// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saveset

import (
	"strings"

	"github.com/cznic/vmsbackup/block"
	"github.com/cznic/vmsbackup/epoch"
)

// File-header sub-record type codes (spec.md §4.6), confirmed against
// original_source/vmsbackup.c's FREC_* defines. IDs outside this set (and
// outside the tolerated-but-unknown ranges spec.md §4.6 names) are ignored,
// exactly as original_source/vmsbackup.c's FREC_UNK* cases do.
const (
	frecEnd       = 0x00
	frecFName     = 0x2a
	frecUID       = 0x2f
	frecFormat    = 0x34
	frecCTime     = 0x36
	frecMTime     = 0x37
	frecATime     = 0x38
	frecBTime     = 0x39
	frecDirectory = 0x49
)

const maxFilenameLen = 128

// DecodeFileHeader parses a FILE record's payload into a new current-file
// descriptor (spec.md §4.6, C6). The caller is responsible for closing any
// previously open output before calling this (spec.md §4.6 "Closes any open
// output, then consumes...").
func DecodeFileHeader(payload []byte) (*File, error) {
	subs, err := block.SubRecords(payload)
	if err != nil {
		return nil, err
	}

	f := &File{}
	for _, sr := range subs {
		switch sr.Type {
		case frecEnd:
			// End-of-list marker; nothing to decode.
		case frecFName:
			f.Name = boundedFilename(sr.Data)
		case frecUID:
			if len(sr.Data) >= 4 {
				f.Usr = le16(sr.Data[0:2])
				f.Grp = le16(sr.Data[2:4])
			}
		case frecFormat:
			decodeFormat(f, sr.Data)
		case frecCTime:
			if len(sr.Data) >= 8 {
				f.CTime, f.HasCTime = epoch.DecodeLE(sr.Data[:8])
			}
		case frecMTime:
			if len(sr.Data) >= 8 {
				f.MTime, f.HasMTime = epoch.DecodeLE(sr.Data[:8])
			}
		case frecATime:
			if len(sr.Data) >= 8 {
				f.ATime, f.HasATime = epoch.DecodeLE(sr.Data[:8])
			}
		case frecBTime:
			if len(sr.Data) >= 8 {
				f.BTime, f.HasBTime = epoch.DecodeLE(sr.Data[:8])
			}
		case frecDirectory:
			if len(sr.Data) >= 1 {
				f.Directory = sr.Data[0] != 0
			}
		default:
			// Tolerated-but-unknown IDs (0x2b-0x2e, 0x30-0x33, 0x35, 0x47,
			// 0x48, 0x4a, 0x4b, 0x4e-0x50, 0x57, and anything else).
		}
	}

	if strings.Contains(f.Name, ".MAI") {
		f.RecFmt |= MailBit
	}
	if f.Size < 0 {
		f.SetError("size", 0)
	}
	return f, nil
}

func boundedFilename(b []byte) string {
	if len(b) > maxFilenameLen {
		b = b[:maxFilenameLen]
	}
	return string(b)
}

// decodeFormat decodes the FORMAT sub-record into recfmt/recatt/recsize/
// vfcsize/nblk/lnch/size, field-for-field grounded on
// original_source/vmsbackup.c's FREC_FORMAT case. Bytes 4-7, 14 and 16-31
// are unaccounted for there too and are ignored here.
func decodeFormat(f *File, data []byte) {
	if len(data) < 16 {
		return
	}

	f.RecFmt = RecFmt(data[0])
	f.RecAttr = RecAttr(data[1])
	f.RecSize = int(le16(data[2:4]))

	// original_source's comment: "subject to confirmation from backup
	// expert" on the 64K-block multiplier; carried here unchanged.
	f.NBlk = int(le16(data[10:12])) + 65536*int(le16(data[8:10]))
	f.LNch = int(le16(data[12:14]))

	if f.NBlk == 0 {
		f.Size = 0
	} else {
		f.Size = int64(f.NBlk-1)*512 + int64(f.LNch)
	}

	f.VFCSize = int(data[15])
	if f.VFCSize == 0 {
		f.VFCSize = 2
	}
}
