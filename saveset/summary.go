// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package saveset

import (
	"time"

	"github.com/cznic/vmsbackup/block"
	"github.com/cznic/vmsbackup/epoch"
)

// OS codes reported in a summary's OSCODE field (spec.md §6), confirmed
// against original_source/vmsbackup.c's SUMM_OSCODE_* defines.
const (
	OSVAX = 0x400
	OSAXP = 0x800
)

// Summary is the decoded summary typed-record vector (spec.md §4.5, C5):
// saveset identity, the command that produced it, and its environment.
// BuffCount (/BUFF) is informational only; the look-ahead buffer pool
// (package bpool) uses its own fixed MAX_BUFFCOUNT regardless of this value.
type Summary struct {
	Name       string
	CmdLine    string
	Comment    string
	User       string
	UID        uint16
	GID        uint16
	CTime      time.Time
	HasCTime   bool
	OSCode     uint16
	OSVersion  string
	NodeName   string
	PID        uint32
	Device     string
	BckVersion string
	Blocksize  int
	GroupSize  int
	BuffCount  int
}

// Summary sub-record type codes (spec.md §6), confirmed against
// original_source/vmsbackup.c's SUMM_* defines.
const (
	sumEnd        = 0
	sumSSName     = 1
	sumCmdLine    = 2
	sumComment    = 3
	sumUser       = 4
	sumUID        = 5
	sumCTime      = 6
	sumOSCode     = 7
	sumOSVersion  = 8
	sumNodeName   = 9
	sumPID        = 10
	sumDevice     = 11
	sumBckVersion = 12
	sumBlocksize  = 13
	sumGroupSize  = 14
	sumBuffCount  = 15
)

// maxScratch bounds every string field decoded from a sub-record, matching
// spec.md §4.5 "must not overflow a 256-byte scratch".
const maxScratch = 256

// DecodeSummary parses a summary record's payload (spec.md §4.5).
func DecodeSummary(payload []byte) (Summary, error) {
	subs, err := block.SubRecords(payload)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	for _, sr := range subs {
		switch sr.Type {
		case sumSSName:
			s.Name = boundedString(sr.Data)
		case sumCmdLine:
			s.CmdLine = boundedString(sr.Data)
		case sumComment:
			s.Comment = boundedString(sr.Data)
		case sumUser:
			s.User = boundedString(sr.Data)
		case sumUID:
			if len(sr.Data) >= 4 {
				s.UID = le16(sr.Data[0:2])
				s.GID = le16(sr.Data[2:4])
			}
		case sumCTime:
			if len(sr.Data) >= 8 {
				s.CTime, s.HasCTime = epoch.DecodeLE(sr.Data[:8])
			}
		case sumOSCode:
			if len(sr.Data) >= 2 {
				s.OSCode = le16(sr.Data)
			}
		case sumOSVersion:
			s.OSVersion = boundedString(sr.Data)
		case sumNodeName:
			s.NodeName = boundedString(sr.Data)
		case sumPID:
			if len(sr.Data) >= 4 {
				s.PID = le32(sr.Data)
			}
		case sumDevice:
			s.Device = boundedString(sr.Data)
		case sumBckVersion:
			s.BckVersion = boundedString(sr.Data)
		case sumBlocksize:
			if len(sr.Data) >= 2 {
				s.Blocksize = int(le16(sr.Data))
			}
		case sumGroupSize:
			if len(sr.Data) >= 2 {
				s.GroupSize = int(le16(sr.Data))
			}
		case sumBuffCount:
			if len(sr.Data) >= 2 {
				s.BuffCount = int(le16(sr.Data))
			}
		}
	}
	return s, nil
}

func boundedString(b []byte) string {
	if len(b) > maxScratch {
		b = b[:maxScratch]
	}
	return string(b)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
