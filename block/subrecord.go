// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "encoding/binary"

// SubRecord is one {size,type,data} triple inside a summary/file/vbn
// record's typed sub-record vector (spec.md §3).
type SubRecord struct {
	Type uint16
	Data []byte
}

// ErrSubRecord reports a malformed typed sub-record vector: a missing 01 01
// sentinel, or a sub-record whose declared size overruns the enclosing
// record (spec.md §8 "r.size + r.offset + 4 <= R.size").
type ErrSubRecord struct {
	Msg string
}

func (e *ErrSubRecord) Error() string { return "block: subrecord: " + e.Msg }

// SubRecords parses payload's typed sub-record vector: a leading 01 01
// sentinel followed by {size:u16, type:u16, data:bytes[size]} triples,
// terminated by a type-0 entry or by payload running out. Any partial
// results gathered before a malformed entry are returned alongside the
// error, matching original_source/vmsbackup.c's "best effort" field
// processing.
func SubRecords(payload []byte) ([]SubRecord, error) {
	if len(payload) < 2 || payload[0] != 1 || payload[1] != 1 {
		return nil, &ErrSubRecord{Msg: "missing 01 01 sentinel"}
	}

	var out []SubRecord
	cc := 2
	for cc+4 <= len(payload) {
		size := binary.LittleEndian.Uint16(payload[cc : cc+2])
		typ := binary.LittleEndian.Uint16(payload[cc+2 : cc+4])
		if int(size)+cc+4 > len(payload) {
			return out, &ErrSubRecord{Msg: "subrecord size overruns enclosing record"}
		}

		data := payload[cc+4 : cc+4+int(size)]
		if typ == 0 {
			return out, nil
		}
		out = append(out, SubRecord{Type: typ, Data: data})
		cc += 4 + int(size)
	}
	return out, nil
}
