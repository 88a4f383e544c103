// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "encoding/binary"

// RecordHeader is the 20-byte prefix preceding every typed record inside a
// block's body (spec.md §3). The wire layout carries 12 meaningful bytes
// (rsize, rtype, flags, address, matching original_source/vmsbackup.c's
// struct brh) widened by 8 spare bytes to reach the 20 bytes spec.md's data
// model requires; the extra width is reserved and ignored.
type RecordHeader struct {
	RSize   uint16
	RType   uint16
	Flags   uint32
	Address uint32
}

// Record is one typed record inside a block's body.
type Record struct {
	Header  RecordHeader
	Payload []byte
	Offset  int // offset of Payload[0] within the enclosing block buffer
}

// ErrRecord reports a record whose declared size overruns the enclosing
// block (spec.md §3 "every record must satisfy rsize + offset <=
// blocksize").
type ErrRecord struct {
	Msg string
}

func (e *ErrRecord) Error() string { return "block: record: " + e.Msg }

// Walk calls fn once per typed record found in buf[HeaderSize:bsize], in
// order. It stops and returns an error the first time a record would
// overrun bsize (spec.md §4.4 "else SKIP_TO_BLOCK, increment
// file.record_error"); fn itself may also return an error (e.g. an unknown
// rtype) to stop the walk early.
func Walk(buf []byte, bsize int, fn func(Record) error) error {
	if bsize > len(buf) {
		bsize = len(buf)
	}

	off := HeaderSize
	for off+RecordHeaderSize <= bsize {
		rsize := binary.LittleEndian.Uint16(buf[off : off+2])
		rtype := binary.LittleEndian.Uint16(buf[off+2 : off+4])
		flags := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		address := binary.LittleEndian.Uint32(buf[off+8 : off+12])

		payloadOff := off + RecordHeaderSize
		if payloadOff+int(rsize) > bsize {
			return &ErrRecord{Msg: "record size overruns block"}
		}

		r := Record{
			Header: RecordHeader{
				RSize:   rsize,
				RType:   rtype,
				Flags:   flags,
				Address: address,
			},
			Payload: buf[payloadOff : payloadOff+int(rsize)],
			Offset:  payloadOff,
		}
		if err := fn(r); err != nil {
			return err
		}

		off = payloadOff + int(rsize)
	}
	return nil
}
