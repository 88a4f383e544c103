// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"encoding/binary"
	"testing"
)

func putRecordHeader(buf []byte, off int, rsize, rtype uint16) {
	binary.LittleEndian.PutUint16(buf[off:off+2], rsize)
	binary.LittleEndian.PutUint16(buf[off+2:off+4], rtype)
}

func TestWalk(t *testing.T) {
	const bsize = 320 // 256 + (20+10) + (20+5) = 311 fits
	buf := make([]byte, bsize)
	putRecordHeader(buf, HeaderSize, 10, TypeFile)
	putRecordHeader(buf, HeaderSize+RecordHeaderSize+10, 5, TypeVBN)

	var got []Record
	err := Walk(buf, bsize, func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Header.RType != TypeFile || len(got[0].Payload) != 10 {
		t.Errorf("record 0: %+v", got[0].Header)
	}
	if got[1].Header.RType != TypeVBN || len(got[1].Payload) != 5 {
		t.Errorf("record 1: %+v", got[1].Header)
	}
}

func TestWalkOverrun(t *testing.T) {
	const bsize = 280
	buf := make([]byte, bsize)
	putRecordHeader(buf, HeaderSize, 200, TypeFile) // 256+20+200 > 280

	err := Walk(buf, bsize, func(r Record) error { return nil })
	if err == nil {
		t.Fatal("expected overrun error")
	}
	if _, ok := err.(*ErrRecord); !ok {
		t.Fatalf("got %T, want *ErrRecord", err)
	}
}
