// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tape

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func TestSimpleImageSourceBasic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(u32le(5))
	buf.WriteString("hello")
	buf.Write(u32le(0)) // tape mark
	buf.Write(u32le(0)) // second tape mark -> terminal

	src := NewSimpleImageSource(&buf)
	rec := make([]byte, 64)

	n, mark, err := src.Next(rec)
	if err != nil || mark || string(rec[:n]) != "hello" {
		t.Fatalf("got n=%d mark=%v err=%v", n, mark, err)
	}

	n, mark, err = src.Next(rec)
	if err != nil || !mark || n != 0 {
		t.Fatalf("expected first TM, got n=%d mark=%v err=%v", n, mark, err)
	}

	n, mark, err = src.Next(rec)
	if err != nil || !mark {
		t.Fatalf("expected second TM (terminal), got n=%d mark=%v err=%v", n, mark, err)
	}

	// Past the second TM, the source stays terminal without touching the
	// underlying reader.
	n, mark, err = src.Next(rec)
	if err != nil || !mark || n != 0 {
		t.Fatalf("expected terminal TM, got n=%d mark=%v err=%v", n, mark, err)
	}
}

func TestSimpleImageSourceOversizeRecordNotTruncatedSilently(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(u32le(10))
	buf.WriteString("0123456789")

	src := NewSimpleImageSource(&buf)
	small := make([]byte, 4)
	n, mark, err := src.Next(small)
	if err != nil || mark {
		t.Fatalf("unexpected err=%v mark=%v", err, mark)
	}
	if n != 4 || string(small[:n]) != "0123" {
		t.Fatalf("got %q", small[:n])
	}
	if got := src.Stat().BytesDropped; got != 6 {
		t.Fatalf("BytesDropped = %d, want 6", got)
	}
}

func TestSimhImageSourceFramingMismatch(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(u32le(5))
	buf.WriteString("hello")
	buf.Write(u32le(4)) // wrong trailing length

	src := NewSimhImageSource(&buf)
	rec := make([]byte, 64)
	_, _, err := src.Next(rec)
	if _, ok := err.(*ErrFraming); !ok {
		t.Fatalf("expected *ErrFraming, got %v (%T)", err, err)
	}
}

func TestSimhImageSourceEndOfMedium(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(u32le(3))
	buf.WriteString("abc")
	buf.Write(u32le(3))
	buf.Write(u32le(eomMarker))

	src := NewSimhImageSource(&buf)
	rec := make([]byte, 64)

	n, mark, err := src.Next(rec)
	if err != nil || mark || n != 3 {
		t.Fatalf("got n=%d mark=%v err=%v", n, mark, err)
	}

	n, mark, err = src.Next(rec)
	if err != nil || !mark || n != 0 {
		t.Fatalf("expected terminal EOM, got n=%d mark=%v err=%v", n, mark, err)
	}
}

type fakeDevice struct {
	reads [][]byte
	i     int
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.i >= len(d.reads) {
		return 0, nil
	}
	rec := d.reads[d.i]
	d.i++
	return copy(p, rec), nil
}

func (d *fakeDevice) Close() error { return nil }

func TestDeviceSourceTwoTapeMarksTerminal(t *testing.T) {
	dev := &fakeDevice{reads: [][]byte{[]byte("rec1"), {}, {}}}
	src := NewDeviceSource(dev)
	buf := make([]byte, 16)

	n, mark, err := src.Next(buf)
	if err != nil || mark || string(buf[:n]) != "rec1" {
		t.Fatalf("got n=%d mark=%v err=%v", n, mark, err)
	}

	_, mark, _ = src.Next(buf)
	if !mark {
		t.Fatal("expected first TM")
	}

	_, mark, _ = src.Next(buf)
	if !mark {
		t.Fatal("expected second TM (terminal)")
	}

	if src.Stat().RecordsRead != 1 || src.Stat().TapeMarks != 2 {
		t.Fatalf("unexpected stats %+v", src.Stat())
	}
}
