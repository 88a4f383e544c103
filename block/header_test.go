// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"encoding/binary"
	"testing"
)

func makeHeader(number uint32, blocksize uint32, applic uint16, hdrSize uint16) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], hdrSize)
	binary.LittleEndian.PutUint16(b[6:8], applic)
	binary.LittleEndian.PutUint32(b[8:12], number)
	binary.LittleEndian.PutUint32(b[40:44], blocksize)
	copy(b[48:80], "TESTSS")
	copy(b[92:220], "FOO.TXT;1")
	return b
}

func TestNumber(t *testing.T) {
	b := makeHeader(7, 8192, 0, HeaderSize)
	n, err := Number(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("got %d, want 7", n)
	}

	if _, err := Number(b[:10]); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestParseHeader(t *testing.T) {
	b := makeHeader(1, 8192, 0, HeaderSize)
	h, err := ParseHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if h.Number != 1 || h.Blocksize != 8192 {
		t.Fatalf("got %+v", h)
	}
	if h.SavesetName != "TESTSS" {
		t.Fatalf("got SavesetName %q", h.SavesetName)
	}
	if h.Filename != "FOO.TXT;1" {
		t.Fatalf("got Filename %q", h.Filename)
	}
}

func TestHeaderValidate(t *testing.T) {
	cases := []struct {
		name      string
		h         Header
		blocksize int
		wantErr   bool
	}{
		{"ok exact match", Header{Size: HeaderSize, Blocksize: 8192}, 8192, false},
		{"zero blocksize field", Header{Size: HeaderSize, Blocksize: 0}, 8192, true},
		{"bad header size", Header{Size: 128}, 8192, true},
		{"bad applic", Header{Size: HeaderSize, Applic: 2}, 8192, true},
		{"mismatched blocksize", Header{Size: HeaderSize, Blocksize: 4096}, 8192, true},
		{"saveset blocksize zero", Header{Size: HeaderSize, Blocksize: 8192}, 0, true},
	}
	for _, c := range cases {
		err := c.h.Validate(c.blocksize)
		if (err != nil) != c.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}
