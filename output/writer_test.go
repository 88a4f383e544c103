// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cznic/vmsbackup/saveset"
)

func TestParseLegacyName(t *testing.T) {
	tests := []struct {
		name        string
		wantDir     string
		wantBase    string
		wantVersion int
	}{
		{"FOO.DAT;3", "", "FOO.DAT", 3},
		{"[DIR1.DIR2]FOO.DAT;7", "DIR1/DIR2", "FOO.DAT", 7},
		{"[TOP]BAR.TXT;1", "TOP", "BAR.TXT", 1},
		{"NOVERSION.TXT", "", "NOVERSION.TXT", 0},
	}
	for _, tt := range tests {
		dir, base, version := parseLegacyName(tt.name, ';')
		if dir != tt.wantDir || base != tt.wantBase || version != tt.wantVersion {
			t.Errorf("parseLegacyName(%q) = (%q,%q,%d), want (%q,%q,%d)",
				tt.name, dir, base, version, tt.wantDir, tt.wantBase, tt.wantVersion)
		}
	}
}

func TestOpenWritesPrimary(t *testing.T) {
	root := t.TempDir()
	w := New(Options{Root: root})

	f := &saveset.File{
		Name:    "FOO.DAT;1",
		RecFmt:  saveset.RAW,
		RecSize: 4,
		Size:    8,
	}
	h, err := w.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.WritePrimary([]byte("ABCDEFGH")); err != nil {
		t.Fatal(err)
	}
	f.OutboundIndex = 8
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "FOO.DAT"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ABCDEFGH" {
		t.Errorf("content = %q", got)
	}
}

func TestOpenSkipsDirectory(t *testing.T) {
	root := t.TempDir()
	w := New(Options{Root: root})

	f := &saveset.File{Name: "[SUBDIR]", Directory: true}
	_, err := w.Open(f)
	if _, ok := err.(*ErrSkip); !ok {
		t.Errorf("err = %v, want *ErrSkip", err)
	}
}

func TestCloseRenamesOnError(t *testing.T) {
	root := t.TempDir()
	w := New(Options{Root: root})

	f := &saveset.File{
		Name:    "BAD.DAT;1",
		RecFmt:  saveset.RAW,
		RecSize: 4,
		Size:    4,
	}
	h, err := w.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.WritePrimary([]byte("ABCD")); err != nil {
		t.Fatal(err)
	}
	f.OutboundIndex = 4
	f.SetError("record", 2)

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := entries[0].Name(); got != "BAD.DAT;isCorruptAt;0x2" {
		t.Errorf("renamed to %q", got)
	}
}

// TestFixFileForcesBinarySuffix verifies that a FIX file, which carries no
// per-record carriage-control information to translate, is always emitted
// under a forced-binary suffix (spec.md §4.8 "forcing binary output ...
// because a VAR/VFC file has no record attributes or is FIX").
func TestFixFileForcesBinarySuffix(t *testing.T) {
	root := t.TempDir()
	w := New(Options{Root: root})

	f := &saveset.File{
		Name:    "FOO.DAT;1",
		RecFmt:  saveset.FIX,
		RecSize: 4,
		Size:    8,
	}
	h, err := w.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.WritePrimary([]byte("ABCDEFGH")); err != nil {
		t.Fatal(err)
	}
	f.OutboundIndex = 8
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	want := "FOO.DAT;FIX0;4;NONE"
	if got := entries[0].Name(); got != want {
		t.Errorf("renamed to %q, want %q", got, want)
	}
}

func TestKeepLatestVersionOnly(t *testing.T) {
	root := t.TempDir()
	w := New(Options{Root: root})

	older := &saveset.File{Name: "FOO.DAT;1", RecFmt: saveset.RAW, RecSize: 2, Size: 2}
	h1, err := w.Open(older)
	if err != nil {
		t.Fatal(err)
	}
	h1.WritePrimary([]byte("aa"))
	older.OutboundIndex = 2
	h1.Close()

	newer := &saveset.File{Name: "FOO.DAT;2", RecFmt: saveset.RAW, RecSize: 2, Size: 2}
	h2, err := w.Open(newer)
	if err != nil {
		t.Fatal(err)
	}
	h2.WritePrimary([]byte("bb"))
	newer.OutboundIndex = 2
	h2.Close()

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (same path overwritten)", len(entries))
	}
	got, _ := os.ReadFile(filepath.Join(root, "FOO.DAT"))
	if string(got) != "bb" {
		t.Errorf("content = %q, want latest version's bytes", got)
	}
}
