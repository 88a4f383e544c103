// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decoder implements the saveset driver (spec.md §4.10, C10): the
// outer loop that locates a saveset via label.Scanner, pulls in-order
// blocks from bpool.Pool, dispatches their typed records through block,
// saveset and vbn, and writes selected files through output.
package decoder

import (
	"github.com/cznic/vmsbackup/output"
	"github.com/cznic/vmsbackup/saveset"
	"github.com/cznic/vmsbackup/vbn"
)

// SkipBits is the skip-state bitmask shared by every component (spec.md §3
// "Skip state"): any component may set a bit; only C10 observes and acts on
// it, which is why the bits live on an explicit Context rather than as
// package-level globals (spec.md §9 "Design Notes": "lifted into a Decoder
// context passed explicitly").
type SkipBits uint8

const (
	SkipToFile SkipBits = 1 << iota
	SkipToBlock
	SkipToSaveset
)

func (b SkipBits) has(bit SkipBits) bool { return b&bit != 0 }

// context carries the per-saveset, per-file mutable state that would
// otherwise be package-level singletons (spec.md §5 "Current file
// descriptor: process-wide singleton").
type context struct {
	skip SkipBits

	file    *saveset.File
	handle  *output.Handle
	vbnDec  *vbn.Decoder
	listing bool // true when the current file is being listed, not extracted

	lastBlockNumber uint32

	fileErrors    int64
	blockErrors   int64
	savesetErrors int64
}

func (c *context) setSkip(bit SkipBits)   { c.skip |= bit }
func (c *context) clearSkip(bit SkipBits) { c.skip &^= bit }

func (c *context) resetForSaveset() {
	c.skip = 0
	c.lastBlockNumber = 0
}

// closeCurrentFile closes whatever output is open for the current file, if
// any (spec.md §4.6 "Closes any open output"), and clears the singleton.
func (c *context) closeCurrentFile() error {
	defer func() {
		c.file = nil
		c.handle = nil
		c.vbnDec = nil
	}()
	if c.handle != nil {
		return c.handle.Close()
	}
	return nil
}
