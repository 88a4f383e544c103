// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"errors"
	"fmt"

	"github.com/cznic/vmsbackup/block"
	"github.com/cznic/vmsbackup/bpool"
	"github.com/cznic/vmsbackup/label"
	"github.com/cznic/vmsbackup/output"
	"github.com/cznic/vmsbackup/saveset"
	"github.com/cznic/vmsbackup/tape"
	"github.com/cznic/vmsbackup/vbn"
)

// errStopBlock tells block.Walk to stop early without that being a real
// failure: the current block's remaining records are abandoned (spec.md
// §4.4 "default -> SKIP_TO_BLOCK|SKIP_TO_FILE").
var errStopBlock = errors.New("decoder: stop block")

// Driver is the C10 saveset driver: the finite outer loop of spec.md §4.10.
type Driver struct {
	src     tape.Source
	scanner *label.Scanner
	writer  *output.Writer
	opts    Options

	ctx       context
	pool      *bpool.Pool
	blocksize int

	totalErrors int64
}

// NewDriver wires a Driver over src (spec.md §4.10).
func NewDriver(src tape.Source, opts Options) *Driver {
	return &Driver{
		src:     src,
		scanner: label.NewScanner(src),
		writer:  output.New(opts.Output),
		opts:    opts,
	}
}

// Run drives savesets to completion: locate (rdhead), pull blocks in order,
// dispatch, and finish (rdtail / end-of-tape), exactly spec.md §4.10's three
// numbered steps. It returns when the tape is exhausted or a genuine I/O
// error (not a recoverable decode error) occurs.
func (d *Driver) Run() error {
	for {
		info, outcome, err := d.scanner.Open(d.opts.Selector)
		if err != nil {
			return err
		}
		if outcome == label.NoMoreSavesets {
			break
		}
		d.opts.report(fmt.Sprintf("saveset %s (seq %d, blocksize %d)", info.Name, info.Sequence, info.Blocksize))

		if d.pool == nil || info.Blocksize > d.blocksize {
			d.blocksize = info.Blocksize
			d.pool = bpool.NewPool(d.src, d.opts.MaxBuffCount, d.blocksize, block.Number)
		} else {
			d.pool.Reset()
		}
		d.ctx.resetForSaveset()

		tapeExhausted, err := d.runSaveset()
		if err != nil {
			return err
		}
		if tapeExhausted {
			break
		}
	}

	if err := d.ctx.closeCurrentFile(); err != nil {
		return err
	}
	d.totalErrors += d.ctx.fileErrors + d.ctx.blockErrors + d.ctx.savesetErrors
	d.opts.report(fmt.Sprintf("total errors: %d", d.totalErrors))
	return nil
}

// runSaveset implements spec.md §4.10 step 2's inner loop for one saveset.
func (d *Driver) runSaveset() (tapeExhausted bool, err error) {
	for {
		buf, outcome, perr := d.pool.NextInOrderBlock()
		switch outcome {
		case bpool.Ok:
			err := d.processBlock(buf)
			d.pool.Release()
			if err != nil {
				return false, err
			}
			if d.ctx.skip.has(SkipToSaveset) {
				d.skipToTapeMark()
				return false, nil
			}

		case bpool.TapeMark:
			if d.src.Done() {
				return true, nil
			}
			if err := d.ctx.closeCurrentFile(); err != nil {
				return false, err
			}
			if err := d.scanner.Close(); err != nil {
				return false, err
			}
			return false, nil

		case bpool.NoLeadingBlock, bpool.Err:
			d.ctx.savesetErrors++
			d.ctx.setSkip(SkipToSaveset)
			d.skipToTapeMark()
			return false, nil

		default:
			return false, perr
		}
	}
}

// skipToTapeMark discards records straight from the Source until a tape
// mark or end-of-medium, abandoning whatever the buffer pool had in flight
// (spec.md §4.10 "SKIP_TO_SAVESET ... call skip_to_tm").
func (d *Driver) skipToTapeMark() {
	buf := make([]byte, d.blocksize)
	for {
		_, isMark, err := d.src.Next(buf)
		if err != nil || isMark || d.src.Done() {
			return
		}
	}
}

// processBlock implements spec.md §4.4: validate the header, walk typed
// records, dispatch each by rtype.
func (d *Driver) processBlock(buf []byte) error {
	d.ctx.clearSkip(SkipToBlock)

	num, err := block.Number(buf)
	if err != nil {
		d.ctx.blockErrors++
		d.ctx.setSkip(SkipToBlock)
		return nil
	}
	if d.ctx.lastBlockNumber != 0 && num != d.ctx.lastBlockNumber+1 {
		d.ctx.blockErrors++
		if d.ctx.file != nil {
			d.ctx.file.SetError("blk", d.ctx.file.InboundIndex)
		}
		d.ctx.setSkip(SkipToFile)
	}
	d.ctx.lastBlockNumber = num

	hdr, herr := block.ParseHeader(buf)
	if herr == nil {
		herr = hdr.Validate(d.blocksize)
	}
	if herr != nil {
		d.ctx.blockErrors++
		d.ctx.setSkip(SkipToBlock)
		return nil
	}

	walkErr := block.Walk(buf, d.blocksize, d.dispatch)
	if walkErr == nil || walkErr == errStopBlock {
		return nil
	}
	if _, ok := walkErr.(*block.ErrRecord); ok {
		d.ctx.blockErrors++
		if d.ctx.file != nil {
			d.ctx.file.SetError("record", d.ctx.file.InboundIndex)
		}
		d.ctx.setSkip(SkipToBlock)
		return nil
	}
	return walkErr
}

// dispatch implements spec.md §4.4's rtype dispatch table.
func (d *Driver) dispatch(r block.Record) error {
	switch r.Header.RType {
	case block.TypeNull, block.TypePhysVol, block.TypeLBN, block.TypeFID:
		return nil
	case block.TypeSummary:
		if _, err := saveset.DecodeSummary(r.Payload); err == nil {
			// Informational only (spec.md §4.5); nothing else in the
			// driver currently consumes a saveset's Summary.
		}
		return nil
	case block.TypeFile:
		return d.openFile(r.Payload)
	case block.TypeVBN:
		if d.ctx.skip.has(SkipToFile) || d.ctx.vbnDec == nil {
			return nil
		}
		return d.processVBN(r.Payload)
	default:
		d.ctx.setSkip(SkipToBlock | SkipToFile)
		return errStopBlock
	}
}

// openFile implements spec.md §4.6.
func (d *Driver) openFile(payload []byte) error {
	if err := d.ctx.closeCurrentFile(); err != nil {
		return err
	}
	d.ctx.clearSkip(SkipToFile)
	d.ctx.listing = false

	f, err := saveset.DecodeFileHeader(payload)
	if err != nil {
		d.ctx.fileErrors++
		d.ctx.setSkip(SkipToFile)
		return nil
	}
	d.ctx.file = f

	if f.HasError() {
		d.ctx.fileErrors++
		d.ctx.setSkip(SkipToFile)
		return nil
	}
	if !f.Selectable() {
		d.ctx.setSkip(SkipToFile)
		return nil
	}

	if !d.opts.selected(f.Name) {
		d.ctx.setSkip(SkipToFile)
		return nil
	}

	if d.opts.ListOnly {
		d.ctx.listing = true
		d.opts.report(f.Name)
		d.ctx.setSkip(SkipToFile)
		return nil
	}

	h, oerr := d.writer.Open(f)
	if oerr != nil {
		// Includes output.ErrSkip (directory/mail, already excluded
		// above, or a lower-version duplicate) and real I/O failures;
		// spec.md §7 treats output open/write failures as SKIP_TO_FILE.
		d.ctx.setSkip(SkipToFile)
		return nil
	}
	d.ctx.handle = h
	d.ctx.vbnDec = vbn.New(f, h, d.opts.VFCPolicy)
	d.opts.report(f.Name)
	return nil
}

// processVBN implements spec.md §4.7's entry point from the block
// dispatcher.
func (d *Driver) processVBN(payload []byte) error {
	res, err := d.ctx.vbnDec.Process(payload)
	if err != nil {
		// IOError on the output side -> SKIP_TO_FILE (spec.md §7).
		d.ctx.fileErrors++
		d.ctx.setSkip(SkipToFile)
		return nil
	}
	if res == vbn.ResultEndOfFile {
		d.ctx.setSkip(SkipToFile)
	}
	return nil
}
