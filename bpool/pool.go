// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bpool implements the look-ahead reordering buffer pool (spec.md
// §4.3, C3): a fixed count of preallocated buffers kept in a free list and
// an ordered busy list, exactly the shape of lldb.Allocator's free/busy
// block lists (falloc.go) generalized from disk-block allocation to tape
// look-ahead buffering. Buffer ownership is tracked by intrusive "next slot
// index" fields rather than real pointers or Go slices-of-slices, so the
// lists stay acyclic by construction (spec.md §9 "Design Notes").
package bpool

import (
	"sort"

	"github.com/cznic/sortutil"
	"github.com/cznic/vmsbackup/tape"
)

// BlockNumberFunc extracts the block number from a candidate block buffer.
// It is supplied by the block package (C4) so bpool never needs to know the
// block header layout; bpool only needs the number to reorder and dedup.
type BlockNumberFunc func(buf []byte) (uint32, error)

// Outcome is what NextInOrderBlock reports. TapeMark signals that this
// saveset's body is complete; telling an ordinary saveset-ending mark apart
// from true end-of-tape is left to the caller (the saveset driver checks
// tape.Source.Done right after), not the pool's job.
type Outcome int

const (
	Ok Outcome = iota
	TapeMark
	NoLeadingBlock
	Err
)

// DefaultMaxBuffCount is MAX_BUFFCOUNT from the original source: the number
// of look-ahead buffers the pool tries to keep filled.
const DefaultMaxBuffCount = 10

type slot struct {
	buf         []byte
	n           int
	isMark      bool
	blockNumber uint32
	extractErr  error
	next        int
}

// Pool is the C3 block buffer pool.
type Pool struct {
	slots      []slot // index 0 unused
	freeHead   int
	busyHead   int
	busyTail   int
	checkedOut int

	count   int
	src     tape.Source
	extract BlockNumberFunc

	lookaheadStopped bool
	firstReturned    bool
}

// NewPool allocates count buffers of blocksize bytes each, backed by src,
// using extract to read a candidate buffer's block number.
func NewPool(src tape.Source, count, blocksize int, extract BlockNumberFunc) *Pool {
	if count <= 0 {
		count = DefaultMaxBuffCount
	}

	p := &Pool{
		slots:   make([]slot, count+1),
		count:   count,
		src:     src,
		extract: extract,
	}
	for i := 1; i <= count; i++ {
		p.slots[i].buf = make([]byte, blocksize)
	}
	p.Reset()
	return p
}

// Reset rebuilds the free list from scratch and clears per-saveset state.
// The driver calls Reset once per saveset, right after rdhead succeeds
// (spec.md §4.10 step 1).
func (p *Pool) Reset() {
	for i := 1; i < len(p.slots); i++ {
		p.slots[i].next = i + 1
		p.slots[i].isMark = false
		p.slots[i].n = 0
		p.slots[i].blockNumber = 0
		p.slots[i].extractErr = nil
	}
	if len(p.slots) > 1 {
		p.slots[len(p.slots)-1].next = 0
		p.freeHead = 1
	} else {
		p.freeHead = 0
	}
	p.busyHead, p.busyTail = 0, 0
	p.checkedOut = 0
	p.lookaheadStopped = false
	p.firstReturned = false
}

func (p *Pool) busyLen() int {
	n := 0
	for i := p.busyHead; i != 0; i = p.slots[i].next {
		n++
	}
	return n
}

func (p *Pool) pushBusyTail(idx int) {
	p.slots[idx].next = 0
	if p.busyTail == 0 {
		p.busyHead, p.busyTail = idx, idx
		return
	}
	p.slots[p.busyTail].next = idx
	p.busyTail = idx
}

func (p *Pool) pushFree(idx int) {
	p.slots[idx].next = p.freeHead
	p.freeHead = idx
}

// refill performs synchronous eager look-ahead reads until the busy list is
// at the high-water mark (p.count) or the lookahead latch has tripped
// (spec.md §4.3).
func (p *Pool) refill() error {
	for !p.lookaheadStopped && p.freeHead != 0 && p.busyLen() < p.count {
		idx := p.freeHead
		s := &p.slots[idx]
		p.freeHead = s.next

		n, isMark, err := p.src.Next(s.buf)
		if err != nil {
			p.pushFree(idx)
			return err
		}

		if isMark {
			s.isMark = true
			s.n = 0
			p.lookaheadStopped = true
			p.pushBusyTail(idx)
			break
		}

		s.isMark = false
		s.n = n
		s.blockNumber, s.extractErr = p.extract(s.buf[:n])
		p.pushBusyTail(idx)
	}

	p.removeDups()
	return nil
}

// removeDups implements spec.md §4.3 step 1-3: when two busy buffers carry
// the same block number the later one wins (the earlier is freed), the
// remaining data buffers are sorted ascending by block number, and any
// terminal tape-mark buffer stays at the tail.
func (p *Pool) removeDups() {
	var markIdx []int
	keepFor := map[uint32]int{}
	order := map[int]int{} // slot idx -> arrival order, for "later wins"

	n := 0
	for i := p.busyHead; i != 0; i = p.slots[i].next {
		if p.slots[i].isMark {
			markIdx = append(markIdx, i)
			continue
		}
		order[i] = n
		n++
		if prev, ok := keepFor[p.slots[i].blockNumber]; ok {
			if order[i] > order[prev] {
				p.pushFree(prev)
				keepFor[p.slots[i].blockNumber] = i
			} else {
				p.pushFree(i)
			}
			continue
		}
		keepFor[p.slots[i].blockNumber] = i
	}

	dataIdx := make([]int, 0, len(keepFor))
	for _, idx := range keepFor {
		dataIdx = append(dataIdx, idx)
	}

	// Sort ascending by block number. MAX_BUFFCOUNT is small (<=10), so a
	// single int64 key packing (blockNumber, slot index) lets a plain
	// sortutil.Int64Slice carry both through one sort, the same trick
	// falloc_test.go uses to verify allocator handle ordering.
	keys := make(sortutil.Int64Slice, len(dataIdx))
	for i, idx := range dataIdx {
		keys[i] = int64(p.slots[idx].blockNumber)<<8 | int64(idx)
	}
	sort.Sort(keys)

	p.busyHead, p.busyTail = 0, 0
	for _, k := range keys {
		p.pushBusyTail(int(k & 0xff))
	}
	for _, idx := range markIdx {
		p.pushBusyTail(idx)
	}
}

// NextInOrderBlock returns the oldest (by block number) buffered block,
// refilling the look-ahead window first. The caller must call Release once
// it is done with the returned buffer before calling NextInOrderBlock
// again (spec.md §9 "move semantics; two-list invariant").
func (p *Pool) NextInOrderBlock() (buf []byte, outcome Outcome, err error) {
	if err = p.refill(); err != nil {
		return nil, Err, err
	}

	if p.busyHead == 0 {
		return nil, Err, errNoProgress
	}

	idx := p.busyHead
	s := &p.slots[idx]
	p.busyHead = s.next
	if p.busyHead == 0 {
		p.busyTail = 0
	}

	if s.isMark {
		p.pushFree(idx)
		return nil, TapeMark, nil
	}

	if s.extractErr != nil {
		p.pushFree(idx)
		return nil, Err, s.extractErr
	}

	if !p.firstReturned {
		p.firstReturned = true
		if s.blockNumber != 1 {
			p.pushFree(idx)
			return nil, NoLeadingBlock, nil
		}
	}

	p.checkedOut = idx
	return s.buf[:s.n], Ok, nil
}

// Release returns the most recently returned Ok buffer to the free list.
func (p *Pool) Release() {
	if p.checkedOut == 0 {
		return
	}
	p.pushFree(p.checkedOut)
	p.checkedOut = 0
}

var errNoProgress = &ErrStalled{}

// ErrStalled reports that the pool could not obtain a block or a tape mark
// from the Source at all; this should not happen against a well-formed
// Source and indicates a Source bug.
type ErrStalled struct{}

func (e *ErrStalled) Error() string { return "bpool: source made no progress" }
