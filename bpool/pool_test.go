// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bpool

import (
	"encoding/binary"
	"testing"

	"github.com/cznic/vmsbackup/tape"
)

// scriptedSource replays a fixed script of (payload, isMark) records,
// standing in for a tape.Source in tests. Like the real backends it becomes
// terminal after two consecutive tape marks and then replays marks forever.
type scriptedSource struct {
	recs        [][]byte // nil == tape mark
	i           int
	consecutive int
	done        bool
	stats       tape.Stats
}

func (s *scriptedSource) Next(buf []byte) (n int, isMark bool, err error) {
	if s.done {
		return 0, true, nil
	}
	if s.i >= len(s.recs) {
		s.consecutive++
		if s.consecutive >= 2 {
			s.done = true
		}
		s.stats.TapeMarks++
		return 0, true, nil
	}
	r := s.recs[s.i]
	s.i++
	if r == nil {
		s.consecutive++
		if s.consecutive >= 2 {
			s.done = true
		}
		s.stats.TapeMarks++
		return 0, true, nil
	}
	s.consecutive = 0
	s.stats.RecordsRead++
	return copy(buf, r), false, nil
}

func (s *scriptedSource) Stat() tape.Stats { return s.stats }
func (s *scriptedSource) Close() error     { return nil }
func (s *scriptedSource) Done() bool       { return s.done }

func block(n uint32, size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], n)
	return b
}

func extractU32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, &ErrStalled{}
	}
	return binary.LittleEndian.Uint32(buf[0:4]), nil
}

func TestPoolInOrderDelivery(t *testing.T) {
	src := &scriptedSource{recs: [][]byte{block(1, 64), block(2, 64), block(3, 64), nil}}
	p := NewPool(src, 10, 64, extractU32)

	for i := uint32(1); i <= 3; i++ {
		buf, outcome, err := p.NextInOrderBlock()
		if err != nil || outcome != Ok {
			t.Fatalf("block %d: outcome=%v err=%v", i, outcome, err)
		}
		got := binary.LittleEndian.Uint32(buf[0:4])
		if got != i {
			t.Fatalf("got block %d, want %d", got, i)
		}
		p.Release()
	}

	_, outcome, err := p.NextInOrderBlock()
	if err != nil || outcome != TapeMark {
		t.Fatalf("outcome=%v err=%v, want TapeMark", outcome, err)
	}
}

func TestPoolReordersLookahead(t *testing.T) {
	// Blocks arrive out of order within the look-ahead window.
	src := &scriptedSource{recs: [][]byte{block(2, 64), block(1, 64), block(3, 64), nil, nil}}
	p := NewPool(src, 10, 64, extractU32)

	var seen []uint32
	for {
		buf, outcome, err := p.NextInOrderBlock()
		if err != nil {
			t.Fatal(err)
		}
		if outcome == TapeMark {
			break
		}
		if outcome != Ok {
			t.Fatalf("unexpected outcome %v", outcome)
		}
		seen = append(seen, binary.LittleEndian.Uint32(buf[0:4]))
		p.Release()
	}

	want := []uint32{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got %v, want %v", seen, want)
		}
	}
}

func TestPoolDuplicateBlockLaterWins(t *testing.T) {
	dup1 := block(4, 64)
	dup1[4] = 0xAA
	dup2 := block(4, 64)
	dup2[4] = 0xBB

	src := &scriptedSource{recs: [][]byte{block(1, 64), block(2, 64), block(3, 64), dup1, dup2, block(5, 64), nil}}
	p := NewPool(src, 10, 64, extractU32)

	var got []byte
	for i := 0; i < 4; i++ {
		buf, outcome, err := p.NextInOrderBlock()
		if err != nil || outcome != Ok {
			t.Fatalf("outcome=%v err=%v", outcome, err)
		}
		if binary.LittleEndian.Uint32(buf[0:4]) == 4 {
			got = append([]byte(nil), buf...)
		}
		p.Release()
	}
	if got == nil || got[4] != 0xBB {
		t.Fatalf("expected later duplicate (0xBB) to win, got %v", got)
	}
}

func TestPoolFirstBlockMustBeOne(t *testing.T) {
	src := &scriptedSource{recs: [][]byte{block(2, 64), nil}}
	p := NewPool(src, 10, 64, extractU32)

	_, outcome, err := p.NextInOrderBlock()
	if err != nil || outcome != NoLeadingBlock {
		t.Fatalf("outcome=%v err=%v, want NoLeadingBlock", outcome, err)
	}
}

// TestPoolMarkEndsBodyOnce confirms a single trailing tape mark stops the
// look-ahead and is reported as TapeMark right after the last block;
// recognizing it as true end-of-tape (vs. an ordinary saveset-ending mark)
// is left to the pool's caller.
func TestPoolMarkEndsBodyOnce(t *testing.T) {
	src := &scriptedSource{recs: [][]byte{block(1, 64), nil, nil}}
	p := NewPool(src, 10, 64, extractU32)

	_, outcome, err := p.NextInOrderBlock()
	if err != nil || outcome != Ok {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	p.Release()

	_, outcome, err = p.NextInOrderBlock()
	if err != nil || outcome != TapeMark {
		t.Fatalf("outcome=%v err=%v, want TapeMark", outcome, err)
	}
}
