// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epoch

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestTimeZero(t *testing.T) {
	if _, ok := Time(0); ok {
		t.Fatal("zero ticks must report ok == false")
	}
}

func TestTimeKnownValue(t *testing.T) {
	// 1970-01-01 00:00:00 UTC expressed in VMS ticks.
	ticks := uint64(offsetSeconds) * ticksPerSecond
	got, ok := Time(ticks)
	if !ok {
		t.Fatal("expected ok == true")
	}
	want := time.Unix(0, 0).UTC()
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeLE(t *testing.T) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(offsetSeconds+3600)*ticksPerSecond)
	got, ok := DecodeLE(b[:])
	if !ok {
		t.Fatal("expected ok == true")
	}
	want := time.Unix(3600, 0).UTC()
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
