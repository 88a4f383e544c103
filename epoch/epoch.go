// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package epoch converts the 64-bit VMS system time ticks embedded in a
// saveset's typed sub-records to host time.Time values.
package epoch

import "time"

// Ticks are 10,000,000ths of a second since 1858-11-17 00:00:00 UTC, the VMS
// system time epoch.
const ticksPerSecond = 10000000

// offsetSeconds is the number of seconds between the VMS epoch
// (1858-11-17) and the Unix epoch (1970-01-01).
const offsetSeconds = 3506716800

// LegacyCorrection is the historical +4 year (139,651,200 second) adjustment
// some very old savesets are believed to require. Its trigger condition was
// never recovered from the original source (it is present there only as a
// dead code path) so it is not applied automatically. Callers who can
// identify such a saveset (for example via Summary.OSVersion) may add it to
// a converted time themselves.
const LegacyCorrection = 139651200 * time.Second

// Time converts an 8-byte little-endian VMS tick count, as laid out in a
// saveset's CTIME/MTIME/ATIME/BTIME sub-records, to a host time.Time in UTC.
// A zero tick count is "unspecified" and reports ok == false; callers must
// not treat the zero value of the returned time.Time as meaningful on its
// own.
func Time(ticks uint64) (t time.Time, ok bool) {
	if ticks == 0 {
		return time.Time{}, false
	}

	secs := int64(ticks/ticksPerSecond) - offsetSeconds
	return time.Unix(secs, 0).UTC(), true
}

// DecodeLE reads an 8-byte little-endian tick count from b and converts it,
// as Time does. It panics if len(b) < 8, matching the decoder's convention of
// pre-validating sub-record sizes before calling into field decoders.
func DecodeLE(b []byte) (t time.Time, ok bool) {
	_ = b[7]
	var ticks uint64
	for i := 7; i >= 0; i-- {
		ticks = ticks<<8 | uint64(b[i])
	}
	return Time(ticks)
}
