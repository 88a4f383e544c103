// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vmsbackup extracts or lists files out of a VAX/VMS BACKUP saveset
// read from a tape device, a "simple" disk image, or a SIMH .tap image
// (spec.md §1, §6). Extraction can be limited to legacy names matching the
// path.Match patterns given as trailing arguments. The frame-level tools of
// the original implementation (copy-to-image, dump-record-lengths,
// unpack-SIMH) are not provided.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cznic/vmsbackup/decoder"
	"github.com/cznic/vmsbackup/label"
	"github.com/cznic/vmsbackup/output"
	"github.com/cznic/vmsbackup/tape"
	"github.com/cznic/vmsbackup/vbn"
)

func main() {
	log.SetFlags(0)

	var (
		oImage        = flag.String("f", "", "path to a simple or SIMH tape image (auto-detected)")
		oDevice       = flag.String("tape", "", "path to a tape device (variable-block mode)")
		oList         = flag.Bool("l", false, "list saveset contents instead of extracting")
		oOrdinal      = flag.Int("n", 0, "select saveset by 1-origin HDR1 ordinal")
		oName         = flag.String("name", "", "select saveset by HDR1 name")
		oOutDir       = flag.String("o", ".", "output directory root")
		oDelim        = flag.String("delim", ";", "delimiter between legacy base name and version")
		oFlatten      = flag.Bool("flatten", false, "flatten legacy directory components into one path segment")
		oKeepVersions = flag.Bool("keep-versions", false, "keep every file version instead of only the latest")
		oAlt          = flag.Bool("alt", false, "also write a byte-faithful alternate output stream")
		oCompressAlt  = flag.Bool("compress-alt", false, "zappy-compress the alternate output stream")
		oVFC          = flag.String("vfc", "decode", "VFC carriage-control handling: discard, decode, or keep")
		oMaxBuffCount = flag.Int("bufcount", 0, "look-ahead buffer count (0 = default)")
	)
	flag.Parse()
	patterns := flag.Args()

	if *oImage == "" && *oDevice == "" {
		fmt.Fprintln(os.Stderr, "vmsbackup: one of -f or -tape is required")
		os.Exit(2)
	}

	vfcPolicy, err := parseVFCPolicy(*oVFC)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmsbackup:", err)
		os.Exit(2)
	}

	src, err := openSource(*oImage, *oDevice)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	if !*oList {
		if err := os.MkdirAll(*oOutDir, 0777); err != nil {
			log.Fatal(err)
		}
	}

	opts := decoder.Options{
		Selector: label.Selector{Name: *oName, Ordinal: *oOrdinal},
		ListOnly: *oList,
		Patterns: patterns,
		Output: output.Options{
			Root:              *oOutDir,
			Delim:             (*oDelim)[0],
			Flatten:           *oFlatten,
			KeepVersions:      *oKeepVersions,
			Alternate:         *oAlt,
			CompressAlternate: *oCompressAlt,
		},
		VFCPolicy:    vfcPolicy,
		MaxBuffCount: *oMaxBuffCount,
		Report:       func(line string) { fmt.Println(line) },
	}

	d := decoder.NewDriver(src, opts)
	if err := d.Run(); err != nil {
		log.Fatal(err)
	}
}

func parseVFCPolicy(s string) (vbn.VFCPolicy, error) {
	switch s {
	case "discard":
		return vbn.VFCDiscard, nil
	case "decode":
		return vbn.VFCDecode, nil
	case "keep":
		return vbn.VFCKeep, nil
	default:
		return 0, fmt.Errorf("unknown -vfc policy %q", s)
	}
}

// openSource opens either a live device (-tape) or an image file (-f),
// auto-detecting simple-vs-SIMH framing by probing whether the first
// record's length is echoed as a trailer (spec.md §6).
func openSource(imagePath, devicePath string) (tape.Source, error) {
	if devicePath != "" {
		f, err := os.OpenFile(devicePath, os.O_RDONLY, 0)
		if err != nil {
			return nil, err
		}
		return tape.NewDeviceSource(f), nil
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}

	simh, err := looksLikeSimh(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	if simh {
		return tape.NewSimhImageSource(f), nil
	}
	return tape.NewSimpleImageSource(f), nil
}

// looksLikeSimh probes the first record: a SIMH image repeats the leading
// 32-bit length as a trailer after the payload; a simple image does not.
func looksLikeSimh(f *os.File) (bool, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	length := le32(hdr[:])
	if length == 0 || length == 0xFFFFFFFF {
		// A leading tape mark or end-of-medium sentinel looks the same
		// in both framings; default to simple.
		return false, nil
	}

	if _, err := io.CopyN(io.Discard, f, int64(length)); err != nil {
		return false, nil
	}

	var trailer [4]byte
	if _, err := io.ReadFull(f, trailer[:]); err != nil {
		return false, nil
	}
	return le32(trailer[:]) == length, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
