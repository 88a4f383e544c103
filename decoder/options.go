// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"path"

	"github.com/cznic/vmsbackup/label"
	"github.com/cznic/vmsbackup/output"
	"github.com/cznic/vmsbackup/vbn"
)

// Options configures a Driver (spec.md §9 "Design Notes", following
// dbm.Options' shape: exported fields, a defaulted companion).
type Options struct {
	// Selector picks which saveset on the tape to process (spec.md §4.2).
	Selector label.Selector

	// ListOnly reports file names to Report instead of extracting them.
	ListOnly bool

	// Patterns restricts extraction (or listing) to legacy names matching
	// any of these shell-style globs (path.Match syntax); empty means
	// every selectable file (spec.md §4.6 "match filename against
	// caller's patterns").
	Patterns []string

	// Output configures the output writer (decoder.Options.Output is the
	// SPEC_FULL.md §0 "Options-style struct ... carries VFC policy, ...
	// output delimiter, directory-flattening mode, and the
	// alternate-output compression flag").
	Output output.Options

	// VFCPolicy controls VFC carriage-control handling (spec.md §4.7).
	VFCPolicy vbn.VFCPolicy

	// MaxBuffCount overrides bpool.DefaultMaxBuffCount; 0 means use the
	// default.
	MaxBuffCount int

	// Report receives one line per file as it is listed or extracted,
	// and the final end-of-run summary line. A nil Report is replaced by
	// a no-op (ambient stdout reporting lives in cmd/vmsbackup, which
	// supplies the real fmt.Println-backed Report).
	Report func(line string)
}

func (o *Options) report(line string) {
	if o.Report != nil {
		o.Report(line)
	}
}

// selected reports whether name matches o.Patterns (or always, if none are
// configured).
func (o *Options) selected(name string) bool {
	if len(o.Patterns) == 0 {
		return true
	}
	for _, pat := range o.Patterns {
		if ok, err := path.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}
