// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package naming builds shard naming functions: given a shard key and a
// zero-based sequence number they return the path of the next output file.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
)

// EmptyKey is substituted for an empty shard key so that every shard still
// gets a usable file name.
const EmptyKey = "_empty"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._=+-]+`)

// SanitizeKey makes key safe to use as a single path element. Keys that are
// already safe are returned as is. Any other key is cleaned up and suffixed
// with "~" and the xxhash of the raw key, so distinct keys never share a
// name: "~" cannot appear in a key that was left untouched.
func SanitizeKey(key string) string {
	s := unsafeChars.ReplaceAllString(key, "_")
	switch s {
	case "":
		s = EmptyKey
	case ".", "..":
		s = strings.Repeat("_", len(s))
	}
	if s == key {
		return s
	}
	return fmt.Sprintf("%s~%016x", s, xxhash.Sum64String(key))
}

// Default lays files out as dir/{key}-{seq}{ext}.
func Default(dir, ext string) func(key string, seq int) string {
	return func(key string, seq int) string {
		return filepath.Join(dir, fmt.Sprintf("%s-%d%s", SanitizeKey(key), seq, ext))
	}
}

// Hive lays files out as dir/column=key/part-NNNN{ext}, the partition layout
// most query engines understand.
func Hive(dir, column, ext string) func(key string, seq int) string {
	column = SanitizeKey(column)
	return func(key string, seq int) string {
		return filepath.Join(dir, column+"="+SanitizeKey(key), fmt.Sprintf("part-%04d%s", seq, ext))
	}
}

type segment struct {
	literal string
	token   string
	width   int
}

var tokenPattern = regexp.MustCompile(`\{([a-z]+)(?::(\d+))?\}`)

// Template expands a file name template relative to dir. Tokens:
//
//	{key}     the shard key, passed through SanitizeKey
//	{seq}     the sequence number, {seq:4} zero pads it to four digits
//	{run}     a ULID fixed for the lifetime of the returned function
//
// The template must contain {key}.
func Template(dir, tmpl string) (func(key string, seq int) string, error) {
	segs, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	if !hasToken(segs, "key") {
		return nil, fmt.Errorf("naming template %q must contain {key}", tmpl)
	}
	runID := strings.ToLower(ulid.Make().String())

	return func(key string, seq int) string {
		var b strings.Builder
		for _, s := range segs {
			switch s.token {
			case "":
				b.WriteString(s.literal)
			case "key":
				b.WriteString(SanitizeKey(key))
			case "seq":
				if s.width > 0 {
					fmt.Fprintf(&b, "%0*d", s.width, seq)
				} else {
					b.WriteString(strconv.Itoa(seq))
				}
			case "run":
				b.WriteString(runID)
			}
		}
		return filepath.Join(dir, filepath.FromSlash(b.String()))
	}, nil
}

// HasSequence reports whether tmpl contains {seq}. Without it every file of a
// shard gets the same name, which is only safe when splitting is disabled.
func HasSequence(tmpl string) bool {
	segs, err := parseTemplate(tmpl)
	if err != nil {
		return false
	}
	return hasToken(segs, "seq")
}

func hasToken(segs []segment, token string) bool {
	for _, s := range segs {
		if s.token == token {
			return true
		}
	}
	return false
}

func parseTemplate(tmpl string) ([]segment, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, fmt.Errorf("naming template is empty")
	}

	var segs []segment
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(tmpl, -1) {
		if m[0] > last {
			segs = append(segs, segment{literal: tmpl[last:m[0]]})
		}
		token := tmpl[m[2]:m[3]]
		width := 0
		if m[4] >= 0 {
			width, _ = strconv.Atoi(tmpl[m[4]:m[5]])
		}
		switch token {
		case "key", "run":
			if width > 0 {
				return nil, fmt.Errorf("naming template %q: {%s} does not take a width", tmpl, token)
			}
		case "seq":
		default:
			return nil, fmt.Errorf("naming template %q: unknown token {%s}", tmpl, token)
		}
		segs = append(segs, segment{token: token, width: width})
		last = m[1]
	}
	if last < len(tmpl) {
		segs = append(segs, segment{literal: tmpl[last:]})
	}
	return segs, nil
}
