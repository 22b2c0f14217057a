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

package shard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cardinalhq/shardcsv/internal/filereader"
)

// memSink is an in-memory stream. Reopening a destination appends to the
// same buffer, like two writers sharing one file handle.
type memSink struct {
	buf      bytes.Buffer
	closes   int
	writeErr error
	closeErr error
}

func (m *memSink) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(p)
}

func (m *memSink) Close() error {
	m.closes++
	return m.closeErr
}

type memFS struct {
	mu     sync.Mutex
	files  map[string]*memSink
	opened []string
	failOn map[string]error
	setup  func(dest string, s *memSink)
}

func newMemFS() *memFS {
	return &memFS{files: map[string]*memSink{}, failOn: map[string]error{}}
}

func (m *memFS) factory(_ context.Context, dest string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[dest]; err != nil {
		return nil, err
	}
	m.opened = append(m.opened, dest)
	s, ok := m.files[dest]
	if !ok {
		s = &memSink{}
		m.files[dest] = s
	}
	if m.setup != nil {
		m.setup(dest, s)
	}
	return s, nil
}

func (m *memFS) content(dest string) string {
	if s, ok := m.files[dest]; ok {
		return s.buf.String()
	}
	return ""
}

type recorder struct {
	completions []Completion
	failOn      map[string]error
}

func (r *recorder) notify(_ context.Context, c Completion) error {
	r.completions = append(r.completions, c)
	if r.failOn != nil {
		return r.failOn[c.Destination]
	}
	return nil
}

func (r *recorder) destinations() []string {
	out := make([]string, len(r.completions))
	for i, c := range r.completions {
		out[i] = c.Destination
	}
	return out
}

func simpleNaming(key string, seq int) string {
	return fmt.Sprintf("%s-%d", key, seq)
}

func firstColumn(rec filereader.Record) string {
	if v, ok := rec.Get(0); ok {
		return v
	}
	return "unknown"
}

// rows builds records whose first field is the key and second its position.
func rows(keys ...string) [][]string {
	out := make([][]string, len(keys))
	for i, k := range keys {
		out[i] = []string{k, fmt.Sprint(i)}
	}
	return out
}

func lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// failingSource yields its rows and then err.
type failingSource struct {
	rows [][]string
	pos  int
	err  error
}

func (f *failingSource) Header() []string { return nil }

func (f *failingSource) Next(context.Context) (filereader.Record, error) {
	if f.pos < len(f.rows) {
		f.pos++
		return filereader.Record{Fields: f.rows[f.pos-1]}, nil
	}
	if f.err != nil {
		return filereader.Record{}, f.err
	}
	return filereader.Record{}, io.EOF
}

var errBoom = errors.New("boom")
