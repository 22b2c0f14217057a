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
	"io"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// State is the live state of one shard. The stream and destination are set
// together when a file is opened and cleared together when it is closed.
type State struct {
	Key string

	// Sequence is the zero-based ordinal of the current file for this shard.
	Sequence int

	// Rows and Bytes count what has been written to the current file.
	Rows  int64
	Bytes int64

	destination string
	stream      io.WriteCloser
}

// IsOpen reports whether the shard has a file open.
func (s *State) IsOpen() bool {
	return s.stream != nil
}

// Destination returns the identifier of the open file, or "" when closed.
func (s *State) Destination() string {
	return s.destination
}

func (s *State) attach(destination string, stream io.WriteCloser) {
	s.destination = destination
	s.stream = stream
	s.Rows = 0
	s.Bytes = 0
}

// Registry maps shard keys to their state. It is not safe for concurrent
// use; each writer owns exactly one.
type Registry struct {
	shards map[string]*State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shards: make(map[string]*State)}
}

// GetOrCreate returns the state for key, creating a fresh one on first use.
func (r *Registry) GetOrCreate(key string) *State {
	if s, ok := r.shards[key]; ok {
		return s
	}
	s := &State{Key: key}
	r.shards[key] = s
	return s
}

// Has reports whether key has ever been seen.
func (r *Registry) Has(key string) bool {
	_, ok := r.shards[key]
	return ok
}

// Len returns the number of shards seen.
func (r *Registry) Len() int {
	return len(r.shards)
}

// Keys returns every key seen, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.shards))
	for k := range r.shards {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CloseCurrent closes the open file for key and returns its completion.
// ok is false when the shard is unknown or has no open file. The stream is
// released even when Close fails; the completion is then marked Aborted and
// returned together with the error.
func (r *Registry) CloseCurrent(key string) (c Completion, ok bool, err error) {
	s, found := r.shards[key]
	if !found || s.stream == nil {
		return Completion{}, false, nil
	}

	stream, destination := s.stream, s.destination
	c = Completion{
		Destination: destination,
		Key:         key,
		Sequence:    s.Sequence,
		Rows:        s.Rows,
		Bytes:       s.Bytes,
	}
	s.stream = nil
	s.destination = ""

	if err := stream.Close(); err != nil {
		c.Aborted = true
		return c, true, &ProcessingError{Kind: KindWrite, Key: key, Destination: destination, Err: err}
	}
	return c, true, nil
}

// CloseAll closes every open file in key order. Every stream is attempted
// even if some fail; files whose Close failed are included with Aborted set,
// alongside the accumulated error.
func (r *Registry) CloseAll() ([]Completion, error) {
	var (
		done []Completion
		errs *multierror.Error
	)
	for _, key := range r.Keys() {
		c, ok, err := r.CloseCurrent(key)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if ok {
			done = append(done, c)
		}
	}
	return done, errs.ErrorOrNil()
}
