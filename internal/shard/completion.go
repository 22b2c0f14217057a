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
	"context"

	"github.com/cardinalhq/shardcsv/internal/filereader"
	"github.com/cardinalhq/shardcsv/internal/sink"
)

// KeySelector maps a record to the key of the shard it belongs to. It should
// be total: return a sentinel such as "unknown" rather than fail.
type KeySelector func(rec filereader.Record) string

// NamingFunc maps a shard key and zero-based sequence number to a
// destination. Distinct pairs must yield distinct destinations; the writer
// does not check.
type NamingFunc func(key string, seq int) string

// StreamFactory opens a writable sink for a destination. Failures abort
// processing with ErrStreamOpen.
type StreamFactory = sink.Factory

// Completion describes a file that has been closed and flushed.
type Completion struct {
	Destination string
	Key         string
	Sequence    int
	Rows        int64
	Bytes       int64

	// Aborted is set when the file was closed because processing failed
	// rather than by a split or the final flush.
	Aborted bool
}

// CompletionFunc is invoked exactly once per file, after it is closed. An
// error aborts processing and is returned to the caller unchanged.
type CompletionFunc func(ctx context.Context, c Completion) error

// NopCompletion ignores completions.
func NopCompletion(context.Context, Completion) error {
	return nil
}

// ChainCompletions runs fns in order, stopping at the first error.
func ChainCompletions(fns ...CompletionFunc) CompletionFunc {
	return func(ctx context.Context, c Completion) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}
}
