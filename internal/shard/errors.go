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
	"errors"
	"fmt"
)

// Common errors returned by the writer. Use errors.Is to classify a
// *ProcessingError.
var (
	ErrSourceRead     = errors.New("shard: failed to read record from source")
	ErrStreamOpen     = errors.New("shard: failed to open output stream")
	ErrWrite          = errors.New("shard: failed to write output")
	ErrWriterClosed   = errors.New("shard: writer is already closed")
	ErrHeaderMismatch = errors.New("shard: source header does not match writer header")
)

// Kind classifies where processing failed.
type Kind int

const (
	KindSourceRead Kind = iota + 1
	KindStreamOpen
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindSourceRead:
		return "source read"
	case KindStreamOpen:
		return "stream open"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSourceRead:
		return ErrSourceRead
	case KindStreamOpen:
		return ErrStreamOpen
	case KindWrite:
		return ErrWrite
	default:
		return nil
	}
}

// ProcessingError is a fatal I/O failure. Key and Destination are empty when
// the failure is not tied to a shard.
type ProcessingError struct {
	Kind        Kind
	Key         string
	Destination string
	Err         error
}

func (e *ProcessingError) Error() string {
	switch {
	case e.Destination != "":
		return fmt.Sprintf("%s failed for shard %q at %s: %v", e.Kind, e.Key, e.Destination, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s failed for shard %q: %v", e.Kind, e.Key, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
}

func (e *ProcessingError) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// ConfigError represents a writer configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "shard config: " + e.Field + " " + e.Message
}
