// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Mode selects the persistence model of a store.
type Mode int

const (
	// Append stores every reading as a new row.
	Append Mode = iota
	// Upsert keeps a single row per sensor, replaced by each new reading.
	Upsert
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case Upsert:
		return "upsert"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "append" or "upsert".
func ParseMode(v string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "append", "insert", "":
		return Append, nil
	case "upsert", "merge":
		return Upsert, nil
	default:
		return Append, invalidf("unknown store mode %q", v)
	}
}

// Store is the backing store of readings.
type Store interface {
	// Mode returns the persistence model of the store.
	Mode() Mode

	// WriteChunk writes all the provided readings as one atomic unit.
	WriteChunk(ctx context.Context, vs []Reading) error

	// Readings iterates over all stored readings.
	Readings(ctx context.Context) iter.Seq2[Reading, error]

	Close() error
}
