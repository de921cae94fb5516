// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports bad caller-supplied parameters.
	ErrValidation = errors.New("sensors: invalid parameter")

	// ErrConnection reports a store that could not be reached or authenticated to.
	ErrConnection = errors.New("sensors: could not connect to store")

	// ErrStore reports a failed insert, upsert or fetch operation.
	ErrStore = errors.New("sensors: store operation failed")

	// ErrNoData reports an aggregation over an empty table.
	ErrNoData = errors.New("sensors: no data")
)

// BatchError describes a chunk that could not be committed.
// Chunks before it stay committed.
type BatchError struct {
	Chunk   int   // index of the failing chunk
	Written int   // number of readings committed before the failure
	Err     error // underlying store error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("could not write chunk %d (%d records committed): %v", e.Chunk, e.Written, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
