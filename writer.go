// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"sbinet.org/x/sensors/internal/metrics"
)

// Writer writes readings to a store in bounded-size chunks, one transaction
// per chunk.
type Writer struct {
	store Store
	log   *zap.Logger
	ntf   Notifier
	mon   *metrics.Metrics
}

type WriterOption func(*Writer)

// WithWriterLogger sets the logger of the writer.
func WithWriterLogger(log *zap.Logger) WriterOption {
	return func(w *Writer) {
		w.log = log
	}
}

// WithNotifier sets the notifier told about each committed chunk.
func WithNotifier(ntf Notifier) WriterOption {
	return func(w *Writer) {
		w.ntf = ntf
	}
}

func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{
		store: store,
		log:   zap.NewNop(),
		mon:   metrics.Get(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// WriteBatches writes vs in chunks of at most size readings and returns the
// number of committed readings.
// Writing stops at the first failing chunk: earlier chunks stay committed and
// the returned error is a *BatchError.
func (w *Writer) WriteBatches(ctx context.Context, vs []Reading, size int) (int, error) {
	if size < 1 {
		return 0, invalidf("batch size must be positive (got %d)", size)
	}
	if len(vs) == 0 {
		return 0, nil
	}

	var (
		mode  = w.store.Mode()
		total = 0
		chunk = 0
	)
	for part := range slices.Chunk(vs, size) {
		beg := time.Now()
		err := w.store.WriteChunk(ctx, part)
		w.mon.RecordChunk(mode.String(), len(part), time.Since(beg), err)
		if err != nil {
			if !errors.Is(err, ErrStore) && !errors.Is(err, ErrConnection) {
				err = fmt.Errorf("%w: %w", ErrStore, err)
			}
			w.log.Error("could not write chunk",
				zap.Int("chunk", chunk),
				zap.Int("size", len(part)),
				zap.Int("committed", total),
				zap.Error(err),
			)
			return total, &BatchError{Chunk: chunk, Written: total, Err: err}
		}
		total += len(part)
		w.log.Debug("chunk committed",
			zap.Int("chunk", chunk),
			zap.Int("size", len(part)),
			zap.Int("committed", total),
		)
		w.notify(ctx, mode, part)
		chunk++
	}

	return total, nil
}

func (w *Writer) notify(ctx context.Context, mode Mode, vs []Reading) {
	if w.ntf == nil {
		return
	}
	cs := ChangeSet{
		Mode:     mode,
		Readings: slices.Clone(vs),
		Time:     time.Now().UTC(),
	}
	err := w.ntf.Notify(ctx, cs)
	if err != nil {
		w.log.Error("could not notify committed readings",
			zap.Int("readings", len(vs)),
			zap.Error(err),
		)
	}
}
