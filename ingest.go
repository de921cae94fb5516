// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxBatchSize is the default upper bound of a chunk size.
const DefaultMaxBatchSize = 1000

// Ingester generates readings and writes them to a store.
type Ingester struct {
	gen *Generator
	w   *Writer
	log *zap.Logger

	maxBatch int
}

type IngesterOption func(*Ingester)

// WithIngesterLogger sets the logger of the ingester.
func WithIngesterLogger(log *zap.Logger) IngesterOption {
	return func(ing *Ingester) {
		ing.log = log
	}
}

// WithMaxBatchSize sets the largest accepted batch size.
func WithMaxBatchSize(n int) IngesterOption {
	return func(ing *Ingester) {
		ing.maxBatch = n
	}
}

func NewIngester(gen *Generator, w *Writer, opts ...IngesterOption) *Ingester {
	ing := &Ingester{
		gen:      gen,
		w:        w,
		log:      zap.NewNop(),
		maxBatch: DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(ing)
	}
	if ing.log == nil {
		ing.log = zap.NewNop()
	}
	if ing.maxBatch <= 0 {
		ing.maxBatch = DefaultMaxBatchSize
	}
	return ing
}

// Run generates one reading per sensor for n sensors and writes them in
// chunks of size readings. It returns the number of committed readings.
func (ing *Ingester) Run(ctx context.Context, n, size int) (int, error) {
	switch {
	case n <= 0:
		return 0, invalidf("sensor count must be positive (got %d)", n)
	case size <= 0:
		return 0, invalidf("batch size must be positive (got %d)", size)
	case size > ing.maxBatch:
		return 0, invalidf("batch size must not exceed %d (got %d)", ing.maxBatch, size)
	}

	var (
		beg = time.Now()
		log = ing.log.With(zap.String("run_id", uuid.NewString()))
	)
	log.Info("ingesting sensor readings",
		zap.Int("sensor_count", n),
		zap.Int("batch_size", size),
	)

	vs := ing.gen.GenerateBatch(n, n)
	total, err := ing.w.WriteBatches(ctx, vs, size)
	if err != nil {
		log.Error("could not ingest sensor readings",
			zap.Int("committed", total),
			zap.Error(err),
		)
		return total, err
	}

	log.Info("ingested sensor readings",
		zap.Int("committed", total),
		zap.Duration("elapsed", time.Since(beg)),
	)
	return total, nil
}
