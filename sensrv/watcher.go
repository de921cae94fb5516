// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensrv // import "sbinet.org/x/sensors/sensrv"

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"sbinet.org/x/sensors"
	"sbinet.org/x/sensors/internal/metrics"
)

// Watcher recomputes the statistics of all sensors each time readings are
// committed to the store.
type Watcher struct {
	feed sensors.Feed
	agg  *sensors.Aggregator
	log  *zap.Logger
	mon  *metrics.Metrics

	// done, when set, is called after each processed change set.
	done func(map[string]sensors.Summary, error)
}

func NewWatcher(feed sensors.Feed, agg *sensors.Aggregator, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		feed: feed,
		agg:  agg,
		log:  log,
		mon:  metrics.Get(),
	}
}

// Run processes change sets until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("starting change watcher")
	err := w.feed.Subscribe(ctx, func(cs sensors.ChangeSet) {
		w.process(ctx, cs)
	})
	if err != nil {
		return fmt.Errorf("could not watch sensor changes: %w", err)
	}
	w.log.Info("stopping change watcher")
	return nil
}

func (w *Watcher) process(ctx context.Context, cs sensors.ChangeSet) {
	w.log.Info("sensor readings changed",
		zap.Stringer("mode", cs.Mode),
		zap.Int("rows", len(cs.Readings)),
		zap.Time("committed_at", cs.Time),
	)

	sums, err := w.agg.ComputeAll(ctx)
	switch {
	case errors.Is(err, sensors.ErrNoData):
		w.log.Info("no sensor data to aggregate")
		err = nil
	case err != nil:
		w.log.Error("could not compute sensor statistics", zap.Error(err))
	default:
		logSummaries(w.log, sums)
	}
	w.mon.RecordRun("watcher", err)

	if w.done != nil {
		w.done(sums, err)
	}
}
