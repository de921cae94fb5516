// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensrv // import "sbinet.org/x/sensors/sensrv"

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"sbinet.org/x/sensors"
	"sbinet.org/x/sensors/internal/metrics"
)

// Scheduler runs an ingestion of a fixed size at a fixed interval.
type Scheduler struct {
	ing *sensors.Ingester
	log *zap.Logger
	mon *metrics.Metrics

	Interval     time.Duration
	SensorCount  int
	BatchSize    int
	RunOnStartup bool
}

// NewScheduler creates a scheduler ingesting 20 sensors in batches of 10
// every 10 seconds, starting immediately.
func NewScheduler(ing *sensors.Ingester, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		ing:          ing,
		log:          log,
		mon:          metrics.Get(),
		Interval:     10 * time.Second,
		SensorCount:  DefaultSensorCount,
		BatchSize:    DefaultBatchSize,
		RunOnStartup: true,
	}
}

// Run runs the timer trigger until ctx is done.
// Failing runs are logged and do not stop the scheduler.
func (sch *Scheduler) Run(ctx context.Context) error {
	if sch.Interval <= 0 {
		return fmt.Errorf("%w: timer interval must be positive (got %v)", sensors.ErrValidation, sch.Interval)
	}

	sch.log.Info("starting timer trigger",
		zap.Duration("interval", sch.Interval),
		zap.Int("sensor_count", sch.SensorCount),
		zap.Int("batch_size", sch.BatchSize),
		zap.Bool("run_on_startup", sch.RunOnStartup),
	)

	if sch.RunOnStartup {
		sch.tick(ctx)
	}

	tck := time.NewTicker(sch.Interval)
	defer tck.Stop()
	for {
		select {
		case <-ctx.Done():
			sch.log.Info("stopping timer trigger")
			return nil
		case <-tck.C:
			sch.tick(ctx)
		}
	}
}

func (sch *Scheduler) tick(ctx context.Context) {
	n, err := sch.ing.Run(ctx, sch.SensorCount, sch.BatchSize)
	if ctx.Err() != nil {
		return
	}
	sch.mon.RecordRun("timer", err)
	if err != nil {
		sch.log.Error("timer trigger failed",
			zap.Int("committed", n),
			zap.Error(err),
		)
		return
	}
	sch.log.Info("timer trigger complete", zap.Int("committed", n))
}
