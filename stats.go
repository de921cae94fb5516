// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"sbinet.org/x/sensors/internal/metrics"
)

// Stats summarizes a series of values.
// Nil fields mean the series was empty.
type Stats struct {
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	Max    *float64 `json:"max"`
	Min    *float64 `json:"min"`
}

// Empty reports whether the summarized series had no values.
func (s Stats) Empty() bool {
	return s.Mean == nil
}

// Summary holds the statistics of all metrics of one sensor.
type Summary struct {
	N    int   `json:"n"`
	T    Stats `json:"Temperature"`
	Wind Stats `json:"Wind"`
	H    Stats `json:"RHumidity"`
	CO2  Stats `json:"CO2"`
}

// Stats returns the statistics of the requested metric.
func (s Summary) Stats(m Metric) Stats {
	switch m {
	case Temperature:
		return s.T
	case Wind:
		return s.Wind
	case Humidity:
		return s.H
	case CO2:
		return s.CO2
	default:
		panic(fmt.Errorf("sensors: invalid metric %d", m))
	}
}

// ComputeStatistics returns the mean, median, min and max of vs.
func ComputeStatistics(vs []float64) Stats {
	if len(vs) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(vs)
	slices.Sort(sorted)

	var (
		mean = stat.Mean(sorted, nil)
		lo   = floats.Min(sorted)
		hi   = floats.Max(sorted)
		mid  = len(sorted) / 2
		med  = sorted[mid]
	)
	if len(sorted)%2 == 0 {
		med = (sorted[mid-1] + sorted[mid]) / 2
	}

	return Stats{
		Mean:   &mean,
		Median: &med,
		Max:    &hi,
		Min:    &lo,
	}
}

// Aggregator computes per-sensor statistics over all stored readings.
type Aggregator struct {
	store Store
	log   *zap.Logger
	mon   *metrics.Metrics
}

type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the logger of the aggregator.
func WithAggregatorLogger(log *zap.Logger) AggregatorOption {
	return func(agg *Aggregator) {
		agg.log = log
	}
}

func NewAggregator(store Store, opts ...AggregatorOption) *Aggregator {
	agg := &Aggregator{
		store: store,
		log:   zap.NewNop(),
		mon:   metrics.Get(),
	}
	for _, opt := range opts {
		opt(agg)
	}
	if agg.log == nil {
		agg.log = zap.NewNop()
	}
	return agg
}

// ComputeAll reads all stored readings and returns their statistics, keyed by
// sensor id. It returns ErrNoData when the store holds no reading.
func (agg *Aggregator) ComputeAll(ctx context.Context) (map[string]Summary, error) {
	beg := time.Now()
	defer func() {
		agg.mon.RecordAggregation(time.Since(beg))
	}()

	type series [4][]float64
	groups := make(map[string]*series)
	for row, err := range agg.store.Readings(ctx) {
		if err != nil {
			if !errors.Is(err, ErrStore) && !errors.Is(err, ErrConnection) {
				err = fmt.Errorf("%w: %w", ErrStore, err)
			}
			return nil, fmt.Errorf("could not read rows: %w", err)
		}
		grp, ok := groups[row.ID]
		if !ok {
			grp = new(series)
			groups[row.ID] = grp
		}
		for _, m := range Metrics {
			grp[m] = append(grp[m], row.Value(m))
		}
	}

	if len(groups) == 0 {
		return nil, ErrNoData
	}

	out := make(map[string]Summary, len(groups))
	for id, grp := range groups {
		out[id] = Summary{
			N:    len(grp[Temperature]),
			T:    ComputeStatistics(grp[Temperature]),
			Wind: ComputeStatistics(grp[Wind]),
			H:    ComputeStatistics(grp[Humidity]),
			CO2:  ComputeStatistics(grp[CO2]),
		}
	}
	agg.log.Debug("aggregation complete",
		zap.Int("sensors", len(out)),
		zap.Duration("elapsed", time.Since(beg)),
	)

	return out, nil
}

// SensorIDs returns the sorted sensor ids of a statistics mapping.
func SensorIDs(sums map[string]Summary) []string {
	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
