// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics holds the Prometheus collectors of the sensors services.
package metrics // import "sbinet.org/x/sensors/internal/metrics"

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "sensors_"

var rowsWrittenCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "rows_written_total",
		Help: "Number of sensor readings committed to the store",
	},
	[]string{"mode"},
)

var chunksCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "chunks_total",
		Help: "Number of chunk transactions, by outcome",
	},
	[]string{"mode", "outcome"},
)

var chunkWriteTimeHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    prefix + "chunk_write_seconds",
		Help:    "Time taken to write and commit one chunk of readings",
		Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"mode"},
)

var aggregationTimeHist = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "aggregation_seconds",
		Help:    "Time taken to fetch and aggregate all stored readings",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
)

var runsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "runs_total",
		Help: "Number of trigger invocations, by trigger and outcome",
	},
	[]string{"trigger", "outcome"},
)

// Metrics records ingestion and aggregation measurements.
// The zero value is ready to use.
type Metrics struct{}

var m = &Metrics{}

func Get() *Metrics {
	return m
}

func (m *Metrics) RecordChunk(mode string, rows int, dt time.Duration, err error) {
	chunkWriteTimeHist.WithLabelValues(mode).Observe(dt.Seconds())
	if err != nil {
		chunksCounter.WithLabelValues(mode, "failure").Inc()
		return
	}
	chunksCounter.WithLabelValues(mode, "success").Inc()
	rowsWrittenCounter.WithLabelValues(mode).Add(float64(rows))
}

func (m *Metrics) RecordAggregation(dt time.Duration) {
	aggregationTimeHist.Observe(dt.Seconds())
}

func (m *Metrics) RecordRun(trigger string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	runsCounter.WithLabelValues(trigger, outcome).Inc()
}
