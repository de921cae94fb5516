// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sensrv exposes the ingestion and aggregation of sensor readings
// through HTTP, timer and change-notification triggers.
package sensrv // import "sbinet.org/x/sensors/sensrv"

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sbinet.org/x/sensors"
	"sbinet.org/x/sensors/internal/metrics"
)

const (
	DefaultSensorCount = 20
	DefaultBatchSize   = 10
)

// MetricsMessage is the reply of a successful aggregation request.
type MetricsMessage struct {
	Message string                     `json:"message"`
	Sensors map[string]sensors.Summary `json:"sensors"`
}

type Server struct {
	mux *http.ServeMux
	ing *sensors.Ingester
	agg *sensors.Aggregator
	log *zap.Logger
	mon *metrics.Metrics

	count int // default sensor count
	size  int // default batch size
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(srv *Server) {
		srv.log = log
	}
}

// WithDefaults sets the sensor count and batch size used when a request does
// not provide them.
func WithDefaults(count, size int) Option {
	return func(srv *Server) {
		srv.count = count
		srv.size = size
	}
}

func NewServer(root string, ing *sensors.Ingester, agg *sensors.Aggregator, opts ...Option) *Server {
	srv := &Server{
		mux:   http.NewServeMux(),
		ing:   ing,
		agg:   agg,
		log:   zap.NewNop(),
		mon:   metrics.Get(),
		count: DefaultSensorCount,
		size:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.log == nil {
		srv.log = zap.NewNop()
	}
	if srv.count <= 0 {
		srv.count = DefaultSensorCount
	}
	if srv.size <= 0 {
		srv.size = DefaultBatchSize
	}

	root = strings.TrimRight(root, "/")
	srv.mux.HandleFunc(root+"/api/ingest", srv.handleIngest)
	srv.mux.HandleFunc(root+"/api/metrics", srv.handleMetrics)
	srv.mux.Handle(root+"/metrics", promhttp.Handler())
	srv.mux.HandleFunc(root+"/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})

	return srv
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.mux.ServeHTTP(w, r)
}

func (srv *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		err := fmt.Errorf("invalid HTTP method: %s", r.Method)
		srv.log.Warn("rejected ingestion request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
		return
	}

	err := r.ParseForm()
	if err != nil {
		err = fmt.Errorf("could not parse form: %w", err)
		srv.log.Warn("rejected ingestion request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := intParam(r, "sensor_count", srv.count)
	if err != nil {
		srv.log.Warn("rejected ingestion request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	size, err := intParam(r, "batch_size", srv.size)
	if err != nil {
		srv.log.Warn("rejected ingestion request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := srv.ing.Run(r.Context(), count, size)
	srv.mon.RecordRun("http", err)
	switch {
	case errors.Is(err, sensors.ErrValidation):
		srv.log.Warn("rejected ingestion request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		srv.log.Error("could not ingest sensor readings",
			zap.Int("sensor_count", count),
			zap.Int("batch_size", size),
			zap.Int("committed", n),
			zap.Error(err),
		)
		http.Error(w, fmt.Sprintf("Error: %v (%d records committed)", err, n), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Successfully inserted %d sensor records (sensor_count=%d, batch_size=%d)", n, count, size)
}

func (srv *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		err := fmt.Errorf("invalid HTTP method: %s", r.Method)
		srv.log.Warn("rejected metrics request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
		return
	}

	sums, err := srv.agg.ComputeAll(r.Context())
	switch {
	case errors.Is(err, sensors.ErrNoData):
		srv.log.Info("no sensor data to aggregate")
		http.Error(w, "No sensor data found.", http.StatusNotFound)
		return
	case err != nil:
		srv.log.Error("could not compute sensor statistics", zap.Error(err))
		http.Error(w, fmt.Sprintf("Error: %v", err), http.StatusInternalServerError)
		return
	}

	logSummaries(srv.log, sums)

	buf := new(bytes.Buffer)
	err = json.NewEncoder(buf).Encode(MetricsMessage{
		Message: "Sensor metrics analysis complete. Check logs for details.",
		Sensors: sums,
	})
	if err != nil {
		err = fmt.Errorf("could not encode sensor statistics: %w", err)
		srv.log.Error("could not reply to metrics request", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = io.Copy(w, buf)
	if err != nil {
		srv.log.Error("could not write metrics reply", zap.Error(err))
	}
}

// intParam returns the positive integer value of the named request
// parameter, or def when the parameter is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	if !r.Form.Has(name) {
		return def, nil
	}
	raw := strings.TrimSpace(r.Form.Get(name))
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer (got %q)", sensors.ErrValidation, name, raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive (got %d)", sensors.ErrValidation, name, v)
	}
	return v, nil
}

func logSummaries(log *zap.Logger, sums map[string]sensors.Summary) {
	for _, id := range sensors.SensorIDs(sums) {
		sum := sums[id]
		fields := []zap.Field{
			zap.String("sensor_id", id),
			zap.Int("readings", sum.N),
		}
		for _, m := range sensors.Metrics {
			st := sum.Stats(m)
			if st.Empty() {
				continue
			}
			fields = append(fields, zap.Object(m.String(), zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
				enc.AddFloat64("mean", *st.Mean)
				enc.AddFloat64("median", *st.Median)
				enc.AddFloat64("max", *st.Max)
				enc.AddFloat64("min", *st.Min)
				return nil
			})))
		}
		log.Info("sensor statistics", fields...)
	}
}
