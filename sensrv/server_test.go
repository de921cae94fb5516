// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensrv

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/sensors"
	"sbinet.org/x/sensors/internal/sqlstore"
)

var t0 = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	rows    []sensors.Reading
	calls   int
	failAt  int   // first failing WriteChunk call (1-based), 0 never fails
	err     error // WriteChunk error
	readErr error // Readings error
}

func (s *fakeStore) Mode() sensors.Mode { return sensors.Append }

func (s *fakeStore) WriteChunk(ctx context.Context, vs []sensors.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return s.err
	}
	s.rows = append(s.rows, vs...)
	return nil
}

func (s *fakeStore) Readings(ctx context.Context) iter.Seq2[sensors.Reading, error] {
	return func(yield func(sensors.Reading, error) bool) {
		s.mu.Lock()
		rows, err := slices.Clone(s.rows), s.readErr
		s.mu.Unlock()
		if err != nil {
			yield(sensors.Reading{}, err)
			return
		}
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (s *fakeStore) Close() error { return nil }

func newGenerator() *sensors.Generator {
	return sensors.NewGenerator(
		sensors.DefaultProfile,
		sensors.WithSource(rand.NewPCG(1, 2)),
		sensors.WithClock(func() time.Time { return t0 }),
	)
}

func newTestServer(store sensors.Store, opts ...Option) *Server {
	var (
		w   = sensors.NewWriter(store)
		ing = sensors.NewIngester(newGenerator(), w, sensors.WithMaxBatchSize(100))
		agg = sensors.NewAggregator(store)
	)
	return NewServer("/", ing, agg, opts...)
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIngest(t *testing.T) {
	for _, tc := range []struct {
		target string
		want   string
		rows   int
	}{
		{
			target: "/api/ingest",
			want:   "Successfully inserted 20 sensor records (sensor_count=20, batch_size=10)",
			rows:   20,
		},
		{
			target: "/api/ingest?sensor_count=5&batch_size=2",
			want:   "Successfully inserted 5 sensor records (sensor_count=5, batch_size=2)",
			rows:   5,
		},
		{
			target: "/api/ingest?batch_size=50",
			want:   "Successfully inserted 20 sensor records (sensor_count=20, batch_size=50)",
			rows:   20,
		},
	} {
		t.Run(tc.target, func(t *testing.T) {
			store := new(fakeStore)
			rec := get(t, newTestServer(store), tc.target)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.want, rec.Body.String())
			assert.Len(t, store.rows, tc.rows)
		})
	}
}

func TestIngestDefaults(t *testing.T) {
	store := new(fakeStore)
	srv := newTestServer(store, WithDefaults(3, 1))

	rec := get(t, srv, "/api/ingest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully inserted 3 sensor records (sensor_count=3, batch_size=1)", rec.Body.String())
	assert.Equal(t, 3, store.calls)
}

func TestIngestBadRequest(t *testing.T) {
	for _, target := range []string{
		"/api/ingest?sensor_count=abc",
		"/api/ingest?sensor_count=",
		"/api/ingest?sensor_count=0",
		"/api/ingest?batch_size=-3",
		"/api/ingest?batch_size=1.5",
		"/api/ingest?batch_size=101",
	} {
		t.Run(target, func(t *testing.T) {
			store := new(fakeStore)
			rec := get(t, newTestServer(store), target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, store.calls)
		})
	}
}

func TestIngestMethod(t *testing.T) {
	srv := newTestServer(new(fakeStore))
	req := httptest.NewRequest(http.MethodDelete, "/api/ingest", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestStoreFailure(t *testing.T) {
	store := &fakeStore{failAt: 2, err: errors.New("connection reset by peer")}
	rec := get(t, newTestServer(store), "/api/ingest")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection reset by peer")
	assert.Contains(t, rec.Body.String(), "(10 records committed)")
	assert.Len(t, store.rows, 10)
}

func TestMetrics(t *testing.T) {
	store := new(fakeStore)
	srv := newTestServer(store)

	rec := get(t, srv, "/api/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No sensor data found.", strings.TrimSpace(rec.Body.String()))

	rec = get(t, srv, "/api/ingest?sensor_count=4")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = get(t, srv, "/api/ingest?sensor_count=4")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, srv, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var msg MetricsMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "Sensor metrics analysis complete. Check logs for details.", msg.Message)
	assert.Equal(t, []string{"001", "002", "003", "004"}, sensors.SensorIDs(msg.Sensors))
	for id, sum := range msg.Sensors {
		assert.Equal(t, 2, sum.N, "sensor %s", id)
		require.NotNil(t, sum.CO2.Mean, "sensor %s", id)
	}
}

func TestMetricsStoreFailure(t *testing.T) {
	store := &fakeStore{readErr: sensors.ErrConnection}
	rec := get(t, newTestServer(store), "/api/metrics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Error: "))
}

func TestPrometheus(t *testing.T) {
	srv := newTestServer(new(fakeStore))
	require.Equal(t, http.StatusOK, get(t, srv, "/api/ingest?sensor_count=2").Code)

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sensors_rows_written_total")
	assert.Contains(t, rec.Body.String(), `sensors_runs_total{outcome="success",trigger="http"}`)
}

func TestSQLiteEndToEnd(t *testing.T) {
	for _, mode := range []sensors.Mode{sensors.Append, sensors.Upsert} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			store, err := sqlstore.Open(ctx, sqlstore.Options{
				Dialect: sqlstore.SQLite,
				DSN:     filepath.Join(t.TempDir(), "sensors.db"),
				Mode:    mode,
			})
			require.NoError(t, err)
			defer store.Close()

			srv := newTestServer(store)
			for range 3 {
				rec := get(t, srv, "/api/ingest")
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			}

			rec := get(t, srv, "/api/metrics")
			require.Equal(t, http.StatusOK, rec.Code)

			var msg MetricsMessage
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
			require.Len(t, msg.Sensors, 20)

			want := 3
			if mode == sensors.Upsert {
				want = 1
			}
			for id, sum := range msg.Sensors {
				assert.Equal(t, want, sum.N, "sensor %s", id)
			}
		})
	}
}
