// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors_test

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/sensors"
)

// memStore is an in-memory store used by unit tests.
type memStore struct {
	mode sensors.Mode

	mu     sync.Mutex
	rows   []sensors.Reading
	chunks [][]sensors.Reading

	failAt  int   // 1-based index of the failing WriteChunk call, 0 never fails
	failErr error // error returned by the failing call
	readErr error // error yielded by Readings
	calls   int
}

func newMemStore(mode sensors.Mode) *memStore {
	return &memStore{mode: mode}
}

func (s *memStore) Mode() sensors.Mode { return s.mode }

func (s *memStore) WriteChunk(ctx context.Context, vs []sensors.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return s.failErr
	}

	s.chunks = append(s.chunks, slices.Clone(vs))
	for _, v := range vs {
		if s.mode == sensors.Upsert {
			i := slices.IndexFunc(s.rows, func(r sensors.Reading) bool { return r.ID == v.ID })
			if i >= 0 {
				s.rows[i] = v
				continue
			}
		}
		s.rows = append(s.rows, v)
	}
	return nil
}

func (s *memStore) Readings(ctx context.Context) iter.Seq2[sensors.Reading, error] {
	return func(yield func(sensors.Reading, error) bool) {
		s.mu.Lock()
		rows := slices.Clone(s.rows)
		rerr := s.readErr
		s.mu.Unlock()

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
		if rerr != nil {
			yield(sensors.Reading{}, rerr)
		}
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := make([]int, len(s.chunks))
	for i, c := range s.chunks {
		o[i] = len(c)
	}
	return o
}

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		v    string
		want sensors.Mode
		err  bool
	}{
		{v: "", want: sensors.Append},
		{v: "append", want: sensors.Append},
		{v: "INSERT", want: sensors.Append},
		{v: "upsert", want: sensors.Upsert},
		{v: " merge ", want: sensors.Upsert},
		{v: "replace", err: true},
	} {
		t.Run(tc.v, func(t *testing.T) {
			got, err := sensors.ParseMode(tc.v)
			if tc.err {
				assert.ErrorIs(t, err, sensors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, must(sensors.ParseMode(got.String())))
		})
	}
}

func TestBatchError(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&sensors.BatchError{Chunk: 1, Written: 10, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "could not write chunk 1 (10 records committed): disk full")

	var berr *sensors.BatchError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 10, berr.Written)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
