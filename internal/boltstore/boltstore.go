// Copyright ©2024 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boltstore provides an implementation of a sensors store, backed by bbolt.
package boltstore // import "sbinet.org/x/sensors/internal/boltstore"

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"sbinet.org/x/sensors"
)

var (
	bucketRoot = []byte("sensors")
	keyLatest  = []byte("latest")
)

// recordSize is the size of an encoded reading: 4 float64 and a timestamp.
const recordSize = 5 * 8

type DB struct {
	db   *bbolt.DB
	mode sensors.Mode
}

var _ sensors.Store = (*DB)(nil)

// Open opens and initializes a boltdb-backed sensors database.
func Open(fname string, mode sensors.Mode) (*DB, error) {
	db, err := bbolt.Open(fname, 0644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: could not open sensors db: %w", sensors.ErrConnection, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketRoot)
		if err != nil {
			return fmt.Errorf("could not create %q bucket: %w", bucketRoot, err)
		}
		if root == nil {
			return fmt.Errorf("could not create %q bucket", bucketRoot)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: could not setup sensors db buckets: %w", sensors.ErrStore, err)
	}

	return &DB{db: db, mode: mode}, nil
}

// Close closes the sensors database.
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close boltdb: %w", err)
		}
		db.db = nil
	}

	return nil
}

// Mode returns the persistence model of the store.
func (db *DB) Mode() sensors.Mode { return db.mode }

// WriteChunk writes the provided readings in one transaction.
func (db *DB) WriteChunk(ctx context.Context, vs []sensors.Reading) error {
	if len(vs) == 0 {
		return nil
	}
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("%w: %w", sensors.ErrStore, err)
	}

	err = db.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRoot)
		if root == nil {
			return fmt.Errorf("could not access %q bucket", bucketRoot)
		}

		for _, v := range vs {
			if v.ID == "" {
				return fmt.Errorf("could not store reading with empty sensor id")
			}
			bkt, err := root.CreateBucketIfNotExists([]byte(v.ID))
			if err != nil {
				return fmt.Errorf("could not create data bucket for sensor %q: %w", v.ID, err)
			}

			key := keyLatest
			if db.mode == sensors.Append {
				seq, err := bkt.NextSequence()
				if err != nil {
					return fmt.Errorf("could not generate key for sensor %q: %w", v.ID, err)
				}
				key = make([]byte, 8)
				binary.BigEndian.PutUint64(key, seq)
			}

			buf := make([]byte, recordSize)
			marshalBinary(v, buf)
			err = bkt.Put(key, buf)
			if err != nil {
				return fmt.Errorf("could not store reading of sensor %q: %w", v.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: could not write data slice to db: %w", sensors.ErrStore, err)
	}
	return nil
}

// Readings iterates over all stored readings, sorted by sensor id.
func (db *DB) Readings(ctx context.Context) iter.Seq2[sensors.Reading, error] {
	return func(yield func(sensors.Reading, error) bool) {
		var rows []sensors.Reading
		err := db.db.View(func(tx *bbolt.Tx) error {
			root := tx.Bucket(bucketRoot)
			if root == nil {
				return fmt.Errorf("could not find %q bucket", bucketRoot)
			}

			return root.ForEach(func(id, v []byte) error {
				if v != nil {
					// not a sensor bucket.
					return nil
				}
				err := ctx.Err()
				if err != nil {
					return err
				}
				bkt := root.Bucket(id)
				return bkt.ForEach(func(k, v []byte) error {
					row, err := unmarshalBinary(string(id), v)
					if err != nil {
						return fmt.Errorf("could not decode reading %x of sensor %q: %w", k, id, err)
					}
					rows = append(rows, row)
					return nil
				})
			})
		})
		if err != nil {
			_ = yield(sensors.Reading{}, fmt.Errorf("%w: could not read rows: %w", sensors.ErrStore, err))
			return
		}

		sort.Stable(sensors.Samples(rows))

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func marshalBinary(v sensors.Reading, p []byte) {
	binary.LittleEndian.PutUint64(p[0:], math.Float64bits(v.T))
	binary.LittleEndian.PutUint64(p[8:], math.Float64bits(v.Wind))
	binary.LittleEndian.PutUint64(p[16:], math.Float64bits(v.H))
	binary.LittleEndian.PutUint64(p[24:], math.Float64bits(v.CO2))
	binary.LittleEndian.PutUint64(p[32:], uint64(v.Time.UTC().UnixMilli()))
}

func unmarshalBinary(id string, p []byte) (sensors.Reading, error) {
	if len(p) != recordSize {
		return sensors.Reading{}, fmt.Errorf("invalid record size (got=%d, want=%d)", len(p), recordSize)
	}
	return sensors.Reading{
		ID:   id,
		T:    math.Float64frombits(binary.LittleEndian.Uint64(p[0:])),
		Wind: math.Float64frombits(binary.LittleEndian.Uint64(p[8:])),
		H:    math.Float64frombits(binary.LittleEndian.Uint64(p[16:])),
		CO2:  math.Float64frombits(binary.LittleEndian.Uint64(p[24:])),
		Time: time.UnixMilli(int64(binary.LittleEndian.Uint64(p[32:]))).UTC(),
	}, nil
}
