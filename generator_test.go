// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/sensors"
)

var t0 = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestGenerator(seed uint64) *sensors.Generator {
	return sensors.NewGenerator(
		sensors.DefaultProfile,
		sensors.WithSource(rand.NewPCG(seed, seed+1)),
		sensors.WithClock(func() time.Time { return t0 }),
	)
}

func TestGenerateBatch(t *testing.T) {
	gen := newTestGenerator(42)

	vs := gen.GenerateBatch(25, 10)
	require.Len(t, vs, 25)

	for i, v := range vs {
		assert.Equal(t, sensors.SensorID(i%10+1), v.ID, "reading %d", i)
		assert.Equal(t, t0, v.Time, "reading %d", i)
	}
	assert.Equal(t, "001", vs[0].ID)
	assert.Equal(t, "010", vs[9].ID)
	assert.Equal(t, "001", vs[10].ID)
}

func TestGenerateBatchDefaults(t *testing.T) {
	gen := newTestGenerator(1)

	assert.Empty(t, gen.GenerateBatch(0, 10))
	assert.Empty(t, gen.GenerateBatch(-3, 10))

	vs := gen.GenerateBatch(3, 0)
	require.Len(t, vs, 3)
	assert.Equal(t, []string{"001", "002", "003"}, []string{vs[0].ID, vs[1].ID, vs[2].ID})
}

func TestGenerateBounds(t *testing.T) {
	gen := newTestGenerator(7)

	for i, v := range gen.GenerateBatch(5000, 20) {
		assert.True(t, v.T >= 0 && v.T <= 20, "reading %d: T=%v", i, v.T)
		assert.True(t, v.Wind >= 5 && v.Wind <= 25, "reading %d: wind=%v", i, v.Wind)
		assert.True(t, v.H >= 20 && v.H <= 60, "reading %d: H=%v", i, v.H)
		assert.True(t, v.CO2 >= 370 && v.CO2 <= 620, "reading %d: CO2=%v", i, v.CO2)

		for _, m := range sensors.Metrics {
			x := v.Value(m)
			assert.InDelta(t, math.Round(x*100)/100, x, 1e-9, "reading %d: %v=%v not rounded", i, m, x)
		}
	}
}

func TestRangeClamp(t *testing.T) {
	prof := sensors.Profile{
		T:    sensors.Range{Base: 0, Min: -10, Max: -5, Lo: 0, Hi: math.Inf(+1)},
		Wind: sensors.Range{Base: 0, Min: 0, Max: 1, Lo: 0, Hi: math.Inf(+1)},
		H:    sensors.Range{Base: 95, Min: 10, Max: 20, Lo: 0, Hi: 100},
		CO2:  sensors.Range{Base: 420, Min: -200, Max: -150, Lo: 300, Hi: math.Inf(+1)},
	}
	gen := sensors.NewGenerator(prof, sensors.WithSource(rand.NewPCG(3, 4)))

	for _, v := range gen.GenerateBatch(100, 1) {
		assert.Equal(t, 0.0, v.T)
		assert.Equal(t, 100.0, v.H)
		assert.Equal(t, 300.0, v.CO2)
	}
}

func TestGenerateReproducible(t *testing.T) {
	v1 := newTestGenerator(99).GenerateBatch(20, 20)
	v2 := newTestGenerator(99).GenerateBatch(20, 20)
	assert.Equal(t, v1, v2)

	v := newTestGenerator(99).Generate("042", t0.Add(time.Hour))
	assert.Equal(t, "042", v.ID)
	assert.Equal(t, t0.Add(time.Hour), v.Time)
}

func TestSensorID(t *testing.T) {
	assert.Equal(t, "001", sensors.SensorID(1))
	assert.Equal(t, "020", sensors.SensorID(20))
	assert.Equal(t, "1234", sensors.SensorID(1234))
}
