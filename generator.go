// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Range describes a baseline value with a uniform random variation around it,
// clamped to physical bounds.
type Range struct {
	Base     float64
	Min, Max float64 // variation offsets from Base
	Lo, Hi   float64 // physical bounds, ignored when infinite
}

func (r Range) draw(rnd *rand.Rand) float64 {
	v := r.Base + r.Min + rnd.Float64()*(r.Max-r.Min)
	v = max(v, r.Lo)
	v = min(v, r.Hi)
	return round2(v)
}

// Profile holds the value ranges of all metrics.
type Profile struct {
	T, Wind, H, CO2 Range
}

// DefaultProfile is a temperate outdoor climate.
var DefaultProfile = Profile{
	T:    Range{Base: 10, Min: -10, Max: +10, Lo: math.Inf(-1), Hi: math.Inf(+1)},
	Wind: Range{Base: 5, Min: 0, Max: +20, Lo: 0, Hi: math.Inf(+1)},
	H:    Range{Base: 40, Min: -20, Max: +20, Lo: 0, Hi: 100},
	CO2:  Range{Base: 420, Min: -50, Max: +200, Lo: 300, Hi: math.Inf(+1)},
}

// Generator produces synthetic sensor readings.
// A Generator is safe for concurrent use.
type Generator struct {
	prof Profile
	now  func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

type GenOption func(*Generator)

// WithSource sets the random source of the generator.
func WithSource(src rand.Source) GenOption {
	return func(gen *Generator) {
		gen.rnd = rand.New(src)
	}
}

// WithClock sets the function providing capture times.
func WithClock(now func() time.Time) GenOption {
	return func(gen *Generator) {
		gen.now = now
	}
}

func NewGenerator(prof Profile, opts ...GenOption) *Generator {
	gen := &Generator{
		prof: prof,
		now:  time.Now,
		rnd:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(gen)
	}
	return gen
}

// Generate creates one reading for the sensor id, captured at t.
func (gen *Generator) Generate(id string, t time.Time) Reading {
	gen.mu.Lock()
	defer gen.mu.Unlock()
	return gen.generate(id, t)
}

func (gen *Generator) generate(id string, t time.Time) Reading {
	return Reading{
		ID:   id,
		T:    gen.prof.T.draw(gen.rnd),
		Wind: gen.prof.Wind.draw(gen.rnd),
		H:    gen.prof.H.draw(gen.rnd),
		CO2:  gen.prof.CO2.draw(gen.rnd),
		Time: t,
	}
}

// GenerateBatch creates count readings, assigning sensor ids cyclically over
// the first n sensor ids. All readings share one capture time.
func (gen *Generator) GenerateBatch(count, n int) []Reading {
	if count <= 0 {
		return []Reading{}
	}
	if n <= 0 {
		n = count
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()

	var (
		now = gen.now().UTC()
		vs  = make([]Reading, count)
	)
	for i := range vs {
		vs[i] = gen.generate(SensorID(i%n+1), now)
	}
	return vs
}

// SensorID returns the identifier of the i-th sensor (1-based).
func SensorID(i int) string {
	return fmt.Sprintf("%03d", i)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
