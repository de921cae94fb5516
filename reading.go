// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sensors ingests simulated environmental sensor readings into a
// store and aggregates them into per-sensor statistics.
package sensors // import "sbinet.org/x/sensors"

import (
	"fmt"
	"strings"
	"time"
)

// Reading is one timestamped measurement tuple for one sensor.
type Reading struct {
	ID   string    `json:"sensor_id"`
	T    float64   `json:"temperature"` // temperature in °C
	Wind float64   `json:"wind"`        // wind speed in km/h
	H    float64   `json:"rhumidity"`   // relative humidity in %
	CO2  float64   `json:"co2"`         // CO2 level in ppm
	Time time.Time `json:"time"`        // capture time
}

func (r Reading) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "sensor=%s ", r.ID)
	fmt.Fprintf(o, "T=%1.2f°C ", r.T)
	fmt.Fprintf(o, "wind=%1.2f km/h ", r.Wind)
	fmt.Fprintf(o, "H=%1.2f%% ", r.H)
	fmt.Fprintf(o, "CO2=%1.2f ppm ", r.CO2)
	fmt.Fprintf(o, "time=%s", r.Time.UTC().Format(time.RFC3339))
	return o.String()
}

// Value returns the value of the requested metric.
func (r Reading) Value(m Metric) float64 {
	switch m {
	case Temperature:
		return r.T
	case Wind:
		return r.Wind
	case Humidity:
		return r.H
	case CO2:
		return r.CO2
	default:
		panic(fmt.Errorf("sensors: invalid metric %d", m))
	}
}

// Metric identifies one of the measured quantities of a reading.
type Metric int

const (
	Temperature Metric = iota
	Wind
	Humidity
	CO2
)

// Metrics lists all metrics in canonical order.
var Metrics = []Metric{Temperature, Wind, Humidity, CO2}

func (m Metric) String() string {
	switch m {
	case Temperature:
		return "Temperature"
	case Wind:
		return "Wind"
	case Humidity:
		return "RHumidity"
	case CO2:
		return "CO2"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Samples sorts readings by sensor id, then by capture time.
type Samples []Reading

func (vs Samples) Len() int      { return len(vs) }
func (vs Samples) Swap(i, j int) { vs[i], vs[j] = vs[j], vs[i] }
func (vs Samples) Less(i, j int) bool {
	if vs[i].ID != vs[j].ID {
		return vs[i].ID < vs[j].ID
	}
	return vs[i].Time.Before(vs[j].Time)
}
