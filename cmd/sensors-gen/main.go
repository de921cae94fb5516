// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sensors-gen prints simulated sensor readings, without storing them.
package main // import "sbinet.org/x/sensors/cmd/sensors-gen"

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"

	"sbinet.org/x/sensors"
)

func main() {
	log.SetPrefix("sensors-gen: ")
	log.SetFlags(0)

	var (
		count  = flag.Int("n", 20, "number of readings to generate")
		nsens  = flag.Int("sensors", 0, "number of distinct sensors (default: one per reading)")
		seed   = flag.Uint64("seed", 0, "seed of the random source (0: random)")
		asJSON = flag.Bool("json", false, "print readings as JSON lines")
	)

	flag.Parse()

	err := xmain(os.Stdout, *count, *nsens, *seed, *asJSON)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(w io.Writer, count, nsens int, seed uint64, asJSON bool) error {
	if count <= 0 {
		return fmt.Errorf("invalid number of readings %d", count)
	}

	var opts []sensors.GenOption
	if seed != 0 {
		opts = append(opts, sensors.WithSource(rand.NewPCG(seed, seed)))
	}
	gen := sensors.NewGenerator(sensors.DefaultProfile, opts...)

	enc := json.NewEncoder(w)
	for _, v := range gen.GenerateBatch(count, nsens) {
		if asJSON {
			err := enc.Encode(v)
			if err != nil {
				return fmt.Errorf("could not encode reading: %w", err)
			}
			continue
		}
		_, err := fmt.Fprintf(w, "%v\n", v)
		if err != nil {
			return fmt.Errorf("could not print reading: %w", err)
		}
	}
	return nil
}
