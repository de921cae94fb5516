// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sensors-load sends ingestion requests to a sensors server and
// records the response time of each request as CSV.
package main // import "sbinet.org/x/sensors/cmd/sensors-load"

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetPrefix("sensors-load: ")
	log.SetFlags(0)

	var (
		ep    = flag.String("endpoint", "http://localhost:8080/api/ingest", "ingestion endpoint")
		n     = flag.Int("n", 100, "number of requests")
		conc  = flag.Int("c", 10, "number of concurrent requests")
		count = flag.Int("sensor-count", 0, "sensor_count parameter (0: server default)")
		size  = flag.Int("batch-size", 0, "batch_size parameter (0: server default)")
		oname = flag.String("o", "", "path to output CSV file (default: stdout)")
	)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := io.Writer(os.Stdout)
	if *oname != "" {
		f, err := os.Create(*oname)
		if err != nil {
			log.Fatalf("could not create output file: %+v", err)
		}
		defer f.Close()
		out = f
	}

	lt := &loadTest{
		ep:    *ep,
		n:     *n,
		conc:  *conc,
		count: *count,
		size:  *size,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	err := lt.run(ctx, out)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type loadTest struct {
	ep    string
	n     int
	conc  int
	count int
	size  int
	http  *http.Client
}

type sample struct {
	beg     time.Time
	elapsed time.Duration
	code    int
}

func (lt *loadTest) target() (string, error) {
	u, err := url.Parse(lt.ep)
	if err != nil {
		return "", fmt.Errorf("could not parse endpoint %q: %w", lt.ep, err)
	}
	q := u.Query()
	if lt.count > 0 {
		q.Set("sensor_count", strconv.Itoa(lt.count))
	}
	if lt.size > 0 {
		q.Set("batch_size", strconv.Itoa(lt.size))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (lt *loadTest) run(ctx context.Context, w io.Writer) error {
	if lt.n <= 0 || lt.conc <= 0 {
		return fmt.Errorf("invalid load (requests=%d, concurrency=%d)", lt.n, lt.conc)
	}
	target, err := lt.target()
	if err != nil {
		return err
	}

	out := csv.NewWriter(w)
	err = out.Write([]string{"timeStamp", "elapsed", "responseCode", "success"})
	if err != nil {
		return fmt.Errorf("could not write CSV header: %w", err)
	}

	var (
		mu   sync.Mutex
		fail int
	)
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(lt.conc)
	for range lt.n {
		grp.Go(func() error {
			smp, err := lt.do(ctx, target)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			ok := smp.code == http.StatusOK
			if !ok {
				fail++
			}
			return out.Write([]string{
				strconv.FormatInt(smp.beg.UnixMilli(), 10),
				strconv.FormatInt(smp.elapsed.Milliseconds(), 10),
				strconv.Itoa(smp.code),
				strconv.FormatBool(ok),
			})
		})
	}
	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not run load test: %w", err)
	}

	out.Flush()
	err = out.Error()
	if err != nil {
		return fmt.Errorf("could not write CSV samples: %w", err)
	}

	log.Printf("sent %d requests to %q (%d failed)", lt.n, target, fail)
	return nil
}

func (lt *loadTest) do(ctx context.Context, target string) (sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{}, fmt.Errorf("could not create HTTP request to %q: %w", target, err)
	}

	beg := time.Now()
	resp, err := lt.http.Do(req)
	if err != nil {
		return sample{}, fmt.Errorf("could not send request to %q: %w", target, err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return sample{}, fmt.Errorf("could not read response from %q: %w", target, err)
	}

	return sample{beg: beg, elapsed: time.Since(beg), code: resp.StatusCode}, nil
}
