// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sensors-srv serves the ingestion and aggregation of simulated
// sensor readings, over HTTP and from a timer.
package main // import "sbinet.org/x/sensors/cmd/sensors-srv"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sbinet.org/x/sensors"
	"sbinet.org/x/sensors/internal/boltstore"
	"sbinet.org/x/sensors/internal/config"
	"sbinet.org/x/sensors/internal/logger"
	"sbinet.org/x/sensors/internal/redisfeed"
	"sbinet.org/x/sensors/internal/sqlstore"
	"sbinet.org/x/sensors/sensrv"
)

func main() {
	log.SetPrefix("sensors-srv: ")
	log.SetFlags(0)

	var (
		fname = flag.String("config", "", "path to configuration file")
		addr  = flag.String("addr", "", "[host]:addr to serve (overrides LISTEN_ADDR)")
	)

	flag.Parse()

	cfg, err := config.Load(*fname)
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}
	if *addr != "" {
		cfg.HTTP.Listen = *addr
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "sensors-srv")
	if err != nil {
		log.Fatalf("could not create logger: %+v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = xmain(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("could not run server", zap.Error(err))
	}
}

func xmain(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("could not open store: %w", err)
	}
	defer store.Close()

	log.Info("opened store",
		zap.String("driver", cfg.Store.Driver),
		zap.Stringer("mode", store.Mode()),
	)

	var (
		feed  sensors.Feed
		wopts = []sensors.WriterOption{sensors.WithWriterLogger(log)}
	)
	switch cfg.Notify.Backend {
	case "redis":
		rcfg := cfg.Notify.Redis
		cli, err := redisfeed.Dial(ctx, redisfeed.Options{
			Addr:     rcfg.Addr,
			Password: rcfg.Password,
			DB:       rcfg.DB,
			Stream:   rcfg.Stream,
			Group:    rcfg.Group,
			Consumer: rcfg.Consumer,
			MaxLen:   10000,
		}, log)
		if err != nil {
			return fmt.Errorf("could not connect to change feed: %w", err)
		}
		defer cli.Close()
		feed = cli
		wopts = append(wopts, sensors.WithNotifier(cli))
	case "none":
	default:
		b := sensors.NewBroadcaster(log, 0)
		feed = b
		wopts = append(wopts, sensors.WithNotifier(b))
	}

	gen := sensors.NewGenerator(sensors.DefaultProfile)
	ing := sensors.NewIngester(gen, sensors.NewWriter(store, wopts...),
		sensors.WithIngesterLogger(log),
		sensors.WithMaxBatchSize(cfg.Ingest.MaxBatchSize),
	)
	agg := sensors.NewAggregator(store, sensors.WithAggregatorLogger(log))

	srv := sensrv.NewServer("/", ing, agg,
		sensrv.WithLogger(log),
		sensrv.WithDefaults(cfg.Ingest.SensorCount, cfg.Ingest.BatchSize),
	)
	hsrv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("serving", zap.String("addr", hsrv.Addr))
		err := hsrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not serve %q: %w", hsrv.Addr, err)
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hsrv.Shutdown(sctx)
	})

	if cfg.Timer.Enabled {
		sch := sensrv.NewScheduler(ing, log)
		sch.Interval = cfg.Timer.Interval
		sch.RunOnStartup = cfg.Timer.RunOnStartup
		grp.Go(func() error {
			return sch.Run(ctx)
		})
	}

	if feed != nil {
		wat := sensrv.NewWatcher(feed, agg, log)
		grp.Go(func() error {
			return wat.Run(ctx)
		})
	}

	return grp.Wait()
}

func openStore(ctx context.Context, cfg config.Store) (sensors.Store, error) {
	mode := cfg.PersistenceMode()
	switch cfg.Driver {
	case "bolt":
		db, err := boltstore.Open(cfg.DSN(), mode)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		dialect, err := sqlstore.ParseDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}
		db, err := sqlstore.Open(ctx, sqlstore.Options{
			Dialect:  dialect,
			DSN:      cfg.DSN(),
			Table:    cfg.Table,
			Mode:     mode,
			MaxConns: cfg.MaxConns,
			MaxIdle:  cfg.MaxIdle,
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}
