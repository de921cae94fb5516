// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the configuration of the sensors executables from
// defaults, an optional configuration file and the environment.
package config // import "sbinet.org/x/sensors/internal/config"

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"sbinet.org/x/sensors"
)

type Config struct {
	Store  Store
	Ingest Ingest
	Timer  Timer
	Notify Notify
	HTTP   HTTP
	Log    Log
}

// Store configures the backing store of readings.
type Store struct {
	Driver           string // sqlite, postgres or bolt
	Server           string
	Port             int
	User             string
	Password         string
	Database         string
	ConnectionString string
	SSLMode          string
	Table            string
	Mode             string // append or upsert
	MaxConns         int
	MaxIdle          int
}

type Ingest struct {
	SensorCount  int
	BatchSize    int
	MaxBatchSize int
}

type Timer struct {
	Enabled      bool
	Interval     time.Duration
	RunOnStartup bool
}

type Notify struct {
	Backend string // memory, redis or none
	Redis   Redis
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

type HTTP struct {
	Listen string
}

type Log struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"store.driver":          "sqlite",
	"store.port":            5432,
	"store.sslmode":         "disable",
	"store.mode":            "append",
	"ingest.sensorcount":    20,
	"ingest.batchsize":      10,
	"ingest.maxbatchsize":   sensors.DefaultMaxBatchSize,
	"timer.enabled":         true,
	"timer.interval":        10 * time.Second,
	"timer.runonstartup":    true,
	"notify.backend":        "memory",
	"notify.redis.addr":     "localhost:6379",
	"notify.redis.stream":   "sensors:changes",
	"notify.redis.group":    "sensors-watchers",
	"notify.redis.consumer": "sensors-srv",
	"http.listen":           ":8080",
	"log.level":             "info",
	"log.format":            "json",
}

var envs = map[string]string{
	"store.driver":           "SQL_DRIVER",
	"store.server":           "SQL_SERVER",
	"store.port":             "SQL_PORT",
	"store.user":             "SQL_USER",
	"store.password":         "SQL_PASSWORD",
	"store.database":         "SQL_DATABASE",
	"store.connectionstring": "SQL_CONNECTION_STRING",
	"store.sslmode":          "SQL_SSLMODE",
	"store.table":            "SENSORS_TABLE",
	"store.mode":             "STORE_MODE",
	"ingest.sensorcount":     "SENSOR_COUNT",
	"ingest.batchsize":       "BATCH_SIZE",
	"ingest.maxbatchsize":    "MAX_BATCH_SIZE",
	"timer.enabled":          "TIMER_ENABLED",
	"timer.interval":         "TIMER_INTERVAL",
	"timer.runonstartup":     "TIMER_RUN_ON_STARTUP",
	"notify.backend":         "NOTIFY_BACKEND",
	"notify.redis.addr":      "REDIS_ADDR",
	"notify.redis.password":  "REDIS_PASSWORD",
	"notify.redis.db":        "REDIS_DB",
	"notify.redis.stream":    "REDIS_STREAM",
	"notify.redis.group":     "REDIS_GROUP",
	"notify.redis.consumer":  "REDIS_CONSUMER",
	"http.listen":            "LISTEN_ADDR",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
}

// Load loads the configuration.
// Values are looked up in the environment first, then in the optional
// configuration file fname, then in the defaults.
func Load(fname string) (Config, error) {
	v := viper.New()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	for k, env := range envs {
		err := v.BindEnv(k, env)
		if err != nil {
			return Config{}, fmt.Errorf("could not bind %q to %s: %w", k, env, err)
		}
	}

	if fname != "" {
		v.SetConfigFile(fname)
		err := v.ReadInConfig()
		if err != nil {
			return Config{}, fmt.Errorf("could not read config file %q: %w", fname, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("could not decode configuration: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the consistency of the configuration.
func (cfg Config) Validate() error {
	switch cfg.Store.Driver {
	case "sqlite", "postgres", "bolt":
	default:
		return invalidf("unknown store driver %q", cfg.Store.Driver)
	}

	_, err := sensors.ParseMode(cfg.Store.Mode)
	if err != nil {
		return err
	}

	switch {
	case cfg.Ingest.SensorCount <= 0:
		return invalidf("sensor count must be positive (got %d)", cfg.Ingest.SensorCount)
	case cfg.Ingest.BatchSize <= 0:
		return invalidf("batch size must be positive (got %d)", cfg.Ingest.BatchSize)
	case cfg.Ingest.MaxBatchSize <= 0:
		return invalidf("max batch size must be positive (got %d)", cfg.Ingest.MaxBatchSize)
	case cfg.Ingest.BatchSize > cfg.Ingest.MaxBatchSize:
		return invalidf("batch size %d exceeds max batch size %d", cfg.Ingest.BatchSize, cfg.Ingest.MaxBatchSize)
	case cfg.Timer.Enabled && cfg.Timer.Interval <= 0:
		return invalidf("timer interval must be positive (got %v)", cfg.Timer.Interval)
	}

	switch cfg.Notify.Backend {
	case "", "memory", "none":
	case "redis":
		if cfg.Notify.Redis.Addr == "" || cfg.Notify.Redis.Stream == "" || cfg.Notify.Redis.Group == "" {
			return invalidf("redis notification backend needs an address, a stream and a group")
		}
	default:
		return invalidf("unknown notification backend %q", cfg.Notify.Backend)
	}

	return nil
}

// PersistenceMode returns the persistence model of the store.
func (cfg Store) PersistenceMode() sensors.Mode {
	mode, _ := sensors.ParseMode(cfg.Mode)
	return mode
}

// DSN returns the data source name of the store.
// An explicit connection string always wins.
func (cfg Store) DSN() string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}

	switch cfg.Driver {
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(or(cfg.Server, "localhost"), strconv.Itoa(cfg.Port)),
			Path:     "/" + or(cfg.Database, "sensors"),
			RawQuery: url.Values{"sslmode": {or(cfg.SSLMode, "disable")}}.Encode(),
		}
		switch {
		case cfg.User != "" && cfg.Password != "":
			u.User = url.UserPassword(cfg.User, cfg.Password)
		case cfg.User != "":
			u.User = url.User(cfg.User)
		}
		return u.String()
	case "bolt":
		return or(cfg.Database, "sensors.bolt")
	default:
		return or(cfg.Database, "sensors.db")
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", sensors.ErrValidation, fmt.Sprintf(format, args...))
}
