// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package redisfeed distributes change sets of committed sensor readings
// over a Redis stream.
package redisfeed // import "sbinet.org/x/sensors/internal/redisfeed"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"sbinet.org/x/sensors"
)

// Options configures the connection to the stream.
type Options struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string // consumer group of subscribers
	Consumer string // consumer name of subscribers
	MaxLen   int64  // approximate stream length cap, 0 means unbounded
}

// Client publishes and consumes change sets.
type Client struct {
	cli  *redis.Client
	log  *zap.Logger
	opts Options

	block time.Duration
}

var (
	_ sensors.Notifier = (*Client)(nil)
	_ sensors.Feed     = (*Client)(nil)
)

// Dial connects to the Redis server described by opts.
func Dial(ctx context.Context, opts Options, log *zap.Logger) (*Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	err := cli.Ping(ctx).Err()
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("could not ping redis server %q: %w", opts.Addr, err)
	}
	return New(cli, opts, log), nil
}

// New wraps an already connected Redis client.
func New(cli *redis.Client, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Consumer == "" {
		opts.Consumer = "sensors"
	}
	return &Client{
		cli:   cli,
		log:   log,
		opts:  opts,
		block: 5 * time.Second,
	}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Notify appends the change set to the stream.
func (c *Client) Notify(ctx context.Context, cs sensors.ChangeSet) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("could not encode change set: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: c.opts.Stream,
		Values: map[string]any{
			"data":      string(raw),
			"timestamp": cs.Time.Unix(),
		},
	}
	if c.opts.MaxLen > 0 {
		args.MaxLen = c.opts.MaxLen
		args.Approx = true
	}

	err = c.cli.XAdd(ctx, args).Err()
	if err != nil {
		return fmt.Errorf("could not publish change set to %q: %w", c.opts.Stream, err)
	}
	return nil
}

// Subscribe consumes the stream as a member of the configured consumer group
// and calls fn for each change set, acknowledging it afterwards.
func (c *Client) Subscribe(ctx context.Context, fn func(sensors.ChangeSet)) error {
	err := c.createGroup(ctx)
	if err != nil {
		return err
	}

	for {
		streams, err := c.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    16,
			Block:    c.block,
		}).Result()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return fmt.Errorf("could not read from stream %q: %w", c.opts.Stream, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				cs, err := decode(msg)
				if err != nil {
					c.log.Warn("dropping malformed change set",
						zap.String("stream", stream.Stream),
						zap.String("id", msg.ID),
						zap.Error(err),
					)
				} else {
					fn(cs)
				}

				err = c.cli.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err()
				if err != nil && ctx.Err() == nil {
					return fmt.Errorf("could not acknowledge message %s: %w", msg.ID, err)
				}
			}
		}
	}
}

func (c *Client) createGroup(ctx context.Context) error {
	err := c.cli.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("could not create consumer group %q on %q: %w", c.opts.Group, c.opts.Stream, err)
	}
	return nil
}

func decode(msg redis.XMessage) (sensors.ChangeSet, error) {
	var cs sensors.ChangeSet
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return cs, fmt.Errorf("missing data field")
	}
	err := json.Unmarshal([]byte(raw), &cs)
	if err != nil {
		return cs, fmt.Errorf("could not decode change set: %w", err)
	}
	return cs, nil
}
