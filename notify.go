// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors // import "sbinet.org/x/sensors"

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeSet describes readings that were just committed to a store.
type ChangeSet struct {
	Mode     Mode      `json:"mode"`
	Readings []Reading `json:"readings"`
	Time     time.Time `json:"time"`
}

// Notifier is told about committed readings.
type Notifier interface {
	Notify(ctx context.Context, cs ChangeSet) error
}

// Feed delivers change sets to subscribers.
type Feed interface {
	// Subscribe calls fn for each change set until ctx is done.
	// It returns nil when ctx is done, or the error that stopped the feed.
	Subscribe(ctx context.Context, fn func(ChangeSet)) error
}

// Broadcaster is an in-process Notifier and Feed.
// Slow subscribers lose change sets rather than blocking writers.
type Broadcaster struct {
	log  *zap.Logger
	size int

	mu   sync.RWMutex
	id   int
	subs map[int]chan ChangeSet
}

var (
	_ Notifier = (*Broadcaster)(nil)
	_ Feed     = (*Broadcaster)(nil)
)

// NewBroadcaster creates a broadcaster buffering up to size change sets per
// subscriber.
func NewBroadcaster(log *zap.Logger, size int) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = 16
	}
	return &Broadcaster{
		log:  log,
		size: size,
		subs: make(map[int]chan ChangeSet),
	}
}

func (b *Broadcaster) Notify(ctx context.Context, cs ChangeSet) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- cs:
		default:
			b.log.Warn("dropping change set for slow subscriber",
				zap.Int("subscriber", id),
				zap.Int("readings", len(cs.Readings)),
			)
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, fn func(ChangeSet)) error {
	ch := make(chan ChangeSet, b.size)

	b.mu.Lock()
	id := b.id
	b.id++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cs := <-ch:
			fn(cs)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
