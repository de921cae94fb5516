// Copyright ©2026 The sensors Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sensors_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/sensors"
)

func TestBroadcaster(t *testing.T) {
	b := sensors.NewBroadcaster(nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan sensors.ChangeSet, 4)
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, func(cs sensors.ChangeSet) { got <- cs })
	}()

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, time.Millisecond)

	cs := sensors.ChangeSet{
		Mode:     sensors.Append,
		Readings: []sensors.Reading{{ID: "001", T: 1, Time: t0}},
		Time:     t0,
	}
	require.NoError(t, b.Notify(ctx, cs))

	select {
	case v := <-got:
		assert.Equal(t, cs, v)
	case <-time.After(time.Second):
		t.Fatalf("no change set received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not stop")
	}
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroadcasterNoSubscriber(t *testing.T) {
	b := sensors.NewBroadcaster(nil, 0)
	assert.NoError(t, b.Notify(context.Background(), sensors.ChangeSet{}))
}

func TestBroadcasterSlowSubscriber(t *testing.T) {
	log, logs := observedLogger()
	b := sensors.NewBroadcaster(log, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	go func() {
		_ = b.Subscribe(ctx, func(cs sensors.ChangeSet) { <-block })
	}()
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, time.Millisecond)

	// the first change set is held by the callback, the second fills the
	// buffer and later ones are dropped without blocking.
	deadline := time.After(time.Second)
	for logs.FilterMessage("dropping change set for slow subscriber").Len() == 0 {
		select {
		case <-deadline:
			t.Fatalf("slow subscriber blocked notifications")
		default:
		}
		require.NoError(t, b.Notify(ctx, sensors.ChangeSet{Mode: sensors.Upsert}))
	}
	close(block)
}
