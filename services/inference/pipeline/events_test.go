// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := newProgressBroker()
	ch, cancel := b.subscribe()
	defer cancel()

	b.publish(ProgressEvent{Stage: StageExecuting, Message: "hello"})

	select {
	case ev := <-ch:
		assert.Equal(t, StageExecuting, ev.Stage)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

// A slow subscriber loses events instead of blocking the publisher.
func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := newProgressBroker()
	_, cancel := b.subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer*3; i++ {
			b.publish(ProgressEvent{Stage: StageExecuting})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBrokerDetach(t *testing.T) {
	b := newProgressBroker()
	ch, cancel := b.subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open, "detached channel must be closed")

	// Publishing after detach must not panic.
	b.publish(ProgressEvent{Stage: StageExecuting})
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := newProgressBroker()
	ch1, cancel1 := b.subscribe()
	ch2, cancel2 := b.subscribe()
	defer cancel1()
	defer cancel2()

	b.publish(ProgressEvent{Message: "fan out"})

	for _, ch := range []<-chan ProgressEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "fan out", ev.Message)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestBrokerCloseEndsAllSubscribers(t *testing.T) {
	b := newProgressBroker()
	ch, _ := b.subscribe()
	b.close()
	b.close() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields an already-closed channel.
	late, _ := b.subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBrokerSubscribeDuringRunLifecycle(t *testing.T) {
	b := newProgressBroker()

	b.publish(ProgressEvent{Message: "before attach"})

	ch, cancel := b.subscribe()
	defer cancel()
	b.publish(ProgressEvent{Message: "after attach"})

	// Only events after attachment are seen; nothing is replayed.
	ev := <-ch
	require.Equal(t, "after attach", ev.Message)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected replayed event %q", extra.Message)
	default:
	}
}
