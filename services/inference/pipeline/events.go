// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"sync"
	"time"
)

// eventBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing events.
const eventBuffer = 32

// ProgressEvent is one step of a run's visible progress.
type ProgressEvent struct {
	RunID    string         `json:"run_id"`
	Stage    Stage          `json:"stage"`
	Progress int            `json:"progress_percent"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// progressBroker fans progress events out to a run's subscribers.
//
// Emission is fire-and-forget: a full or absent subscriber never
// blocks the pipeline. Subscribers may attach and detach at any point
// in the run's life; events emitted before attachment are not
// replayed.
type progressBroker struct {
	mu     sync.Mutex
	subs   map[int]chan ProgressEvent
	nextID int
	closed bool
}

func newProgressBroker() *progressBroker {
	return &progressBroker{subs: make(map[int]chan ProgressEvent)}
}

// subscribe attaches a listener. The returned cancel function detaches
// it and closes the channel; it is safe to call more than once.
func (b *progressBroker) subscribe() (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressEvent, eventBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// publish delivers the event to every subscriber that has room.
func (b *progressBroker) publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default: // subscriber is behind; drop rather than block
		}
	}
}

// close terminates all subscriber channels. Published events after
// close are discarded.
func (b *progressBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
