// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrQueueClosed is returned for requests submitted after Close.
var ErrQueueClosed = errors.New("reasoning request queue closed")

// Priority orders queued reasoning requests.
type Priority int

const (
	// PriorityNormal is the default for pipeline synthesis requests.
	PriorityNormal Priority = iota

	// PriorityHigh is for short requests a caller is actively waiting
	// on (e.g. verification probes). Served before normal requests.
	PriorityHigh
)

// request is one queued generation awaiting dispatch.
type request struct {
	ctx    context.Context
	prompt string
	params GenerationParams
	reply  chan result
}

type result struct {
	text string
	err  error
}

// QueuedClient serializes requests to an underlying Client.
//
// # Description
//
// Upstream reasoning providers rate-limit aggressively. QueuedClient
// funnels all requests through a single dispatcher goroutine that
// enforces a minimum inter-request spacing and serves high-priority
// requests first. Callers block until their request is served or their
// context is canceled.
//
// # Thread Safety
//
// Safe for concurrent use.
type QueuedClient struct {
	inner   Client
	limiter *rate.Limiter
	logger  *slog.Logger

	high   chan *request
	normal chan *request
	done   chan struct{}
	once   sync.Once
}

// NewQueuedClient wraps inner with a serialized, rate-limited queue.
//
// # Inputs
//
//   - inner: The backend client. Must not be nil.
//   - minSpacing: Minimum interval between dispatched requests.
//     Zero disables spacing, requests are still serialized.
//   - logger: Structured logger. Nil falls back to slog.Default().
func NewQueuedClient(inner Client, minSpacing time.Duration, logger *slog.Logger) *QueuedClient {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	q := &QueuedClient{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		high:    make(chan *request, 16),
		normal:  make(chan *request, 64),
		done:    make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Generate implements Client at normal priority.
func (q *QueuedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return q.GenerateWithPriority(ctx, PriorityNormal, prompt, params)
}

// GenerateWithPriority submits a request at the given priority and
// blocks until it is served, the context is canceled, or the queue
// is closed.
func (q *QueuedClient) GenerateWithPriority(ctx context.Context, prio Priority, prompt string, params GenerationParams) (string, error) {
	r := &request{
		ctx:    ctx,
		prompt: prompt,
		params: params,
		reply:  make(chan result, 1),
	}

	lane := q.normal
	if prio == PriorityHigh {
		lane = q.high
	}

	select {
	case lane <- r:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-q.done:
		return "", ErrQueueClosed
	}

	select {
	case res := <-r.reply:
		return res.text, res.err
	case <-ctx.Done():
		// The dispatcher may still serve the request; the buffered
		// reply channel lets it complete without blocking.
		return "", ctx.Err()
	}
}

// Close stops the dispatcher. In-flight requests complete; queued
// requests fail with ErrQueueClosed.
func (q *QueuedClient) Close() {
	q.once.Do(func() { close(q.done) })
}

// dispatch serves requests one at a time, high-priority lane first.
func (q *QueuedClient) dispatch() {
	for {
		// Drain the high lane before considering the normal lane.
		select {
		case r := <-q.high:
			q.serve(r)
			continue
		default:
		}

		select {
		case <-q.done:
			q.drain()
			return
		case r := <-q.high:
			q.serve(r)
		case r := <-q.normal:
			q.serve(r)
		}
	}
}

func (q *QueuedClient) serve(r *request) {
	if err := r.ctx.Err(); err != nil {
		r.reply <- result{err: err}
		return
	}
	if err := q.limiter.Wait(r.ctx); err != nil {
		// The limiter wraps context failures in its own errors, and
		// refuses preemptively when the deadline cannot cover the
		// required spacing. Callers match on the context error, so
		// translate before replying.
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if _, hasDeadline := r.ctx.Deadline(); hasDeadline {
			err = context.DeadlineExceeded
		}
		r.reply <- result{err: err}
		return
	}
	start := time.Now()
	text, err := q.inner.Generate(r.ctx, r.prompt, r.params)
	q.logger.Debug("reasoning request served",
		slog.Duration("duration", time.Since(start)),
		slog.Bool("success", err == nil),
	)
	r.reply <- result{text: text, err: err}
}

func (q *QueuedClient) drain() {
	for {
		select {
		case r := <-q.high:
			r.reply <- result{err: ErrQueueClosed}
		case r := <-q.normal:
			r.reply <- result{err: ErrQueueClosed}
		default:
			return
		}
	}
}

var _ Client = (*QueuedClient)(nil)
