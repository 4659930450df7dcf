// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry is the time-boxed in-memory store of analysis runs.
//
// # Description
// Runs stay queryable for a fixed TTL after creation; a background
// sweep removes stale entries and cancels any that are somehow still
// in flight. There is no persistence: a process restart forgets all
// runs, matching the ephemeral-workspace model.
//
// # Thread Safety
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runs    map[string]*AnalysisRun
	ttl     time.Duration
	logger  *slog.Logger
	stopped chan struct{}
	stop    sync.Once
}

// NewRegistry creates a registry with the given run TTL.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		runs:    make(map[string]*AnalysisRun),
		ttl:     ttl,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Put registers a run for status lookups.
func (g *Registry) Put(run *AnalysisRun) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs[run.ID] = run
}

// Get returns the run for an ID, or ErrRunNotFound.
func (g *Registry) Get(id string) (*AnalysisRun, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Delete removes a run immediately, cancelling it if still in flight.
func (g *Registry) Delete(id string) {
	g.mu.Lock()
	run, ok := g.runs[id]
	delete(g.runs, id)
	g.mu.Unlock()
	if ok && !run.Stage().Terminal() {
		run.Cancel()
	}
}

// Len reports how many runs are currently registered.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runs)
}

// Start launches the background sweep. It returns immediately; the
// sweep stops when ctx is cancelled or Stop is called.
func (g *Registry) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopped:
				return
			case <-ticker.C:
				g.SweepOnce(time.Now())
			}
		}
	}()
}

// Stop halts the background sweep. Idempotent.
func (g *Registry) Stop() {
	g.stop.Do(func() { close(g.stopped) })
}

// SweepOnce removes every run older than the TTL and returns how many
// were removed. Exposed for tests and manual maintenance.
func (g *Registry) SweepOnce(now time.Time) int {
	g.mu.Lock()
	var stale []*AnalysisRun
	for id, run := range g.runs {
		if now.Sub(run.CreatedAt) > g.ttl {
			stale = append(stale, run)
			delete(g.runs, id)
		}
	}
	g.mu.Unlock()

	for _, run := range stale {
		if !run.Stage().Terminal() {
			run.Cancel()
		}
	}
	if len(stale) > 0 {
		g.logger.Info("swept stale runs", "count", len(stale), "ttl", g.ttl)
	}
	return len(stale)
}
