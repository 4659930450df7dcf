// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SweeperConfig configures the orphaned-workspace sweeper.
type SweeperConfig struct {
	// Interval is how often a sweep cycle runs. Default: 5 minutes.
	Interval time.Duration

	// MaxAge is the workspace age past which it counts as orphaned
	// (its owning run crashed without cleanup). Default: 30 minutes.
	MaxAge time.Duration
}

// DefaultSweeperConfig returns production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 5 * time.Minute,
		MaxAge:   30 * time.Minute,
	}
}

// Sweeper reclaims workspaces left behind by crashed runs.
//
// # Description
//
// Every run destroys its own workspace on exit; the sweeper is the
// backstop for process crashes and kill -9. It scans the sandbox root
// for directories with the sandbox prefix older than MaxAge and
// removes them. Independent of any single run's lifecycle.
//
// # Thread Safety
//
// Start/Stop are safe to call from any goroutine. Start is a no-op
// when already running.
type Sweeper struct {
	root   string
	config SweeperConfig
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewSweeper creates a sweeper over the given sandbox root.
func NewSweeper(root string, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultSweeperConfig().MaxAge
	}
	return &Sweeper{root: root, config: config, logger: logger}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := s.SweepOnce()
				if removed > 0 {
					s.logger.Info("reclaimed orphaned workspaces", "count", removed)
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// SweepOnce runs a single sweep cycle and returns the number of
// workspaces removed.
func (s *Sweeper) SweepOnce() int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("sweep failed to read sandbox root", "root", s.root, "error", err)
		return 0
	}

	cutoff := time.Now().Add(-s.config.MaxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove orphaned workspace", "dir", path, "error", err)
			continue
		}
		removed++
	}
	return removed
}
