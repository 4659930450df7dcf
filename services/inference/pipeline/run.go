// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// AnalysisRun is the aggregate root of one analysis.
//
// # Description
// The run owns the parsed constraints, the growing observation set,
// the current hypothesis and pattern sets, the pipeline stage, and the
// progress broker. It is created at request start and swept from the
// registry after its TTL; its sandbox workspaces are per-execution and
// destroyed as the run proceeds.
//
// Observations only grow within a run; nothing removes or rewrites an
// accepted observation.
//
// # Thread Safety
// All accessors take the run lock; the pipeline mutates the run from
// a single goroutine but status queries arrive concurrently.
type AnalysisRun struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	stage        Stage
	progress     int
	stageErr     error
	constraints  domain.ParsedConstraints
	observations []domain.Observation
	hypotheses   []domain.Hypothesis
	patterns     []domain.DetectedPattern
	stats        domain.ExecutionStats
	result       *domain.AnalysisResult
	retested     bool

	machine *StateMachine
	broker  *progressBroker
	cancel  func()
}

// NewRun creates a run in the generating stage.
func NewRun(machine *StateMachine) *AnalysisRun {
	return &AnalysisRun{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		stage:     StageGenerating,
		progress:  stageProgress[StageGenerating],
		machine:   machine,
		broker:    newProgressBroker(),
	}
}

// Stage returns the current pipeline stage.
func (r *AnalysisRun) Stage() Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stage
}

// progressPercent returns the run's monotonic progress value.
func (r *AnalysisRun) progressPercent() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// transition moves the run to the next stage and emits a progress
// event. Illegal transitions return ErrInvalidTransition and leave the
// run untouched.
//
// Reported progress is a high-water mark: re-entering the executing
// stage for the adaptive round keeps the percentage where the
// validating stage left it instead of winding it backwards.
func (r *AnalysisRun) transition(to Stage, message string, details map[string]any) error {
	r.mu.Lock()
	from := r.stage
	if !r.machine.CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.stage = to
	if p := stageProgress[to]; p > r.progress {
		r.progress = p
	}
	progress := r.progress
	r.mu.Unlock()

	r.broker.publish(ProgressEvent{
		RunID:    r.ID,
		Stage:    to,
		Progress: progress,
		Message:  message,
		Details:  details,
		At:       time.Now(),
	})
	return nil
}

// fail forces the run into the error stage with a classified message.
func (r *AnalysisRun) fail(err error) {
	r.mu.Lock()
	r.stageErr = err
	r.stage = StageError
	r.progress = stageProgress[StageError]
	partial := domain.AnalysisResult{
		Success:      false,
		Observations: append([]domain.Observation(nil), r.observations...),
		Hypotheses:   append([]domain.Hypothesis(nil), r.hypotheses...),
		Stats:        r.stats,
		Error:        err.Error(),
	}
	r.result = &partial
	r.mu.Unlock()

	r.broker.publish(ProgressEvent{
		RunID:    r.ID,
		Stage:    StageError,
		Progress: stageProgress[StageError],
		Message:  err.Error(),
		At:       time.Now(),
	})
	r.broker.close()
}

// complete records the final result and closes the progress stream.
func (r *AnalysisRun) complete(result *domain.AnalysisResult) {
	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
	r.broker.close()
}

// addObservations appends new observations and merges batch stats.
func (r *AnalysisRun) addObservations(obs []domain.Observation, stats domain.ExecutionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs...)
	r.stats.Attempted += stats.Attempted
	r.stats.Successful += stats.Successful
	r.stats.Failed += stats.Failed
	r.stats.TimedOut += stats.TimedOut
	r.stats.TotalTime += stats.TotalTime
}

// Observations returns a copy of the observation set.
func (r *AnalysisRun) Observations() []domain.Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Observation(nil), r.observations...)
}

// Subscribe attaches a progress listener to this run.
func (r *AnalysisRun) Subscribe() (<-chan ProgressEvent, func()) {
	return r.broker.subscribe()
}

// Cancel aborts the run if it is still in flight.
func (r *AnalysisRun) Cancel() {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Result returns the final result once the run is terminal.
func (r *AnalysisRun) Result() (*domain.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.stage.Terminal() {
		return nil, ErrRunInProgress
	}
	return r.result, nil
}

// Status is a point-in-time snapshot for transport-layer queries.
type Status struct {
	RunID        string    `json:"run_id"`
	Stage        Stage     `json:"stage"`
	Progress     int       `json:"progress_percent"`
	Observations int       `json:"observations"`
	Hypotheses   int       `json:"hypotheses"`
	CreatedAt    time.Time `json:"created_at"`
	Error        string    `json:"error,omitempty"`
}

// Status snapshots the run for callers polling instead of subscribing.
func (r *AnalysisRun) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Status{
		RunID:        r.ID,
		Stage:        r.stage,
		Progress:     r.progress,
		Observations: len(r.observations),
		Hypotheses:   len(r.hypotheses),
		CreatedAt:    r.CreatedAt,
	}
	if r.stageErr != nil {
		s.Error = r.stageErr.Error()
	}
	return s
}
