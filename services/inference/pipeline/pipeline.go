// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline sequences one analysis run: test generation,
// sandboxed execution, hypothesis and pattern refinement, an optional
// adaptive re-test round, external reasoning, and quality scoring.
//
// One orchestrator goroutine drives each run. Sandbox executions are
// the only operations fanned out concurrently, under a fixed cap.
// The run is cancellable at any stage; cancellation flows into
// in-flight executions and the run lands in the error stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aayush-Sood101/BlackBox/services/inference/adaptive"
	"github.com/Aayush-Sood101/BlackBox/services/inference/constraints"
	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/hypothesis"
	"github.com/Aayush-Sood101/BlackBox/services/inference/patterns"
	"github.com/Aayush-Sood101/BlackBox/services/inference/reasoning"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
	"github.com/Aayush-Sood101/BlackBox/services/inference/strategy"
)

// ambiguityGap mirrors the adaptive orchestrator's threshold; the
// pipeline uses it to decide whether a re-test round is worth running.
const ambiguityGap = 0.2

// Options wires a Pipeline's collaborators and budgets.
type Options struct {
	Runner      sandbox.IsolatedRunner
	Limits      sandbox.Limits
	Parallelism int

	Generator *strategy.Generator
	Engine    *hypothesis.Engine
	Detector  *patterns.Detector
	Adaptive  *adaptive.Orchestrator
	Reasoner  *reasoning.Reasoner

	MaxTestCases     int
	MaxAdaptiveTests int

	Logger *slog.Logger
}

// Request is one analysis job handed in by the transport layer.
type Request struct {
	// ExecutablePath is the staged target binary.
	ExecutablePath string

	// FormatText and ConstraintsText are the caller's free-text
	// descriptions; both may be empty.
	FormatText      string
	ConstraintsText string

	// ExtraCases are externally supplied inputs merged into the
	// generated batch (deduplicated with it).
	ExtraCases []string
}

// Pipeline runs analyses. Construct once, share across runs.
type Pipeline struct {
	opts     Options
	machine  *StateMachine
	executor *batchExecutor
	logger   *slog.Logger
}

// New validates the options and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}
	if opts.Generator == nil || opts.Engine == nil || opts.Detector == nil ||
		opts.Adaptive == nil || opts.Reasoner == nil {
		return nil, errors.New("pipeline: all stage collaborators are required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.MaxTestCases <= 0 {
		opts.MaxTestCases = 25
	}
	if opts.MaxAdaptiveTests <= 0 {
		opts.MaxAdaptiveTests = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		opts:    opts,
		machine: NewStateMachine(),
		executor: &batchExecutor{
			runner:      opts.Runner,
			limits:      opts.Limits,
			parallelism: opts.Parallelism,
			logger:      opts.Logger,
		},
		logger: opts.Logger,
	}, nil
}

// NewRun creates a run bound to this pipeline's state machine.
func (p *Pipeline) NewRun() *AnalysisRun { return NewRun(p.machine) }

// Run drives one analysis to a terminal stage.
//
// # Description
// Blocks until the run completes, fails, or ctx is cancelled. The
// run's result is always populated on return: a full result on
// success, a partial result (collected observations, classified
// message) on failure. Reasoning failures degrade to a locally built
// fallback rather than failing the run; zero observations is the one
// unrecoverable condition.
func (p *Pipeline) Run(ctx context.Context, run *AnalysisRun, req Request) {
	runsStarted.Inc()
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run.mu.Lock()
	run.cancel = cancel
	run.mu.Unlock()

	logger := p.logger.With("run_id", run.ID)

	err := p.drive(ctx, run, req, logger)
	elapsed := time.Since(start)
	runDuration.Observe(elapsed.Seconds())

	if err != nil {
		runsFinished.WithLabelValues("error").Inc()
		logger.Error("analysis failed", "stage", run.Stage(), "elapsed", elapsed, "error", err)
		run.fail(humanize(err))
		return
	}
	runsFinished.WithLabelValues("complete").Inc()
	logger.Info("analysis complete", "elapsed", elapsed, "observations", len(run.Observations()))
}

// drive is the staged body of Run; any returned error puts the run
// into the error stage.
func (p *Pipeline) drive(ctx context.Context, run *AnalysisRun, req Request, logger *slog.Logger) error {
	// --- generating --------------------------------------------------
	pc := constraints.Parse(req.FormatText, req.ConstraintsText)
	run.mu.Lock()
	run.constraints = pc
	run.mu.Unlock()

	tests := p.opts.Generator.Generate(pc, p.opts.MaxTestCases)
	tests = mergeExtraCases(tests, req.ExtraCases)
	if len(tests) == 0 {
		return errors.New("no test cases could be generated")
	}
	logger.Info("test batch ready", "cases", len(tests))

	// --- executing ---------------------------------------------------
	if err := run.transition(StageExecuting, "executing test batch",
		map[string]any{"cases": len(tests)}); err != nil {
		return err
	}
	outcome, err := p.executeBatch(ctx, run, req.ExecutablePath, tests)
	if err != nil {
		return err
	}
	if len(run.Observations()) == 0 {
		return ErrNoObservations
	}

	// --- validating --------------------------------------------------
	if err := run.transition(StageValidating, "validating hypotheses", nil); err != nil {
		return err
	}
	hyps, pats := p.validate(run)
	logger.Info("validation complete",
		"observations", outcome.stats.Successful, "hypotheses", len(hyps), "patterns", len(pats))

	// --- adaptive re-test (at most once) -----------------------------
	if suggestions := p.adaptiveBatch(run, hyps); len(suggestions) > 0 {
		adaptiveRounds.Inc()
		if err := run.transition(StageExecuting, "executing adaptive tests",
			map[string]any{"cases": len(suggestions)}); err != nil {
			return err
		}
		if _, err := p.executeBatch(ctx, run, req.ExecutablePath, suggestions); err != nil {
			return err
		}
		if err := run.transition(StageValidating, "revalidating hypotheses", nil); err != nil {
			return err
		}
		hyps, pats = p.validate(run)
	}

	// --- reasoning ---------------------------------------------------
	if err := run.transition(StageReasoning, "synthesizing problem statement", nil); err != nil {
		return err
	}
	obs := run.Observations()
	problem, rErr := p.opts.Reasoner.Infer(ctx, pc, obs, hyps, pats)
	if rErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("reasoning degraded to fallback", "error", rErr)
		fallbackResults.Inc()
		problem = recovery.Fallback(obs, hyps)
	}

	// --- verifying ---------------------------------------------------
	if err := run.transition(StageVerifying, "scoring result quality", nil); err != nil {
		return err
	}
	score := reasoning.QualityScore(problem, hyps, obs)
	qualityScore.Observe(score)

	// --- complete ----------------------------------------------------
	if err := run.transition(StageComplete, "analysis complete",
		map[string]any{"quality": score}); err != nil {
		return err
	}
	run.mu.RLock()
	stats := run.stats
	run.mu.RUnlock()
	run.complete(&domain.AnalysisResult{
		Success:      true,
		Problem:      problem,
		Observations: obs,
		Hypotheses:   hyps,
		Patterns:     pats,
		Stats:        stats,
		QualityScore: score,
	})
	return nil
}

// executeBatch runs one batch and folds results into the run.
func (p *Pipeline) executeBatch(ctx context.Context, run *AnalysisRun, execPath string, tests []domain.TestCase) (batchOutcome, error) {
	total := len(tests)
	outcome, err := p.executor.run(ctx, execPath, tests, func(completed int) {
		run.broker.publish(ProgressEvent{
			RunID:    run.ID,
			Stage:    StageExecuting,
			Progress: run.progressPercent(),
			Message:  fmt.Sprintf("executed %d/%d tests", completed, total),
			At:       time.Now(),
		})
	})
	if err != nil {
		return batchOutcome{}, err
	}
	recordBatchMetrics(outcome.stats)
	run.addObservations(outcome.observations, outcome.stats)
	return outcome, nil
}

// validate refreshes hypotheses and patterns from the full observation
// set and stores them on the run.
func (p *Pipeline) validate(run *AnalysisRun) ([]domain.Hypothesis, []domain.DetectedPattern) {
	obs := run.Observations()
	hyps := p.opts.Engine.Validate(obs)
	pats := p.opts.Detector.Detect(obs)
	run.mu.Lock()
	run.hypotheses = hyps
	run.patterns = pats
	run.mu.Unlock()
	return hyps, pats
}

// adaptiveBatch returns the capped adaptive suggestions if this run
// still has its re-test round available and the hypotheses warrant it.
func (p *Pipeline) adaptiveBatch(run *AnalysisRun, hyps []domain.Hypothesis) []domain.TestCase {
	run.mu.Lock()
	used := run.retested
	run.retested = true
	run.mu.Unlock()
	if used {
		return nil
	}
	if len(hyps) >= 2 && hyps[0].Confidence-hyps[1].Confidence >= ambiguityGap {
		return nil
	}
	suggestions := p.opts.Adaptive.SuggestNext(run.Observations(), hyps)
	if len(suggestions) > p.opts.MaxAdaptiveTests {
		suggestions = suggestions[:p.opts.MaxAdaptiveTests]
	}
	return suggestions
}

// mergeExtraCases appends caller-supplied inputs, deduplicated against
// the generated batch.
func mergeExtraCases(tests []domain.TestCase, extra []string) []domain.TestCase {
	if len(extra) == 0 {
		return tests
	}
	seen := make(map[string]bool, len(tests))
	for _, tc := range tests {
		seen[tc.NormalizedInput()] = true
	}
	for _, input := range extra {
		tc := domain.TestCase{
			Input:     input,
			Rationale: "caller-supplied test case",
			Category:  domain.CategoryExternal,
			Priority:  8,
		}
		if key := tc.NormalizedInput(); key != "" && !seen[key] {
			seen[key] = true
			tests = append(tests, tc)
		}
	}
	return tests
}

// humanize maps an internal error to the classification-specific
// message surfaced to callers, preserving sentinel identity.
func humanize(err error) error {
	switch {
	case errors.Is(err, ErrNoObservations):
		return fmt.Errorf("%w: the program never produced usable output; it may require an unsupported input format", ErrNoObservations)
	case errors.Is(err, context.Canceled):
		return errors.New("analysis cancelled by caller")
	case errors.Is(err, context.DeadlineExceeded):
		return errors.New("analysis exceeded its overall deadline")
	default:
		kind := recovery.Classify(err)
		return fmt.Errorf("analysis failed (%s): %w", kind, err)
	}
}
