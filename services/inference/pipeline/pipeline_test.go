// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/adaptive"
	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/hypothesis"
	"github.com/Aayush-Sood101/BlackBox/services/inference/patterns"
	"github.com/Aayush-Sood101/BlackBox/services/inference/reasoning"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
	"github.com/Aayush-Sood101/BlackBox/services/inference/strategy"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
)

// summingProgram mimics a compiled solution that sums its input.
func summingProgram(input string) *domain.ExecutionResult {
	var sum int64
	fields := strings.Fields(input)
	nums := make([]int64, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			nums = append(nums, v)
		}
	}
	if len(nums) >= 2 && nums[0] == int64(len(nums)-1) {
		nums = nums[1:]
	}
	for _, n := range nums {
		sum += n
	}
	return &domain.ExecutionResult{Stdout: strconv.FormatInt(sum, 10) + "\n", Elapsed: time.Millisecond}
}

// fastExecutor removes retry waits.
func fastExecutor() *recovery.Executor {
	policies := recovery.DefaultPolicies()
	for k, p := range policies {
		p.Backoff = 0
		policies[k] = p
	}
	return recovery.NewExecutorWithPolicies(policies, nil)
}

func newTestPipeline(t *testing.T, runner sandbox.IsolatedRunner, client llm.Client) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Runner:      runner,
		Limits:      sandbox.DefaultLimits(),
		Parallelism: 3,
		Generator:   strategy.NewGenerator(nil),
		Engine:      hypothesis.NewEngine(nil),
		Detector:    patterns.NewDetector(nil),
		Adaptive:    adaptive.NewOrchestrator(nil),
		Reasoner:    reasoning.NewReasoner(client, fastExecutor(), nil),
	})
	require.NoError(t, err)
	return p
}

func sumRequest() Request {
	return Request{
		ExecutablePath:  "/fake/target",
		FormatText:      "First line contains n, second line contains n integers.",
		ConstraintsText: "1 <= n <= 100000, -1000000000 <= a_i <= 1000000000",
	}
}

func TestRunCompletesForSummingProgram(t *testing.T) {
	runner := &sandbox.MockRunner{Program: summingProgram}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Output the sum of n integers.","algorithm":"Array Sum"}`},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	p.Run(context.Background(), run, sumRequest())

	require.Equal(t, StageComplete, run.Stage())
	result, err := run.Result()
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Problem)
	assert.Equal(t, "Array Sum", result.Problem.Title)
	assert.False(t, result.Problem.Fallback)
	assert.NotEmpty(t, result.Observations)
	assert.Positive(t, result.QualityScore)

	require.NotEmpty(t, result.Hypotheses)
	assert.Equal(t, "Array Sum", result.Hypotheses[0].Name)
	assert.Equal(t, 1.0, result.Hypotheses[0].Confidence)
}

// A program that always exits nonzero yields no observations and the
// run terminates in error, with every attempt recorded as a failure.
func TestRunNoUsableOutputIsTerminalError(t *testing.T) {
	runner := &sandbox.MockRunner{
		Program: func(string) *domain.ExecutionResult {
			return &domain.ExecutionResult{ExitCode: 1, Stderr: "segfault", FailureReason: domain.FailProcess}
		},
	}
	p := newTestPipeline(t, runner, &llm.MockClient{})
	run := p.NewRun()

	p.Run(context.Background(), run, sumRequest())

	assert.Equal(t, StageError, run.Stage())
	result, err := run.Result()
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "insufficient successful executions")
	assert.Empty(t, result.Observations)
	assert.Zero(t, result.Stats.Successful)
	assert.Positive(t, result.Stats.Failed)
}

// Nonzero exit on some inputs: those runs are failures, not
// observations, but they do not block the rest of the batch.
func TestRunPartialFailuresDoNotBlock(t *testing.T) {
	var calls atomic.Int64
	runner := &sandbox.MockRunner{
		Program: func(input string) *domain.ExecutionResult {
			if calls.Add(1)%3 == 0 {
				return &domain.ExecutionResult{ExitCode: 2, FailureReason: domain.FailProcess}
			}
			return summingProgram(input)
		},
	}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Sum."}`},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	p.Run(context.Background(), run, sumRequest())

	require.Equal(t, StageComplete, run.Stage())
	result, _ := run.Result()
	assert.Positive(t, result.Stats.Failed)
	assert.Positive(t, result.Stats.Successful)
	assert.Equal(t, result.Stats.Successful, len(result.Observations))
}

func TestRunReasoningExhaustionDegradesToFallback(t *testing.T) {
	runner := &sandbox.MockRunner{Program: summingProgram}
	client := &llm.MockClient{
		Errs: []error{
			// KindReasoningTimeout allows 2 retries: three failures
			// exhaust the budget.
			errors.New("reasoning request timeout"),
			errors.New("reasoning request timeout"),
			errors.New("reasoning request timeout"),
		},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	p.Run(context.Background(), run, sumRequest())

	require.Equal(t, StageComplete, run.Stage())
	result, err := run.Result()
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Problem)
	assert.True(t, result.Problem.Fallback)
	assert.LessOrEqual(t, result.QualityScore, 0.5)
}

func TestRunCancellation(t *testing.T) {
	runner := &sandbox.MockRunner{
		Program: summingProgram,
		Latency: 50 * time.Millisecond,
	}
	p := newTestPipeline(t, runner, &llm.MockClient{})
	run := p.NewRun()

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), run, sumRequest())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	run.Cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, StageError, run.Stage())
	result, err := run.Result()
	require.NoError(t, err)
	assert.Contains(t, result.Error, "cancelled")
}

func TestRunEmitsProgressEvents(t *testing.T) {
	runner := &sandbox.MockRunner{Program: summingProgram}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Sum."}`},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	events, cancel := run.Subscribe()
	defer cancel()

	seen := map[Stage]bool{}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range events {
			seen[ev.Stage] = true
			assert.Equal(t, run.ID, ev.RunID)
			assert.GreaterOrEqual(t, ev.Progress, 0)
			assert.LessOrEqual(t, ev.Progress, 100)
		}
	}()

	p.Run(context.Background(), run, sumRequest())

	// The broker closes subscriber channels when the run finishes.
	select {
	case <-collected:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}
	assert.True(t, seen[StageExecuting], "missing executing events")
	assert.True(t, seen[StageComplete], "missing completion event")
}

func TestRunStatusSnapshots(t *testing.T) {
	runner := &sandbox.MockRunner{Program: summingProgram}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Sum."}`},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	st := run.Status()
	assert.Equal(t, StageGenerating, st.Stage)
	assert.Zero(t, st.Observations)

	p.Run(context.Background(), run, sumRequest())

	st = run.Status()
	assert.Equal(t, StageComplete, st.Stage)
	assert.Equal(t, 100, st.Progress)
	assert.Positive(t, st.Observations)
}

func TestRunResultBeforeTerminal(t *testing.T) {
	p := newTestPipeline(t, &sandbox.MockRunner{}, &llm.MockClient{})
	run := p.NewRun()
	_, err := run.Result()
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestMergeExtraCases(t *testing.T) {
	tests := []domain.TestCase{{Input: "3\n1 2 3\n", Category: domain.CategoryBoundary}}
	merged := mergeExtraCases(tests, []string{"3\n1 2 3\n", "2\n9 9\n", ""})
	require.Len(t, merged, 2)
	assert.Equal(t, domain.CategoryExternal, merged[1].Category)
	assert.Equal(t, "2 9 9", merged[1].NormalizedInput())
}

// Re-entering the executing stage for the adaptive round must not wind
// reported progress backwards; the percentage is a high-water mark.
func TestProgressMonotonicAcrossAdaptiveRound(t *testing.T) {
	run := NewRun(NewStateMachine())
	events, cancel := run.Subscribe()
	defer cancel()

	require.NoError(t, run.transition(StageExecuting, "first batch", nil))
	require.NoError(t, run.transition(StageValidating, "validating", nil))
	require.NoError(t, run.transition(StageExecuting, "adaptive batch", nil))

	assert.Equal(t, stageProgress[StageValidating], run.Status().Progress)

	last := 0
	for i := 0; i < 3; i++ {
		ev := <-events
		assert.GreaterOrEqual(t, ev.Progress, last, "progress regressed at %s", ev.Stage)
		last = ev.Progress
	}
	assert.Equal(t, stageProgress[StageValidating], last)
}

// A full run with an ambiguous target never reports a lower percentage
// than it already has, end to end.
func TestRunProgressNeverRegresses(t *testing.T) {
	// Constant output keeps every hypothesis below two survivors,
	// forcing the adaptive re-execution round.
	runner := &sandbox.MockRunner{
		Program: sandbox.OkProgram(func(string) string { return "42\n" }),
	}
	client := &llm.MockClient{
		Responses: []string{`{"title":"Constant","statement":"Print 42."}`},
	}
	p := newTestPipeline(t, runner, client)
	run := p.NewRun()

	events, cancel := run.Subscribe()
	defer cancel()

	var regressed atomic.Bool
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		last := 0
		for ev := range events {
			if ev.Progress < last {
				regressed.Store(true)
			}
			last = ev.Progress
		}
	}()

	p.Run(context.Background(), run, sumRequest())

	select {
	case <-collected:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}
	assert.False(t, regressed.Load(), "progress percentage regressed during the run")
	assert.Equal(t, StageComplete, run.Stage())
}
