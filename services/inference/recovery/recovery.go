// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recovery classifies pipeline failures into a closed taxonomy
// and applies per-kind retry policies with exponential backoff.
//
// Callers declare the failure kind they expect from an operation. When
// an attempt fails, the error is classified by message inspection; the
// retry budget and backoff of the *actual* kind govern what happens
// next. A mismatch between declared and actual kind where the actual
// kind forbids retries aborts immediately instead of burning the
// declared kind's budget on an unrecoverable failure.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// =============================================================================
// Failure taxonomy
// =============================================================================

// Kind is one member of the closed failure taxonomy.
type Kind string

const (
	KindReasoningTimeout Kind = "reasoning_timeout"
	KindRateLimited      Kind = "reasoning_rate_limited"
	KindMalformed        Kind = "malformed_response"
	KindSandboxTimeout   Kind = "sandbox_timeout"
	KindSandboxResource  Kind = "sandbox_resource_exceeded"
	KindSandboxInfra     Kind = "sandbox_infrastructure_error"
	KindExecutionFailed  Kind = "execution_failed"
	KindParseError       Kind = "parse_error"
	KindUnknown          Kind = "unknown"
)

// classificationRules is checked in order; the first rule whose every
// needle appears in the lowercased error message wins. More specific
// rules come first.
var classificationRules = []struct {
	kind    Kind
	needles [][]string // any clause; all needles within a clause
}{
	{KindRateLimited, [][]string{{"rate limit"}, {"429"}, {"too many requests"}}},
	{KindReasoningTimeout, [][]string{{"reasoning", "timeout"}, {"reasoning", "deadline"}, {"llm", "timeout"}, {"completion", "timeout"}}},
	{KindMalformed, [][]string{{"malformed"}, {"unexpected response"}, {"empty response"}, {"invalid json"}}},
	{KindSandboxResource, [][]string{{"resource exceeded"}, {"memory limit"}, {"output limit"}, {"rlimit"}}},
	{KindSandboxTimeout, [][]string{{"sandbox", "timeout"}, {"execution timed out"}, {"watchdog"}}},
	{KindSandboxInfra, [][]string{{"workspace"}, {"sandbox", "setup"}, {"no such file"}, {"permission denied"}}},
	{KindExecutionFailed, [][]string{{"exit status"}, {"exit code"}, {"process error"}, {"signal:"}}},
	{KindParseError, [][]string{{"parse"}, {"unmarshal"}, {"invalid syntax"}}},
}

// Classify maps an error to its failure kind by message inspection.
// Nil errors and unrecognizable messages map to KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		for _, clause := range rule.needles {
			all := true
			for _, needle := range clause {
				if !strings.Contains(msg, needle) {
					all = false
					break
				}
			}
			if all {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// =============================================================================
// Retry policies
// =============================================================================

// Policy is the retry budget and backoff seed for one failure kind.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero means the kind is never retried.
	MaxRetries int

	// Backoff is the wait before the first retry; it doubles on each
	// subsequent retry and is jittered by ±20%.
	Backoff time.Duration
}

// Retryable reports whether the policy permits any retry at all.
func (p Policy) Retryable() bool { return p.MaxRetries > 0 }

// DefaultPolicies returns the per-kind retry policies.
//
// Transient upstream failures (timeouts, rate limits) retry with
// meaningful backoff. Deterministic failures (a program that exceeds
// its memory limit will exceed it again) never retry.
func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindReasoningTimeout: {MaxRetries: 2, Backoff: 2 * time.Second},
		KindRateLimited:      {MaxRetries: 3, Backoff: 5 * time.Second},
		KindMalformed:        {MaxRetries: 2, Backoff: 1 * time.Second},
		KindSandboxTimeout:   {MaxRetries: 0},
		KindSandboxResource:  {MaxRetries: 0},
		KindSandboxInfra:     {MaxRetries: 2, Backoff: 500 * time.Millisecond},
		KindExecutionFailed:  {MaxRetries: 0},
		KindParseError:       {MaxRetries: 1, Backoff: 500 * time.Millisecond},
		KindUnknown:          {MaxRetries: 1, Backoff: 1 * time.Second},
	}
}

// =============================================================================
// Executor
// =============================================================================

// jitterFactor bounds backoff randomization at ±20%.
const jitterFactor = 0.2

// Executor applies retry policies to failing operations.
//
// # Thread Safety
// Safe for concurrent use; policies are read-only after construction.
type Executor struct {
	policies map[Kind]Policy
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor with the default policies.
func NewExecutor(logger *slog.Logger) *Executor {
	return NewExecutorWithPolicies(DefaultPolicies(), logger)
}

// NewExecutorWithPolicies builds an executor with explicit policies.
// Kinds missing from the map are treated as non-retryable.
func NewExecutorWithPolicies(policies map[Kind]Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policies: policies,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Policy returns the policy for a kind; the zero Policy when absent.
func (e *Executor) Policy(kind Kind) Policy { return e.policies[kind] }

// Do runs op under the retry policy of the declared failure kind.
//
// # Inputs
//   - ctx: cancellation; checked before each attempt and during waits.
//   - declared: the kind the caller expects this operation to fail as.
//   - op: the operation. Must not be nil.
//
// # Outputs
//   - The operation's result on success.
//   - ErrKindMismatch (wrapping the cause) when the actual classified
//     kind differs from declared and its own policy forbids retries.
//   - ErrRetriesExhausted (wrapping the last cause) when the budget of
//     the first failure's kind runs out.
//
// The retry budget comes from the kind of the first failure, so an
// operation declared as a reasoning timeout that actually hits a rate
// limit is governed by the rate-limit policy.
func Do[T any](ctx context.Context, e *Executor, declared Kind, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}

	budget := e.policies[declared].MaxRetries
	backoff := e.policies[declared].Backoff

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		// Caller cancellation is never retried.
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return zero, err
		}

		actual := Classify(err)
		if actual != declared {
			actualPolicy := e.policies[actual]
			if !actualPolicy.Retryable() {
				e.logger.Warn("failure kind mismatch, aborting",
					"declared", declared, "actual", actual, "error", err)
				return zero, fmt.Errorf("%w: declared %s, got %s: %w", ErrKindMismatch, declared, actual, err)
			}
			// The actual kind is retryable: let its policy govern the
			// remaining attempts.
			if attempt == 0 {
				budget = actualPolicy.MaxRetries
				backoff = actualPolicy.Backoff
			}
		}

		if attempt >= budget {
			return zero, fmt.Errorf("%w after %d attempts (%s): %w", ErrRetriesExhausted, attempt+1, actual, err)
		}

		wait := jittered(backoffAt(backoff, attempt))
		e.logger.Debug("retrying after failure",
			"kind", actual, "attempt", attempt+1, "budget", budget, "wait", wait)
		if err := e.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// backoffAt doubles the base for each completed attempt, capped at 30s.
func backoffAt(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

// jittered spreads a wait across [d*(1-jitter), d*(1+jitter)].
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(d) * (1.0 + j))
}

// sleepCtx waits for d or context cancellation, whichever first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
