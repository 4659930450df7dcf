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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
)

// watchdogSlack is how much longer the orchestrator-level deadline
// waits beyond the sandbox's own timeout+grace. If the isolation
// layer's timeout signal is lost, this outer deadline still reclaims
// the slot.
const watchdogSlack = time.Second

// batchExecutor fans a test batch across the sandbox under a
// concurrency cap.
type batchExecutor struct {
	runner      sandbox.IsolatedRunner
	limits      sandbox.Limits
	parallelism int
	logger      *slog.Logger
}

// batchOutcome aggregates one batch's observations and statistics.
type batchOutcome struct {
	observations []domain.Observation
	stats        domain.ExecutionStats
}

// run executes every test case and collects observations from the
// usable results.
//
// # Description
// Executions run under an errgroup with a fixed concurrency limit.
// Each execution additionally races an orchestrator-level deadline of
// timeout+grace+slack, guaranteeing forward progress even if the
// sandbox watchdog misfires. A failed execution (nonzero exit,
// timeout, resource kill, infrastructure fault) is counted in stats
// and produces no observation; it never aborts the batch.
//
// Observations preserve batch order regardless of completion order.
// The only error returned is caller cancellation.
func (b *batchExecutor) run(ctx context.Context, executablePath string, tests []domain.TestCase, onDone func(completed int)) (batchOutcome, error) {
	type slot struct {
		obs domain.Observation
		ok  bool
	}
	slots := make([]slot, len(tests))
	results := make([]*domain.ExecutionResult, len(tests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	completed := 0
	done := make(chan int, len(tests))
	for i := range tests {
		i := i
		g.Go(func() error {
			deadline := b.limits.Timeout + b.limits.Grace + watchdogSlack
			execCtx, cancel := context.WithTimeout(gctx, deadline)
			defer cancel()

			result, err := b.runner.Execute(execCtx, executablePath, tests[i].Input, b.limits)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err() // caller cancelled; stop the batch
				}
				b.logger.Warn("sandbox infrastructure fault",
					"test", i, "category", tests[i].Category, "error", err)
				results[i] = &domain.ExecutionResult{
					ExitCode:      -1,
					FailureReason: domain.FailInfrastructure,
				}
				done <- i
				return nil
			}
			results[i] = result
			if result.Usable() {
				slots[i] = slot{obs: domain.Observation{Input: tests[i].Input, Output: result.Stdout}, ok: true}
			}
			done <- i
			return nil
		})
	}

	// Drain completions for progress reporting while the group runs.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range done {
			completed++
			if onDone != nil {
				onDone(completed)
			}
		}
	}()

	err := g.Wait()
	close(done)
	<-drained
	if err != nil {
		return batchOutcome{}, err
	}

	var out batchOutcome
	for i, s := range slots {
		result := results[i]
		out.stats.Attempted++
		if result == nil {
			out.stats.Failed++
			continue
		}
		out.stats.TotalTime += result.Elapsed
		switch {
		case s.ok:
			out.stats.Successful++
			out.observations = append(out.observations, s.obs)
		case result.TimedOut:
			out.stats.TimedOut++
			out.stats.Failed++
		default:
			out.stats.Failed++
		}
	}
	return out, nil
}
