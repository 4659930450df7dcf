// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
)

// Reasoner drives the external reasoning call for one analysis run.
//
// The LLM call goes through the recovery executor (declared as a
// reasoning timeout, so rate limits and malformed responses adopt
// their own policies), and a parse failure inside one attempt is
// surfaced as a malformed-response error so it is retried rather than
// treated as fatal.
//
// # Thread Safety
// Safe for concurrent use across runs; the underlying client
// serializes requests itself.
type Reasoner struct {
	client   llm.Client
	executor *recovery.Executor
	params   llm.GenerationParams
	logger   *slog.Logger
}

// NewReasoner wires a reasoner over an LLM client and retry executor.
func NewReasoner(client llm.Client, executor *recovery.Executor, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	var temperature float32 = 0.2
	maxTokens := 2048
	return &Reasoner{
		client:   client,
		executor: executor,
		params: llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		},
		logger: logger,
	}
}

// Infer asks the reasoning service to synthesize the problem.
//
// # Inputs
//   - ctx: run cancellation.
//   - constraints, observations, hypotheses, patterns: everything the
//     local pipeline learned.
//
// # Outputs
//   - The parsed problem on success.
//   - The recovery layer's error on exhaustion; callers are expected
//     to substitute recovery.Fallback and continue.
func (r *Reasoner) Infer(
	ctx context.Context,
	constraints domain.ParsedConstraints,
	observations []domain.Observation,
	hypotheses []domain.Hypothesis,
	patterns []domain.DetectedPattern,
) (*domain.InferredProblem, error) {
	prompt := BuildPrompt(constraints, observations, hypotheses, patterns)

	problem, err := recovery.Do(ctx, r.executor, recovery.KindReasoningTimeout,
		func(ctx context.Context) (*domain.InferredProblem, error) {
			text, err := r.client.Generate(ctx, prompt, r.params)
			if err != nil {
				return nil, err
			}
			p, err := ParseLenient(text)
			if err != nil {
				return nil, fmt.Errorf("%w: %d response bytes", err, len(text))
			}
			return p, nil
		})
	if err != nil {
		return nil, err
	}

	r.logger.Info("reasoning complete",
		"title", problem.Title,
		"algorithm", problem.Algorithm)
	return problem, nil
}
