// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package strategy generates candidate test inputs from parsed
// constraints via an ordered list of independent pure strategies.
//
// Independence is the point: each strategy's coverage is auditable on
// its own, and a failing strategy is skipped and logged rather than
// aborting the batch.
package strategy

import (
	"log/slog"
	"sort"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// Generator merges strategy outputs into a deduplicated, prioritized
// batch.
//
// # Thread Safety
//
// Safe for concurrent use; Generate has no shared mutable state.
type Generator struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewGenerator creates a Generator with the default strategy list.
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{strategies: DefaultStrategies(), logger: logger}
}

// NewGeneratorWithStrategies creates a Generator with a custom list,
// for tests and experiments.
func NewGeneratorWithStrategies(strategies []Strategy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{strategies: strategies, logger: logger}
}

// Generate runs every strategy and returns at most target cases,
// sorted by descending priority and deduplicated by normalized input.
//
// # Inputs
//
//   - pc: Parsed constraints driving materialization.
//   - target: Maximum batch size. Non-positive means no limit.
//
// # Outputs
//
//   - []domain.TestCase: The merged batch. Never contains two cases
//     with equal normalized input text.
func (g *Generator) Generate(pc domain.ParsedConstraints, target int) []domain.TestCase {
	var merged []domain.TestCase
	for _, s := range g.strategies {
		cases := g.runStrategy(s, pc)
		merged = append(merged, cases...)
	}

	// Stable sort keeps the strategy order as tiebreak, making batches
	// deterministic for identical constraints.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority > merged[j].Priority
	})

	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, tc := range merged {
		key := tc.NormalizedInput()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tc)
	}

	if target > 0 && len(out) > target {
		out = out[:target]
	}
	return out
}

// runStrategy isolates one strategy: a panic is logged and yields an
// empty contribution instead of corrupting the batch.
func (g *Generator) runStrategy(s Strategy, pc domain.ParsedConstraints) (cases []domain.TestCase) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("test strategy failed, skipping",
				slog.String("strategy", s.Name),
				slog.Any("panic", r),
			)
			cases = nil
		}
	}()
	return s.Generate(pc)
}
