// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package strategy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/constraints"
	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

func arrayConstraints(t *testing.T) domain.ParsedConstraints {
	t.Helper()
	pc := constraints.Parse("first line n, then n integers of the array", "1 <= n <= 10^5")
	require.True(t, pc.HasHint(domain.HintArray))
	return pc
}

func TestGenerateNoDuplicateNormalizedInputs(t *testing.T) {
	g := NewGenerator(nil)
	batch := g.Generate(arrayConstraints(t), 0)
	require.NotEmpty(t, batch)

	seen := make(map[string]bool)
	for _, tc := range batch {
		key := tc.NormalizedInput()
		assert.False(t, seen[key], "duplicate normalized input %q", key)
		seen[key] = true
	}
}

func TestGenerateSortedByPriority(t *testing.T) {
	g := NewGenerator(nil)
	batch := g.Generate(arrayConstraints(t), 0)
	for i := 1; i < len(batch); i++ {
		assert.GreaterOrEqual(t, batch[i-1].Priority, batch[i].Priority,
			"batch must be sorted by descending priority")
	}
}

func TestGenerateRespectsTarget(t *testing.T) {
	g := NewGenerator(nil)
	full := g.Generate(arrayConstraints(t), 0)
	require.Greater(t, len(full), 5)

	trimmed := g.Generate(arrayConstraints(t), 5)
	assert.Len(t, trimmed, 5)
	// Trimming keeps the highest-priority cases.
	assert.Equal(t, full[:5], trimmed)
}

func TestGenerateArrayMaterialization(t *testing.T) {
	g := NewGenerator(nil)
	batch := g.Generate(arrayConstraints(t), 0)

	// The boundary value for n must expand into an n-length array,
	// not a bare integer.
	var found bool
	for _, tc := range batch {
		if tc.Category != domain.CategoryBoundary {
			continue
		}
		lines := strings.SplitN(strings.TrimSpace(tc.Input), "\n", 2)
		require.Len(t, lines, 2, "array input needs a size line and a value line: %q", tc.Input)
		if lines[0] == "1" {
			found = true
			assert.Len(t, strings.Fields(lines[1]), 1)
		}
	}
	assert.True(t, found, "expected a minimum-boundary array case")
}

func TestGenerateScalarProblem(t *testing.T) {
	pc := constraints.Parse("a single integer n", "1 <= n <= 10^9")
	g := NewGenerator(nil)
	batch := g.Generate(pc, 0)
	require.NotEmpty(t, batch)

	for _, tc := range batch {
		assert.NotContains(t, tc.Input, "\n ", "scalar inputs must be single values: %q", tc.Input)
	}
}

func TestGenerateStringProblem(t *testing.T) {
	pc := constraints.Parse("a string of lowercase letters", "1 <= n <= 100")
	g := NewGenerator(nil)
	batch := g.Generate(pc, 0)
	require.NotEmpty(t, batch)

	var hasAlpha bool
	for _, tc := range batch {
		if strings.ContainsAny(tc.Input, "abcdefghijklmnopqrstuvwxyz") {
			hasAlpha = true
		}
	}
	assert.True(t, hasAlpha, "string problems should get string-shaped inputs")
}

func TestPanickingStrategyIsSkipped(t *testing.T) {
	strategies := []Strategy{
		{Name: "bomber", Generate: func(domain.ParsedConstraints) []domain.TestCase {
			panic("boom")
		}},
		{Name: "good", Generate: func(domain.ParsedConstraints) []domain.TestCase {
			return []domain.TestCase{{Input: "1\n", Category: domain.CategoryIdentity, Priority: 5}}
		}},
	}
	g := NewGeneratorWithStrategies(strategies, nil)

	batch := g.Generate(domain.ParsedConstraints{}, 0)
	require.Len(t, batch, 1, "a panicking strategy must not abort the batch")
	assert.Equal(t, "1\n", batch[0].Input)
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator(nil)
	pc := arrayConstraints(t)
	a := g.Generate(pc, 10)
	b := g.Generate(pc, 10)
	assert.Equal(t, a, b, "same constraints must yield the same batch")
}

func TestKadaneFixturePresent(t *testing.T) {
	g := NewGenerator(nil)
	batch := g.Generate(arrayConstraints(t), 0)

	var kadane bool
	for _, tc := range batch {
		if strings.Contains(tc.Input, "-2 1 -3 4") {
			kadane = true
		}
	}
	assert.True(t, kadane, "algorithm-revealing strategy should emit the kadane fixture")
}
