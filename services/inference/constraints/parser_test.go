// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

func TestParseTwoSidedRange(t *testing.T) {
	pc := Parse("", "1 <= n <= 100")
	require.Len(t, pc.Variables, 1)

	v := pc.Variables[0]
	assert.Equal(t, "n", v.Name)
	assert.Equal(t, domain.VarInteger, v.Type)
	require.NotNil(t, v.Min)
	require.NotNil(t, v.Max)
	assert.Equal(t, 1.0, *v.Min)
	assert.Equal(t, 100.0, *v.Max)
}

func TestParseExponentNotation(t *testing.T) {
	tests := []struct {
		name string
		text string
		hi   float64
	}{
		{"caret power of ten", "1 <= n <= 10^5", 1e5},
		{"coefficient power", "1 <= n <= 2*10^9", 2e9},
		{"e notation", "1 <= n <= 2e9", 2e9},
		{"plain caret", "1 <= n <= 2^10", 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := Parse("", tt.text)
			require.Len(t, pc.Variables, 1)
			require.NotNil(t, pc.Variables[0].Max)
			assert.InEpsilon(t, tt.hi, *pc.Variables[0].Max, 1e-9)
		})
	}
}

func TestParseMultipleVariables(t *testing.T) {
	pc := Parse("", "1 <= n <= 10^5, -10^9 <= a_i <= 10^9")
	require.Len(t, pc.Variables, 2)
	assert.Equal(t, "n", pc.Variables[0].Name)
	assert.Equal(t, "a_i", pc.Variables[1].Name)
	assert.Equal(t, -1e9, *pc.Variables[1].Min)
	assert.Equal(t, 1e9, *pc.Variables[1].Max)
}

func TestParseOneSidedBounds(t *testing.T) {
	pc := Parse("", "n <= 1000 and n >= 2")
	require.Len(t, pc.Variables, 1)
	v := pc.Variables[0]
	require.NotNil(t, v.Max)
	assert.Equal(t, 1000.0, *v.Max)
	require.NotNil(t, v.Min)
	assert.Equal(t, 2.0, *v.Min)
}

func TestParseNeverFails(t *testing.T) {
	// Totality: every input yields at least one variable.
	inputs := []string{
		"",
		"complete gibberish !!!",
		"<<>><=>=",
		"10^ <= x <= ^5",
		"∀ε>0 ∃δ>0",
	}
	for _, in := range inputs {
		pc := Parse(in, in)
		require.NotEmpty(t, pc.Variables, "input %q must degrade to defaults", in)
	}
}

func TestParseDefaultsToNOneHundred(t *testing.T) {
	pc := Parse("", "no ranges here")
	require.Len(t, pc.Variables, 1)
	v := pc.Variables[0]
	assert.Equal(t, "n", v.Name)
	assert.Equal(t, 1.0, *v.Min)
	assert.Equal(t, 100.0, *v.Max)
}

func TestParseFloatType(t *testing.T) {
	pc := Parse("", "0.0 <= p <= 1.0")
	require.Len(t, pc.Variables, 1)
	assert.Equal(t, domain.VarFloat, pc.Variables[0].Type)
}

func TestStructuralHints(t *testing.T) {
	tests := []struct {
		text string
		want domain.StructuralHint
	}{
		{"second line contains n integers of the array", domain.HintArray},
		{"a sequence of n values", domain.HintArray},
		{"an n x m grid follows", domain.HintMatrix},
		{"the graph has m edges", domain.HintGraph},
		{"a string of lowercase letters", domain.HintString},
	}
	for _, tt := range tests {
		pc := Parse(tt.text, "1 <= n <= 100")
		assert.True(t, pc.HasHint(tt.want), "text %q should trigger %s", tt.text, tt.want)
	}
}

func TestMatrixImpliesArray(t *testing.T) {
	pc := Parse("an n x m matrix of integers", "")
	assert.True(t, pc.HasHint(domain.HintMatrix))
	assert.True(t, pc.HasHint(domain.HintArray))
}

func TestNoFalseHints(t *testing.T) {
	pc := Parse("a single integer n", "1 <= n <= 100")
	assert.False(t, pc.HasHint(domain.HintGraph))
	assert.False(t, pc.HasHint(domain.HintMatrix))
}

func TestPrimaryFallback(t *testing.T) {
	var empty domain.ParsedConstraints
	v := empty.Primary()
	assert.Equal(t, "n", v.Name)
	assert.Equal(t, 1.0, *v.Min)
	assert.Equal(t, 100.0, *v.Max)
}
