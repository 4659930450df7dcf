// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
)

// fastPolicies removes real backoff waits from retry paths.
func fastPolicies() map[recovery.Kind]recovery.Policy {
	out := recovery.DefaultPolicies()
	for k, p := range out {
		p.Backoff = 0
		out[k] = p
	}
	return out
}

func testObservations() []domain.Observation {
	return []domain.Observation{
		{Input: "3\n1 2 3\n", Output: "6"},
		{Input: "2\n5 5\n", Output: "10"},
	}
}

func TestInferParsesResponse(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []string{`{"title":"Array Sum","statement":"Sum n integers.","algorithm":"sum"}`},
	}
	r := NewReasoner(mock, recovery.NewExecutorWithPolicies(fastPolicies(), nil), nil)

	p, err := r.Infer(context.Background(), domain.ParsedConstraints{}, testObservations(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Array Sum", p.Title)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "3\\n1 2 3")
}

func TestInferRetriesMalformedResponse(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []string{
			"I am not sure what this program does.",
			`{"title":"Array Sum","statement":"Sum n integers."}`,
		},
	}
	r := NewReasoner(mock, recovery.NewExecutorWithPolicies(fastPolicies(), nil), nil)

	p, err := r.Infer(context.Background(), domain.ParsedConstraints{}, testObservations(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Array Sum", p.Title)
	assert.Len(t, mock.Prompts, 2)
}

func TestInferExhaustsAndFails(t *testing.T) {
	mock := &llm.MockClient{
		Errs: []error{
			errors.New("reasoning request timeout"),
			errors.New("reasoning request timeout"),
			errors.New("reasoning request timeout"),
		},
	}
	r := NewReasoner(mock, recovery.NewExecutorWithPolicies(fastPolicies(), nil), nil)

	_, err := r.Infer(context.Background(), domain.ParsedConstraints{}, testObservations(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, recovery.ErrRetriesExhausted)
}

func TestBuildPromptContents(t *testing.T) {
	lo, hi := 1.0, 100000.0
	constraints := domain.ParsedConstraints{
		Variables: []domain.Variable{{Name: "n", Type: domain.VarInteger, Min: &lo, Max: &hi}},
	}
	hyps := []domain.Hypothesis{{Name: "Array Sum", Confidence: 1.0, Matches: 4}}
	pats := []domain.DetectedPattern{{
		Type: domain.PatternAggregation, Confidence: 1.0,
		SuggestedAlgorithm: "linear scan with an accumulator",
	}}

	prompt := BuildPrompt(constraints, testObservations(), hyps, pats)
	assert.Contains(t, prompt, "Array Sum")
	assert.Contains(t, prompt, "linear scan")
	assert.Contains(t, prompt, `"title"`)
	assert.Contains(t, prompt, "n (integer)")
	assert.True(t, strings.Contains(prompt, "Input:") && strings.Contains(prompt, "Output:"))
}

func TestBuildPromptCapsObservations(t *testing.T) {
	var obs []domain.Observation
	for i := 0; i < 40; i++ {
		obs = append(obs, domain.Observation{Input: "1\n", Output: "1"})
	}
	prompt := BuildPrompt(domain.ParsedConstraints{}, obs, nil, nil)
	assert.Contains(t, prompt, "more pairs")
	assert.LessOrEqual(t, strings.Count(prompt, "Input:"), maxPromptObservations)
}

// Requests go out with a deliberately low temperature and a bounded
// completion budget.
func TestNewReasonerGenerationParams(t *testing.T) {
	r := NewReasoner(&llm.MockClient{}, recovery.NewExecutorWithPolicies(fastPolicies(), nil), nil)

	require.NotNil(t, r.params.Temperature)
	assert.InDelta(t, 0.2, float64(*r.params.Temperature), 1e-9)
	require.NotNil(t, r.params.MaxTokens)
	assert.Equal(t, 2048, *r.params.MaxTokens)
}
