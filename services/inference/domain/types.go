// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package domain holds the shared data model of the inference pipeline.
//
// These types flow between the sandbox, the test generators, the
// hypothesis engine and the orchestrator. They carry no behavior
// beyond simple derived accessors; each stage owns its own logic.
package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Test Cases
// =============================================================================

// TestCategory classifies why a test case was generated.
type TestCategory string

const (
	CategoryBoundary   TestCategory = "boundary"
	CategoryIdentity   TestCategory = "identity"
	CategorySign       TestCategory = "sign"
	CategoryOrdering   TestCategory = "ordering"
	CategoryDuplicates TestCategory = "duplicates"
	CategorySequence   TestCategory = "sequence"
	CategoryOverflow   TestCategory = "overflow"
	CategoryAlgorithm  TestCategory = "algorithm"
	CategoryAdaptive   TestCategory = "adaptive"
	CategoryExternal   TestCategory = "external"
)

// TestCase is one candidate input for the target executable.
//
// Immutable once generated. Priority drives selection order when a
// batch is trimmed to a target count; Category feeds coverage-gap
// analysis.
type TestCase struct {
	Input     string       `json:"input"`
	Rationale string       `json:"rationale"`
	Category  TestCategory `json:"category"`
	Priority  int          `json:"priority"`
}

// NormalizedInput returns the whitespace-collapsed input text used
// for batch deduplication.
func (tc TestCase) NormalizedInput() string {
	return NormalizeText(tc.Input)
}

// NormalizeText collapses all whitespace runs to single spaces and
// trims the ends. Two inputs with equal normalized text are the same
// test for dedup purposes.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// Observations
// =============================================================================

// Observation is one verified input/output pair.
//
// Created only from a successful execution: normal exit, no timeout,
// no sandbox error. Observation sets are append-only within a run.
type Observation struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// =============================================================================
// Constraints
// =============================================================================

// VariableType describes the inferred type of a constrained variable.
type VariableType string

const (
	VarInteger VariableType = "integer"
	VarFloat   VariableType = "float"
	VarString  VariableType = "string"
)

// Variable is one parsed constraint range.
//
// Min/Max are pointers because one-sided bounds are common
// ("n ≥ 1", "a_i ≤ 10^9").
type Variable struct {
	Name string       `json:"name"`
	Type VariableType `json:"type"`
	Min  *float64     `json:"min,omitempty"`
	Max  *float64     `json:"max,omitempty"`
}

// StructuralHint marks input shapes detected in the format text.
type StructuralHint string

const (
	HintArray  StructuralHint = "array"
	HintMatrix StructuralHint = "matrix"
	HintGraph  StructuralHint = "graph"
	HintString StructuralHint = "string"
)

// ParsedConstraints is the read-only result of constraint parsing,
// derived once per run.
type ParsedConstraints struct {
	Variables []Variable              `json:"variables"`
	Hints     map[StructuralHint]bool `json:"hints"`
}

// HasHint reports whether the given structural hint was detected.
func (pc ParsedConstraints) HasHint(h StructuralHint) bool {
	return pc.Hints[h]
}

// Primary returns the first parsed variable. The parser guarantees at
// least one variable, so Primary is always valid on parser output.
func (pc ParsedConstraints) Primary() Variable {
	if len(pc.Variables) == 0 {
		lo, hi := 1.0, 100.0
		return Variable{Name: "n", Type: VarInteger, Min: &lo, Max: &hi}
	}
	return pc.Variables[0]
}

// =============================================================================
// Hypotheses and Patterns
// =============================================================================

// Hypothesis scores one candidate algorithm against the observations.
//
// Confidence is always Matches/(Matches+Mismatches) over the full
// observation set, recomputed on every validation pass. No incremental
// state survives between passes.
type Hypothesis struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Matches     int     `json:"match_count"`
	Mismatches  int     `json:"mismatch_count"`
}

// PatternType is an algorithmic family detected by the independent
// pattern heuristics.
type PatternType string

const (
	PatternAggregation    PatternType = "linear_aggregation"
	PatternSorting        PatternType = "sorting_selection"
	PatternMathematical   PatternType = "mathematical_transform"
	PatternDP             PatternType = "dp_optimal_substructure"
	PatternClassification PatternType = "boolean_classification"
)

// DetectedPattern is the output of one pattern heuristic. Computed
// separately from hypotheses and useful as a cross-check.
type DetectedPattern struct {
	Type               PatternType `json:"type"`
	Confidence         float64     `json:"confidence"`
	Evidence           []string    `json:"evidence"`
	SuggestedAlgorithm string      `json:"suggested_algorithm"`
}

// =============================================================================
// Execution
// =============================================================================

// FailureReason categorizes a failed sandbox execution.
type FailureReason string

const (
	FailTimeout        FailureReason = "timed_out"
	FailResource       FailureReason = "resource_exceeded"
	FailProcess        FailureReason = "process_error"
	FailInfrastructure FailureReason = "infrastructure_error"
)

// ExecutionResult is the outcome of one sandbox run.
//
// Created per execution and consumed immediately into an Observation
// or a failure record; never persisted beyond the run.
type ExecutionResult struct {
	Stdout           string        `json:"stdout"`
	Stderr           string        `json:"stderr"`
	ExitCode         int           `json:"exit_code"`
	TimedOut         bool          `json:"timed_out"`
	ResourceExceeded bool          `json:"resource_exceeded"`
	Elapsed          time.Duration `json:"elapsed"`
	FailureReason    FailureReason `json:"failure_reason,omitempty"`
}

// Usable reports whether the result may become an Observation.
func (r ExecutionResult) Usable() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.ResourceExceeded && r.FailureReason == ""
}

// ExecutionStats aggregates a run's sandbox activity.
type ExecutionStats struct {
	Attempted  int           `json:"attempted"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	TimedOut   int           `json:"timed_out"`
	TotalTime  time.Duration `json:"total_time"`
}

// =============================================================================
// Results
// =============================================================================

// InferredProblem is the synthesized problem statement.
type InferredProblem struct {
	Title       string   `json:"title"`
	Statement   string   `json:"statement"`
	InputFormat string   `json:"input_format"`
	OutputSpec  string   `json:"output_format"`
	Constraints string   `json:"constraints"`
	Algorithm   string   `json:"algorithm"`
	Solution    string   `json:"solution"`
	Examples    []IOPair `json:"examples,omitempty"`

	// Fallback marks a low-confidence result synthesized locally after
	// the reasoning service was exhausted. Never equivalent to a
	// verified inference.
	Fallback bool `json:"fallback,omitempty"`
}

// IOPair is a worked example in an inferred problem.
type IOPair struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// AnalysisResult is what the transport layer hands back to callers.
type AnalysisResult struct {
	Success      bool              `json:"success"`
	Problem      *InferredProblem  `json:"inferred_problem,omitempty"`
	Observations []Observation     `json:"observations,omitempty"`
	Hypotheses   []Hypothesis      `json:"hypotheses,omitempty"`
	Patterns     []DetectedPattern `json:"patterns,omitempty"`
	Stats        ExecutionStats    `json:"execution_stats"`
	QualityScore float64           `json:"quality_score"`
	Error        string            `json:"error,omitempty"`
}
