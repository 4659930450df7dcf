// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patterns classifies observation sets into algorithmic
// families using statistical heuristics.
//
// The detector is deliberately independent of the hypothesis library:
// it does not replay exact algorithms, it measures how consistent the
// observation set is with a family of behaviors. A classifier fires
// when at least 80% of the usable observations are consistent with its
// family, so a few noisy or misfit observations do not suppress an
// otherwise clear signal. Detected patterns serve as a cross-check on
// hypothesis results and feed the reasoning prompt.
package patterns

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// consistencyThreshold is the fraction of observations a classifier
// must explain before it reports a pattern.
const consistencyThreshold = 0.8

// minObservations below which a statistical threshold is meaningless.
const minObservations = 3

// classifier is one family heuristic. It returns the number of
// consistent observations, evidence lines for the ones it examined,
// and the algorithm to suggest when it fires.
type classifier struct {
	ptype     domain.PatternType
	algorithm string
	check     func(obs observation) (consistent bool, evidence string)
}

// observation is a pre-parsed view of a domain.Observation: the raw
// pair plus its numeric decomposition, computed once per detection.
type observation struct {
	input      string
	output     string
	inputNums  []int64
	outputNums []int64
}

// Detector runs the family classifiers over an observation set.
//
// # Thread Safety
// Stateless after construction; safe for concurrent use.
type Detector struct {
	classifiers []classifier
	logger      *slog.Logger
}

// NewDetector builds a detector with the standard five classifiers.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		classifiers: []classifier{
			{domain.PatternAggregation, "linear scan with an accumulator", checkAggregation},
			{domain.PatternSorting, "sort or order-statistic selection", checkSorting},
			{domain.PatternMathematical, "closed-form numeric transform", checkMathematical},
			{domain.PatternDP, "dynamic programming over subproblems", checkDP},
			{domain.PatternClassification, "predicate evaluated to a boolean answer", checkClassification},
		},
		logger: logger,
	}
}

// Detect classifies the observation set.
//
// # Inputs
//   - observations: verified input/output pairs.
//
// # Outputs
//   - Patterns whose consistency meets the 80% threshold, sorted by
//     descending confidence. Fewer than three observations yield nil:
//     a fraction over a tiny sample is not evidence.
func (d *Detector) Detect(observations []domain.Observation) []domain.DetectedPattern {
	if len(observations) < minObservations {
		return nil
	}

	parsed := make([]observation, len(observations))
	for i, obs := range observations {
		parsed[i] = observation{
			input:      obs.Input,
			output:     obs.Output,
			inputNums:  extractIntegers(obs.Input),
			outputNums: extractIntegers(obs.Output),
		}
	}

	var out []domain.DetectedPattern
	for _, c := range d.classifiers {
		consistent := 0
		var evidence []string
		for _, obs := range parsed {
			ok, ev := c.check(obs)
			if ok {
				consistent++
				if ev != "" && len(evidence) < 3 {
					evidence = append(evidence, ev)
				}
			}
		}
		confidence := float64(consistent) / float64(len(parsed))
		if confidence < consistencyThreshold {
			continue
		}
		evidence = append(evidence, fmt.Sprintf("%d of %d observations consistent", consistent, len(parsed)))
		out = append(out, domain.DetectedPattern{
			Type:               c.ptype,
			Confidence:         confidence,
			Evidence:           evidence,
			SuggestedAlgorithm: c.algorithm,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	d.logger.Debug("pattern detection complete",
		"observations", len(observations),
		"patterns", len(out))
	return out
}

// =============================================================================
// Family classifiers
// =============================================================================

// checkAggregation: one numeric output bounded by the sum-of-magnitudes
// of a multi-value numeric input. Catches sum, count, max and friends
// without replaying any of them exactly.
func checkAggregation(obs observation) (bool, string) {
	if len(obs.inputNums) < 2 || len(obs.outputNums) != 1 {
		return false, ""
	}
	var magnitude int64
	for _, n := range obs.inputNums {
		magnitude += absInt(n)
	}
	out := obs.outputNums[0]
	if absInt(out) > magnitude {
		return false, ""
	}
	return true, fmt.Sprintf("output %d within accumulator range of %d inputs", out, len(obs.inputNums))
}

// checkSorting: the output is a permutation of the input values, or a
// single value drawn from the input (an order statistic).
func checkSorting(obs observation) (bool, string) {
	if len(obs.inputNums) < 2 {
		return false, ""
	}
	values := obs.inputNums
	if len(values) >= 2 && values[0] == int64(len(values)-1) {
		values = values[1:] // size-prefixed layout
	}
	if len(obs.outputNums) == len(values) && isPermutation(values, obs.outputNums) {
		if sort.SliceIsSorted(obs.outputNums, func(i, j int) bool { return obs.outputNums[i] < obs.outputNums[j] }) {
			return true, "output is the sorted input"
		}
		return true, "output is a permutation of the input"
	}
	if len(obs.outputNums) == 1 && containsInt(obs.inputNums, obs.outputNums[0]) {
		return true, fmt.Sprintf("output %d selected from input values", obs.outputNums[0])
	}
	return false, ""
}

// checkMathematical: single numeric input, single numeric output, with
// superlinear growth relative to the input. Squares, powers,
// factorials and combinatorial counts all land here.
func checkMathematical(obs observation) (bool, string) {
	if len(obs.inputNums) != 1 || len(obs.outputNums) != 1 {
		return false, ""
	}
	in, out := obs.inputNums[0], obs.outputNums[0]
	if in <= 1 {
		// Degenerate inputs carry no growth signal; count them as
		// consistent so boundary probes do not mask the family.
		return true, ""
	}
	if absInt(out) >= 2*absInt(in) {
		return true, fmt.Sprintf("f(%d) = %d grows superlinearly", in, out)
	}
	return false, ""
}

// checkDP: multi-value input with a single output that is neither a
// simple total nor an input element, yet is bounded by the input
// magnitude. The residue left when aggregation and selection are
// excluded is where optimal-substructure answers live (best subarray,
// subsequence length, edit distance).
func checkDP(obs observation) (bool, string) {
	if len(obs.inputNums) < 3 || len(obs.outputNums) != 1 {
		return false, ""
	}
	out := obs.outputNums[0]
	var total, magnitude int64
	for _, n := range obs.inputNums {
		total += n
		magnitude += absInt(n)
	}
	// Exclude plain totals, with and without a leading size prefix.
	if out == total || out == total-obs.inputNums[0] || containsInt(obs.inputNums, out) {
		return false, ""
	}
	if absInt(out) > magnitude {
		return false, ""
	}
	return true, fmt.Sprintf("output %d is a derived optimum, not a direct aggregate", out)
}

// checkClassification: the output token belongs to a boolean
// vocabulary. Bare "1"/"0" only counts when the input is not itself
// that value, otherwise identity programs would classify.
func checkClassification(obs observation) (bool, string) {
	token := strings.ToLower(strings.TrimSpace(obs.output))
	switch token {
	case "yes", "no", "true", "false":
		return true, fmt.Sprintf("boolean answer %q", token)
	case "1", "0":
		if len(obs.inputNums) == 1 && strconv.FormatInt(obs.inputNums[0], 10) == token {
			return false, ""
		}
		return true, fmt.Sprintf("binary answer %q", token)
	}
	return false, ""
}

// =============================================================================
// Numeric helpers
// =============================================================================

// extractIntegers pulls whitespace-separated integer tokens in order.
// Unlike the hypothesis engine's operand extraction, no size-prefix
// stripping happens here; the classifiers reason about raw shape.
func extractIntegers(s string) []int64 {
	fields := strings.Fields(s)
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func absInt(n int64) int64 {
	if n == math.MinInt64 {
		return math.MaxInt64
	}
	if n < 0 {
		return -n
	}
	return n
}

func isPermutation(a, b []int64) bool {
	counts := make(map[int64]int, len(a))
	for _, n := range a {
		counts[n]++
	}
	for _, n := range b {
		counts[n]--
		if counts[n] < 0 {
			return false
		}
	}
	return true
}

func containsInt(ns []int64, v int64) bool {
	for _, n := range ns {
		if n == v {
			return true
		}
	}
	return false
}
