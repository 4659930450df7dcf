// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package adaptive decides which inputs to run next when the current
// observation set leaves the analysis ambiguous.
//
// Two complementary strategies feed the suggestion list:
//
//   - Discriminating tests separate the top two hypotheses when their
//     confidences are close. A lookup table keyed by normalized
//     hypothesis-name pairs holds inputs known to make common pairs
//     (sum vs max, gcd vs min) produce different outputs.
//   - Coverage-gap tests fill categories the observation set never
//     touched: negatives, large magnitudes, a single element, sorted
//     order, duplicates.
//
// Suggestions are deduplicated against existing observations and
// capped to bound re-execution cost.
package adaptive

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// ambiguityThreshold: top two hypotheses closer than this are treated
// as indistinguishable and worth separating.
const ambiguityThreshold = 0.2

// maxSuggestions caps one adaptive round.
const maxSuggestions = 10

// discriminatingInputs maps a normalized hypothesis-name pair to
// inputs on which the two algorithms disagree. Keys are built by
// pairKey, so order of the two names does not matter.
var discriminatingInputs = map[string][]string{
	pairKey("Array Sum", "Array Max"):             {"3\n1 2 3\n", "4\n5 1 1 1\n"},
	pairKey("Array Sum", "Array Product"):         {"3\n2 3 4\n", "3\n1 5 0\n"},
	pairKey("Array Sum", "Max Subarray Sum"):      {"5\n-2 4 -1 3 -5\n", "4\n-1 -2 -3 -4\n"},
	pairKey("Array Sum", "Element Count"):         {"3\n5 5 5\n"},
	pairKey("Array Max", "Array Min"):             {"3\n1 2 3\n", "2\n-5 5\n"},
	pairKey("Array Max", "Last Element"):          {"4\n9 2 3 4\n"},
	pairKey("Array Max", "Max Subarray Sum"):      {"4\n3 4 -1 2\n"},
	pairKey("Array Min", "First Element"):         {"4\n7 2 3 4\n"},
	pairKey("GCD", "Array Min"):                   {"2\n4 6\n", "3\n12 18 24\n"},
	pairKey("GCD", "LCM"):                         {"2\n4 6\n"},
	pairKey("LCM", "Array Max"):                   {"2\n4 6\n"},
	pairKey("Element Count", "Array Max"):         {"3\n9 9 9\n"},
	pairKey("First Element", "Last Element"):      {"3\n1 5 9\n"},
	pairKey("Median", "Integer Mean"):             {"3\n1 2 9\n"},
	pairKey("Square", "Double"):                   {"3\n", "10\n"},
	pairKey("Square", "Triangular Number"):        {"4\n"},
	pairKey("Identity", "Double"):                 {"7\n"},
	pairKey("Nth Fibonacci", "Identity"):          {"6\n", "10\n"},
	pairKey("Nth Fibonacci", "Triangular Number"): {"5\n"},
	pairKey("Factorial", "Power of Two"):          {"4\n", "5\n"},
	pairKey("Sorted Check", "All Equal Check"):    {"3\n1 2 3\n"},
	pairKey("Even Check", "Primality Check"):      {"2\n", "9\n"},
}

// pairKey builds an order-independent lookup key from two hypothesis
// names.
func pairKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// gap is one coverage category with its detector and canned inputs.
type gap struct {
	name    string
	present func(nums []int64) bool
	cases   []string
}

var coverageGaps = []gap{
	{
		name: "negative values",
		present: func(nums []int64) bool {
			for _, n := range nums {
				if n < 0 {
					return true
				}
			}
			return false
		},
		cases: []string{"3\n-5 -1 -10\n", "4\n-2 3 -4 1\n"},
	},
	{
		name: "large magnitudes",
		present: func(nums []int64) bool {
			for _, n := range nums {
				if n >= 100000 || n <= -100000 {
					return true
				}
			}
			return false
		},
		cases: []string{"3\n100000 999999 500000\n"},
	},
	{
		name:    "single element",
		present: func(nums []int64) bool { return len(nums) == 1 || (len(nums) == 2 && nums[0] == 1) },
		cases:   []string{"1\n42\n"},
	},
	{
		name: "sorted input",
		present: func(nums []int64) bool {
			vals := operands(nums)
			if len(vals) < 2 {
				return false
			}
			return sort.SliceIsSorted(vals, func(i, j int) bool { return vals[i] < vals[j] })
		},
		cases: []string{"5\n1 2 3 4 5\n"},
	},
	{
		name: "duplicate values",
		present: func(nums []int64) bool {
			seen := make(map[int64]bool, len(nums))
			for _, n := range operands(nums) {
				if seen[n] {
					return true
				}
				seen[n] = true
			}
			return false
		},
		cases: []string{"4\n7 7 7 7\n", "5\n1 2 2 3 3\n"},
	},
}

// operands drops a leading size prefix when present, mirroring how the
// hypothesis engine reads inputs.
func operands(nums []int64) []int64 {
	if len(nums) >= 2 && nums[0] == int64(len(nums)-1) {
		return nums[1:]
	}
	return nums
}

// Orchestrator produces the next adaptive test batch.
//
// Stateless; safe for concurrent use.
type Orchestrator struct {
	logger *slog.Logger
}

func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger}
}

// SuggestNext proposes inputs that would most reduce ambiguity.
//
// # Inputs
//   - observations: everything executed successfully so far.
//   - hypotheses: current validation results, best first.
//
// # Outputs
//   - Up to 10 test cases, discriminating tests first, deduplicated
//     against observed inputs and against each other. Empty when the
//     analysis is already unambiguous and coverage is complete.
func (o *Orchestrator) SuggestNext(observations []domain.Observation, hypotheses []domain.Hypothesis) []domain.TestCase {
	seen := make(map[string]bool, len(observations))
	for _, obs := range observations {
		seen[domain.NormalizeText(obs.Input)] = true
	}

	var out []domain.TestCase
	add := func(tc domain.TestCase) bool {
		key := domain.NormalizeText(tc.Input)
		if seen[key] || len(out) >= maxSuggestions {
			return false
		}
		seen[key] = true
		out = append(out, tc)
		return true
	}

	if len(hypotheses) >= 2 {
		top, second := hypotheses[0], hypotheses[1]
		if top.Confidence-second.Confidence < ambiguityThreshold {
			for _, input := range discriminatingInputs[pairKey(top.Name, second.Name)] {
				add(domain.TestCase{
					Input:     input,
					Rationale: fmt.Sprintf("separates %q from %q", top.Name, second.Name),
					Category:  domain.CategoryAdaptive,
					Priority:  10,
				})
			}
			o.logger.Debug("ambiguous hypotheses",
				"top", top.Name, "second", second.Name,
				"gap", top.Confidence-second.Confidence,
				"discriminating_tests", len(out))
		}
	}

	for _, g := range coverageGaps {
		if coverageSatisfied(observations, g) {
			continue
		}
		for _, input := range g.cases {
			add(domain.TestCase{
				Input:     input,
				Rationale: "covers untested category: " + g.name,
				Category:  domain.CategoryAdaptive,
				Priority:  5,
			})
		}
	}

	return out
}

// coverageSatisfied reports whether any observation already exercises
// the category.
func coverageSatisfied(observations []domain.Observation, g gap) bool {
	for _, obs := range observations {
		if g.present(integersOf(obs.Input)) {
			return true
		}
	}
	return false
}

func integersOf(s string) []int64 {
	fields := strings.Fields(s)
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
