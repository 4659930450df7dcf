// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package strategy

import (
	"fmt"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// maxMaterializedLength caps how many elements a boundary value can
// expand into. Running a 10^5-element input tells us nothing a
// 50-element input doesn't, at far higher sandbox cost.
const maxMaterializedLength = 50

// Strategy emits candidate test cases from parsed constraints.
//
// Strategies must be pure and total with respect to ordinary inputs;
// the generator additionally isolates panics so one failing strategy
// never corrupts a batch.
type Strategy struct {
	Name     string
	Generate func(pc domain.ParsedConstraints) []domain.TestCase
}

// DefaultStrategies returns the ordered strategy list.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "boundary", Generate: boundaryStrategy},
		{Name: "identity", Generate: identityStrategy},
		{Name: "sign_variation", Generate: signStrategy},
		{Name: "ordering", Generate: orderingStrategy},
		{Name: "duplicates", Generate: duplicatesStrategy},
		{Name: "sequences", Generate: sequenceStrategy},
		{Name: "overflow", Generate: overflowStrategy},
		{Name: "algorithm_shapes", Generate: algorithmStrategy},
	}
}

// =============================================================================
// Individual strategies
// =============================================================================

func boundaryStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	v := pc.Primary()
	lo, hi := varRange(v)

	candidates := []struct {
		n         int
		rationale string
	}{
		{lo, fmt.Sprintf("minimum value of %s", v.Name)},
		{lo + 1, fmt.Sprintf("just above minimum of %s", v.Name)},
		{clampLen(hi), fmt.Sprintf("maximum value of %s (capped for execution cost)", v.Name)},
		{clampLen(hi) - 1, fmt.Sprintf("just below maximum of %s", v.Name)},
	}

	var out []domain.TestCase
	for _, c := range candidates {
		if c.n < lo || c.n < 0 {
			continue
		}
		out = append(out, domain.TestCase{
			Input:     materializeCount(pc, c.n, ascending),
			Rationale: c.rationale,
			Category:  domain.CategoryBoundary,
			Priority:  10,
		})
	}
	return out
}

func identityStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	out := []domain.TestCase{
		{
			Input:     materializeCount(pc, 1, ascending),
			Rationale: "single-element input",
			Category:  domain.CategoryIdentity,
			Priority:  9,
		},
	}
	if pc.HasHint(domain.HintArray) {
		out = append(out, domain.TestCase{
			Input:     "3\n0 0 0\n",
			Rationale: "all-zero array distinguishes additive from multiplicative behavior",
			Category:  domain.CategoryIdentity,
			Priority:  9,
		}, domain.TestCase{
			Input:     "3\n1 1 1\n",
			Rationale: "all-one array isolates multiplicative identity",
			Category:  domain.CategoryIdentity,
			Priority:  8,
		})
	} else if !pc.HasHint(domain.HintString) {
		out = append(out, domain.TestCase{
			Input:     "0\n",
			Rationale: "zero scalar input",
			Category:  domain.CategoryIdentity,
			Priority:  8,
		})
	}
	return out
}

func signStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if pc.HasHint(domain.HintString) {
		return nil
	}
	if !pc.HasHint(domain.HintArray) {
		return []domain.TestCase{{
			Input:     "-5\n",
			Rationale: "negative scalar input",
			Category:  domain.CategorySign,
			Priority:  8,
		}}
	}
	return []domain.TestCase{
		{
			Input:     "4\n-1 -2 -3 -4\n",
			Rationale: "all-negative array",
			Category:  domain.CategorySign,
			Priority:  8,
		},
		{
			Input:     "5\n-2 3 -4 5 -6\n",
			Rationale: "alternating signs expose absolute-value and filtering behavior",
			Category:  domain.CategorySign,
			Priority:  8,
		},
	}
}

func orderingStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if !pc.HasHint(domain.HintArray) {
		return nil
	}
	return []domain.TestCase{
		{
			Input:     "5\n1 2 3 4 5\n",
			Rationale: "already sorted ascending",
			Category:  domain.CategoryOrdering,
			Priority:  7,
		},
		{
			Input:     "5\n5 4 3 2 1\n",
			Rationale: "sorted descending",
			Category:  domain.CategoryOrdering,
			Priority:  7,
		},
		{
			Input:     "5\n3 1 4 1 5\n",
			Rationale: "unsorted with a repeat",
			Category:  domain.CategoryOrdering,
			Priority:  7,
		},
	}
}

func duplicatesStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if !pc.HasHint(domain.HintArray) {
		return nil
	}
	return []domain.TestCase{
		{
			Input:     "4\n7 7 7 7\n",
			Rationale: "all elements equal",
			Category:  domain.CategoryDuplicates,
			Priority:  6,
		},
		{
			Input:     "6\n2 5 2 5 2 5\n",
			Rationale: "two values repeated",
			Category:  domain.CategoryDuplicates,
			Priority:  6,
		},
	}
}

func sequenceStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if pc.HasHint(domain.HintString) || pc.HasHint(domain.HintGraph) {
		return nil
	}
	if !pc.HasHint(domain.HintArray) {
		// Scalar problems: probe small consecutive values, the shape
		// that exposes recurrences (factorial, fibonacci, parity).
		var out []domain.TestCase
		for _, n := range []int{2, 5, 10} {
			out = append(out, domain.TestCase{
				Input:     fmt.Sprintf("%d\n", n),
				Rationale: fmt.Sprintf("small scalar %d probes recurrences", n),
				Category:  domain.CategorySequence,
				Priority:  6,
			})
		}
		return out
	}
	return []domain.TestCase{
		{
			Input:     "6\n1 1 2 3 5 8\n",
			Rationale: "fibonacci prefix",
			Category:  domain.CategorySequence,
			Priority:  6,
		},
		{
			Input:     "5\n2 4 8 16 32\n",
			Rationale: "powers of two expose products and log behavior",
			Category:  domain.CategorySequence,
			Priority:  6,
		},
		{
			Input:     "5\n2 3 5 7 11\n",
			Rationale: "primes expose gcd/primality behavior",
			Category:  domain.CategorySequence,
			Priority:  6,
		},
	}
}

func overflowStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if pc.HasHint(domain.HintString) {
		return nil
	}
	v := pc.Primary()
	_, hi := varRange(v)
	big := 1000000000
	if hi > 0 && hi < float64(big) {
		big = int(hi)
	}
	if pc.HasHint(domain.HintArray) {
		return []domain.TestCase{{
			Input:     fmt.Sprintf("3\n%d %d %d\n", big, big-1, big),
			Rationale: "large-magnitude values expose 32-bit overflow",
			Category:  domain.CategoryOverflow,
			Priority:  5,
		}}
	}
	return []domain.TestCase{{
		Input:     fmt.Sprintf("%d\n", big),
		Rationale: "large scalar exposes overflow and performance cliffs",
		Category:  domain.CategoryOverflow,
		Priority:  5,
	}}
}

func algorithmStrategy(pc domain.ParsedConstraints) []domain.TestCase {
	if !pc.HasHint(domain.HintArray) {
		return nil
	}
	return []domain.TestCase{
		{
			// Classic Kadane fixture: max subarray [4,-1,2,1] = 6,
			// while total sum is 2 and max element is 4.
			Input:     "9\n-2 1 -3 4 -1 2 1 -5 4\n",
			Rationale: "kadane-triggering array separates max-subarray from sum and max",
			Category:  domain.CategoryAlgorithm,
			Priority:  7,
		},
		{
			// LIS is 4 (2,3,7,101 / 2,5,7,101), length differs from
			// sortedness checks and counts.
			Input:     "8\n10 9 2 5 3 7 101 18\n",
			Rationale: "LIS-triggering array separates subsequence DP from simpler scans",
			Category:  domain.CategoryAlgorithm,
			Priority:  7,
		},
	}
}

// =============================================================================
// Materialization helpers
// =============================================================================

// ascending yields 1..n as element values.
func ascending(i int) int { return i + 1 }

// varRange extracts a usable [lo, hi] from a variable, defaulting
// to [1, 100].
func varRange(v domain.Variable) (int, float64) {
	lo := 1
	if v.Min != nil {
		lo = int(*v.Min)
	}
	hi := 100.0
	if v.Max != nil {
		hi = *v.Max
	}
	return lo, hi
}

// clampLen bounds a materialized length.
func clampLen(hi float64) int {
	if hi > maxMaterializedLength {
		return maxMaterializedLength
	}
	if hi < 1 {
		return 1
	}
	return int(hi)
}

// materializeCount turns a scalar boundary value n into a full input
// according to the structural hints: an n-length array for
// array-shaped problems, an n-length string for string problems, a
// bare scalar otherwise.
func materializeCount(pc domain.ParsedConstraints, n int, value func(int) int) string {
	if n < 0 {
		n = 0
	}
	switch {
	case pc.HasHint(domain.HintMatrix):
		var b strings.Builder
		side := n
		if side > 8 {
			side = 8
		}
		if side < 1 {
			side = 1
		}
		fmt.Fprintf(&b, "%d %d\n", side, side)
		for r := 0; r < side; r++ {
			for c := 0; c < side; c++ {
				if c > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%d", value(r*side+c))
			}
			b.WriteByte('\n')
		}
		return b.String()
	case pc.HasHint(domain.HintGraph):
		// A path graph on n nodes: n-1 edges, connected, no cycles.
		var b strings.Builder
		if n < 2 {
			n = 2
		}
		fmt.Fprintf(&b, "%d %d\n", n, n-1)
		for i := 1; i < n; i++ {
			fmt.Fprintf(&b, "%d %d\n", i, i+1)
		}
		return b.String()
	case pc.HasHint(domain.HintString):
		if n < 1 {
			n = 1
		}
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteByte(byte('a' + i%26))
		}
		b.WriteByte('\n')
		return b.String()
	case pc.HasHint(domain.HintArray):
		var b strings.Builder
		fmt.Fprintf(&b, "%d\n", n)
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", value(i))
		}
		b.WriteByte('\n')
		return b.String()
	default:
		return fmt.Sprintf("%d\n", n)
	}
}
