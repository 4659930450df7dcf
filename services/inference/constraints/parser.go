// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package constraints extracts variable ranges and structural hints
// from free-text format and constraint descriptions.
//
// Parsing never fails: anything unparseable degrades to the default
// single variable n in [1, 100]. Structural hints are advisory and
// consumed by the test strategy generator to materialize scalar
// boundary values into full inputs.
package constraints

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// boundPat matches one numeric bound. Power forms come before the
// plain-number alternative so "10^5" is not cut short at "10".
const boundPat = `(-?\d+\s*\*\s*10\s*\^\s*\d+|-?\d+\s*\^\s*\d+|-?[\d.]+(?:[eE][+-]?\d+)?)`

// Range patterns, tried in order. Bounds support plain integers,
// decimals, caret powers (10^9, 2*10^9) and exponent notation (2e9).
var (
	// lo <= name <= hi (any of <= ≤ < accepted on either side)
	twoSidedRe = regexp.MustCompile(`(?i)` + boundPat + `\s*(?:<=|≤|<)\s*([a-zA-Z][a-zA-Z0-9_]*)\s*(?:<=|≤|<)\s*` + boundPat)

	// name <= hi
	upperOnlyRe = regexp.MustCompile(`(?i)\b([a-zA-Z][a-zA-Z0-9_]*)\s*(?:<=|≤|<)\s*` + boundPat)

	// name >= lo
	lowerOnlyRe = regexp.MustCompile(`(?i)\b([a-zA-Z][a-zA-Z0-9_]*)\s*(?:>=|≥|>)\s*` + boundPat)

	coeffPowRe = regexp.MustCompile(`^(\d+)\s*\*\s*10\s*\^\s*(\d+)$`)
	caretRe    = regexp.MustCompile(`^(\d+)\s*\^\s*(\d+)$`)
)

// hint keywords matched case-insensitively against format+constraints text.
var hintKeywords = map[domain.StructuralHint][]string{
	domain.HintMatrix: {"matrix", "grid", "rows and columns", "2d array"},
	domain.HintGraph:  {"graph", "edge", "node", "vertex", "vertices", "tree "},
	domain.HintString: {"string", "character", "letters", "lowercase", "uppercase", "word"},
	domain.HintArray:  {"array", "sequence", "elements", "integers a", "list of", "a_i", "a[i]"},
}

// Parse extracts constraints from the two free-text descriptions.
//
// # Inputs
//
//   - formatText: Input format description (e.g. "First line contains
//     n, second line n integers").
//   - constraintsText: Range description (e.g. "1 <= n <= 10^5").
//
// # Outputs
//
//   - domain.ParsedConstraints: Always at least one variable. Never fails.
func Parse(formatText, constraintsText string) domain.ParsedConstraints {
	combined := formatText + "\n" + constraintsText

	vars := parseVariables(constraintsText)
	if len(vars) == 0 {
		vars = parseVariables(combined)
	}
	if len(vars) == 0 {
		lo, hi := 1.0, 100.0
		vars = []domain.Variable{{Name: "n", Type: domain.VarInteger, Min: &lo, Max: &hi}}
	}

	return domain.ParsedConstraints{
		Variables: vars,
		Hints:     detectHints(combined),
	}
}

// parseVariables collects ranges from the text, two-sided first so a
// variable's full range wins over a one-sided fragment of it.
func parseVariables(text string) []domain.Variable {
	seen := make(map[string]bool)
	var vars []domain.Variable

	for _, m := range twoSidedRe.FindAllStringSubmatch(text, -1) {
		name := m[2]
		if seen[name] {
			continue
		}
		lo, okLo := parseBound(m[1])
		hi, okHi := parseBound(m[3])
		if !okLo || !okHi || lo > hi {
			continue
		}
		seen[name] = true
		vars = append(vars, domain.Variable{
			Name: name,
			Type: boundType(m[1], m[3]),
			Min:  &lo,
			Max:  &hi,
		})
	}

	for _, m := range upperOnlyRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if seen[name] || isNoiseWord(name) {
			continue
		}
		hi, ok := parseBound(m[2])
		if !ok {
			continue
		}
		seen[name] = true
		vars = append(vars, domain.Variable{Name: name, Type: boundType(m[2], m[2]), Max: &hi})
	}

	for _, m := range lowerOnlyRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if isNoiseWord(name) {
			continue
		}
		lo, ok := parseBound(m[2])
		if !ok {
			continue
		}
		if seen[name] {
			// Merge a lower bound into an upper-only variable.
			for i := range vars {
				if vars[i].Name == name && vars[i].Min == nil {
					vars[i].Min = &lo
				}
			}
			continue
		}
		seen[name] = true
		vars = append(vars, domain.Variable{Name: name, Type: boundType(m[2], m[2]), Min: &lo})
	}

	return vars
}

// parseBound evaluates a numeric bound, including 10^k, c*10^k, b^k
// and exponent notation.
func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		v, ok := parseBound(s[1:])
		return -v, ok
	}

	if m := coeffPowRe.FindStringSubmatch(s); m != nil {
		coeff, err1 := strconv.ParseFloat(m[1], 64)
		exp, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return coeff * math.Pow(10, float64(exp)), true
	}

	if m := caretRe.FindStringSubmatch(s); m != nil {
		base, err1 := strconv.ParseFloat(m[1], 64)
		exp, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return math.Pow(base, float64(exp)), true
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// boundType infers integer vs float from how the bounds were written.
func boundType(lo, hi string) domain.VariableType {
	if strings.Contains(lo, ".") || strings.Contains(hi, ".") {
		return domain.VarFloat
	}
	return domain.VarInteger
}

// isNoiseWord filters identifiers that are almost never variables in
// constraint prose.
func isNoiseWord(name string) bool {
	switch strings.ToLower(name) {
	case "the", "a", "an", "is", "of", "to", "at", "most", "least", "and", "or", "where", "each", "e", "i", "all":
		return true
	}
	return false
}

// detectHints scans for structural keywords.
func detectHints(text string) map[domain.StructuralHint]bool {
	lower := strings.ToLower(text)
	hints := make(map[domain.StructuralHint]bool)
	for hint, words := range hintKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				hints[hint] = true
				break
			}
		}
	}
	// A matrix is also array-shaped for materialization purposes.
	if hints[domain.HintMatrix] {
		hints[domain.HintArray] = true
	}
	return hints
}
