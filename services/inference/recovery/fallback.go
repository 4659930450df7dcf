// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// Fallback synthesizes a degraded result purely from local observation
// statistics once the reasoning service is exhausted.
//
// # Description
// No inference happens here: the builder only describes what was
// observed (output shape, value range, a best surviving hypothesis if
// one exists) so the caller still gets something actionable. The
// result is always marked Fallback and must never be presented as a
// verified inference.
//
// # Inputs
//   - observations: the run's verified pairs. May be empty.
//   - hypotheses: current validation results, best first. May be empty.
//
// # Outputs
//   - A deterministic InferredProblem with Fallback set.
func Fallback(observations []domain.Observation, hypotheses []domain.Hypothesis) *domain.InferredProblem {
	shape := outputShape(observations)

	p := &domain.InferredProblem{
		Title:       "Unidentified Program (low confidence)",
		InputFormat: inputShape(observations),
		OutputSpec:  shape.describe(),
		Constraints: "Unknown; derived only from sampled inputs.",
		Fallback:    true,
	}

	var sb strings.Builder
	sb.WriteString("The reasoning stage could not complete. ")
	fmt.Fprintf(&sb, "The program was observed on %d inputs. ", len(observations))
	sb.WriteString(shape.describe())

	if len(hypotheses) > 0 {
		best := hypotheses[0]
		fmt.Fprintf(&sb, " The closest matching known algorithm is %q (confidence %.2f, %d/%d observations).",
			best.Name, best.Confidence, best.Matches, best.Matches+best.Mismatches)
		p.Algorithm = best.Name
		if best.Description != "" {
			p.Statement = best.Description
		}
	} else {
		sb.WriteString(" No known algorithm matched the observed behavior.")
	}
	p.Solution = sb.String()

	for i, obs := range observations {
		if i >= 3 {
			break
		}
		p.Examples = append(p.Examples, domain.IOPair{Input: obs.Input, Output: obs.Output})
	}
	return p
}

// shapeStats summarizes the outputs of an observation set.
type shapeStats struct {
	total   int
	numeric int
	boolean int
	min     int64
	max     int64
}

func (s shapeStats) describe() string {
	if s.total == 0 {
		return "No successful executions were observed."
	}
	switch {
	case s.boolean == s.total:
		return "Every observed output was a boolean-style answer (yes/no, true/false, 1/0)."
	case s.numeric == s.total:
		return fmt.Sprintf("Every observed output was a single integer in [%d, %d].", s.min, s.max)
	case s.numeric > 0:
		return fmt.Sprintf("%d of %d outputs were single integers; the rest were free text.", s.numeric, s.total)
	default:
		return "Outputs were free text."
	}
}

func outputShape(observations []domain.Observation) shapeStats {
	s := shapeStats{total: len(observations)}
	first := true
	for _, obs := range observations {
		token := strings.TrimSpace(obs.Output)
		switch strings.ToLower(token) {
		case "yes", "no", "true", "false":
			s.boolean++
			continue
		}
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}
		s.numeric++
		if v == 0 || v == 1 {
			s.boolean++ // ambiguous; counts toward both shapes
		}
		if first || v < s.min {
			s.min = v
		}
		if first || v > s.max {
			s.max = v
		}
		first = false
	}
	return s
}

// inputShape gives a coarse description of the sampled inputs.
func inputShape(observations []domain.Observation) string {
	if len(observations) == 0 {
		return "Unknown."
	}
	multi, single := 0, 0
	for _, obs := range observations {
		if len(strings.Fields(obs.Input)) > 1 {
			multi++
		} else {
			single++
		}
	}
	switch {
	case multi == 0:
		return "A single whitespace-delimited token per run."
	case single == 0:
		return "Multiple whitespace-delimited values per run, typically length-prefixed."
	default:
		return "Mixed single-value and multi-value inputs."
	}
}
