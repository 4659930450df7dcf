// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// QualityScore grades a synthesized problem against local evidence.
//
// # Description
// Scoring is uniform across verified and fallback results so callers
// can compare them on one scale:
//
//   - completeness (0.4): the fraction of core fields that are filled
//   - hypothesis agreement (0.4): the named algorithm matches a
//     surviving hypothesis, weighted by that hypothesis's confidence
//   - observation fit (0.2): claimed examples agree with what the
//     sandbox actually observed
//
// Fallback results are additionally capped at 0.5; a locally
// synthesized description never scores like a verified inference.
//
// # Outputs
//   - score in [0,1]; 0 for a nil problem.
func QualityScore(p *domain.InferredProblem, hypotheses []domain.Hypothesis, observations []domain.Observation) float64 {
	if p == nil {
		return 0
	}

	score := 0.4 * completeness(p)
	score += 0.4 * hypothesisAgreement(p, hypotheses)
	score += 0.2 * observationFit(p, observations)

	if p.Fallback && score > 0.5 {
		score = 0.5
	}
	return score
}

func completeness(p *domain.InferredProblem) float64 {
	fields := []string{p.Title, p.Statement, p.InputFormat, p.OutputSpec, p.Algorithm, p.Solution}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// hypothesisAgreement checks whether the problem names an algorithm
// the engine independently validated.
func hypothesisAgreement(p *domain.InferredProblem, hypotheses []domain.Hypothesis) float64 {
	if len(hypotheses) == 0 {
		return 0
	}
	algo := strings.ToLower(p.Algorithm)
	if algo == "" {
		return 0
	}
	for _, h := range hypotheses {
		name := strings.ToLower(h.Name)
		if strings.Contains(algo, name) || strings.Contains(name, algo) {
			return h.Confidence
		}
	}
	// Naming an algorithm no hypothesis supports is weak evidence
	// either way; score it below an explicit match.
	return 0.25
}

// observationFit verifies that any examples the problem claims were
// actually observed with the same output.
func observationFit(p *domain.InferredProblem, observations []domain.Observation) float64 {
	if len(p.Examples) == 0 {
		// No invented examples is neutral, not wrong.
		return 0.5
	}
	observed := make(map[string]string, len(observations))
	for _, obs := range observations {
		observed[domain.NormalizeText(obs.Input)] = domain.NormalizeText(obs.Output)
	}
	consistent := 0
	for _, ex := range p.Examples {
		if out, ok := observed[domain.NormalizeText(ex.Input)]; ok && out == domain.NormalizeText(ex.Output) {
			consistent++
		}
	}
	return float64(consistent) / float64(len(p.Examples))
}
