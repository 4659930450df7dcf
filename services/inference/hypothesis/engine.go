// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hypothesis

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// minConfidence is the survival threshold. A candidate that explains
// fewer than half of the observations is noise, not signal.
const minConfidence = 0.5

// floatEpsilon bounds the drift tolerated when both sides of a
// comparison parse as floating point.
const floatEpsilon = 1e-6

// Engine scores the candidate library against observed behavior.
//
// # Description
// For every candidate the engine replays each observation's input
// through the candidate's predictor and compares the prediction with
// the program's actual output. Confidence is always recomputed from
// the full observation set, never updated incrementally, so repeated
// validation of the same observations is idempotent.
//
// # Thread Safety
// Engine is stateless after construction and safe for concurrent use.
type Engine struct {
	candidates []Candidate
	logger     *slog.Logger
}

// NewEngine builds an engine over the default candidate library.
func NewEngine(logger *slog.Logger) *Engine {
	return NewEngineWithCandidates(Library(), logger)
}

// NewEngineWithCandidates builds an engine over an explicit candidate
// list. Used by tests to isolate scoring behavior.
func NewEngineWithCandidates(candidates []Candidate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{candidates: candidates, logger: logger}
}

// Validate scores every candidate against the observations and returns
// the survivors as hypotheses.
//
// # Inputs
//   - observations: input/output pairs from successful executions.
//
// # Outputs
//   - Hypotheses with confidence >= 0.5, ordered perfect-confidence
//     first, then by descending confidence, then by library order.
//     Empty observations yield an empty slice.
//
// For every hypothesis Matches+Mismatches equals len(observations):
// a predictor that declines an input is counted as a mismatch, since
// the real program demonstrably produced an answer there.
func (e *Engine) Validate(observations []domain.Observation) []domain.Hypothesis {
	if len(observations) == 0 {
		return nil
	}

	var out []domain.Hypothesis
	order := make(map[string]int, len(e.candidates))
	for i, cand := range e.candidates {
		order[cand.ID] = i
		matches := 0
		for _, obs := range observations {
			predicted, ok := cand.Predict(obs.Input)
			if ok && outputsEqual(predicted, obs.Output) {
				matches++
			}
		}
		mismatches := len(observations) - matches
		confidence := float64(matches) / float64(len(observations))
		if confidence < minConfidence {
			continue
		}
		out = append(out, domain.Hypothesis{
			ID:          cand.ID,
			Name:        cand.Name,
			Description: cand.Description,
			Category:    cand.Category,
			Confidence:  confidence,
			Matches:     matches,
			Mismatches:  mismatches,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Confidence == 1.0, out[j].Confidence == 1.0
		if pi != pj {
			return pi
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return order[out[i].ID] < order[out[j].ID]
	})

	if len(out) > 0 {
		e.logger.Debug("hypothesis validation complete",
			"observations", len(observations),
			"survivors", len(out),
			"best", out[0].Name,
			"best_confidence", out[0].Confidence)
	}
	return out
}

// Predict replays the named candidate on a fresh input. Used by the
// adaptive generator to find inputs where two hypotheses disagree.
func (e *Engine) Predict(id, input string) (string, bool) {
	for _, cand := range e.candidates {
		if cand.ID == id {
			return cand.Predict(input)
		}
	}
	return "", false
}

// Candidates exposes the library for components that need to reason
// about candidate identity (adaptive generation, reporting).
func (e *Engine) Candidates() []Candidate {
	return e.candidates
}

// outputsEqual compares a prediction with the program's output,
// tolerating formatting differences.
//
// Comparison ladder, first hit wins:
//  1. exact match after whitespace normalization
//  2. boolean vocabulary (true/yes/1 vs false/no/0), only when the
//     prediction itself is a boolean token
//  3. numeric comparison with an absolute epsilon when both sides
//     parse as floats
func outputsEqual(predicted, actual string) bool {
	p := domain.NormalizeText(predicted)
	a := domain.NormalizeText(actual)
	if p == a {
		return true
	}
	if pb := normalizeBool(p); pb != "" && (p == "true" || p == "false") {
		if ab := normalizeBool(a); ab != "" {
			return pb == ab
		}
	}
	pf, errP := strconv.ParseFloat(strings.TrimSpace(p), 64)
	af, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if errP == nil && errA == nil {
		return math.Abs(pf-af) <= floatEpsilon
	}
	return false
}
