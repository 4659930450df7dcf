// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reasoning turns an observation set into a synthesized
// problem statement via the external reasoning service, and scores the
// quality of whatever comes back.
package reasoning

import (
	"fmt"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// maxPromptObservations bounds how many observation pairs go into a
// prompt; beyond this the marginal signal is not worth the tokens.
const maxPromptObservations = 15

// responseSchema is the JSON shape the reasoning service is asked to
// produce. Kept as a const so prompt and parser stay in sync.
const responseSchema = `{
  "title": "short problem title",
  "statement": "full problem statement",
  "input_format": "description of the input format",
  "output_format": "description of the expected output",
  "constraints": "variable ranges",
  "algorithm": "name of the underlying algorithm",
  "solution": "step-by-step explanation of what the program computes"
}`

// BuildPrompt assembles the reasoning request from everything the
// pipeline has learned about the program.
//
// The prompt leads with observations (the ground truth), then the
// hypothesis and pattern signals as hints the model may confirm or
// reject, then the response contract.
func BuildPrompt(
	constraints domain.ParsedConstraints,
	observations []domain.Observation,
	hypotheses []domain.Hypothesis,
	patterns []domain.DetectedPattern,
) string {
	var sb strings.Builder

	sb.WriteString("You are analyzing a black-box competitive programming solution. ")
	sb.WriteString("Given observed input/output pairs, reconstruct the original problem.\n\n")

	sb.WriteString("## Observed behavior\n")
	for i, obs := range observations {
		if i >= maxPromptObservations {
			fmt.Fprintf(&sb, "... and %d more pairs\n", len(observations)-i)
			break
		}
		fmt.Fprintf(&sb, "Input: %q -> Output: %q\n", obs.Input, obs.Output)
	}

	if len(constraints.Variables) > 0 {
		sb.WriteString("\n## Declared constraints\n")
		for _, v := range constraints.Variables {
			fmt.Fprintf(&sb, "- %s (%s)", v.Name, v.Type)
			if v.Min != nil {
				fmt.Fprintf(&sb, " min=%g", *v.Min)
			}
			if v.Max != nil {
				fmt.Fprintf(&sb, " max=%g", *v.Max)
			}
			sb.WriteString("\n")
		}
	}

	if len(hypotheses) > 0 {
		sb.WriteString("\n## Algorithm hypotheses (validated against observations)\n")
		for i, h := range hypotheses {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sb, "- %s: confidence %.2f (%d/%d observations)\n",
				h.Name, h.Confidence, h.Matches, h.Matches+h.Mismatches)
		}
	}

	if len(patterns) > 0 {
		sb.WriteString("\n## Detected algorithmic patterns\n")
		for _, p := range patterns {
			fmt.Fprintf(&sb, "- %s (confidence %.2f): %s\n", p.Type, p.Confidence, p.SuggestedAlgorithm)
		}
	}

	sb.WriteString("\nRespond with a single JSON object, no commentary:\n")
	sb.WriteString(responseSchema)
	sb.WriteString("\n")
	return sb.String()
}
