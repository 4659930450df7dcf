// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// ErrUnparseable is returned when no recovery stage can produce a
// usable payload from the response text.
var ErrUnparseable = errors.New("malformed response: no JSON payload recoverable")

// fenceMarkers are tried in order when stripping markdown code blocks.
var fenceMarkers = []string{"```json\n", "```json\r\n", "```\n", "```\r\n"}

// ParseLenient extracts an InferredProblem from reasoning-service
// output that may be wrapped in commentary, fenced in markdown, or
// truncated mid-object.
//
// Recovery ladder, first success wins:
//  1. strict: the whole response is the JSON object
//  2. fenced: the object sits inside a markdown code block
//  3. span: first "{" through last "}", for preamble/postamble noise
//  4. fragment: longest balanced object prefix, for truncated output
//
// A recovered payload must carry at least a title or a statement;
// otherwise ErrUnparseable is returned.
func ParseLenient(text string) (*domain.InferredProblem, error) {
	for _, candidate := range candidates(text) {
		var p domain.InferredProblem
		if err := json.Unmarshal([]byte(candidate), &p); err != nil {
			continue
		}
		if p.Title == "" && p.Statement == "" {
			continue
		}
		return &p, nil
	}
	return nil, ErrUnparseable
}

// candidates yields payload texts in decreasing order of trust.
func candidates(text string) []string {
	var out []string
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		out = append(out, trimmed)
	}
	if fenced := stripFence(text); fenced != "" {
		out = append(out, fenced)
	}
	if span := braceSpan(text); span != "" {
		out = append(out, span)
	}
	if frag := balancedFragment(text); frag != "" {
		out = append(out, frag)
	}
	return out
}

// stripFence pulls the content of the first markdown code block.
func stripFence(text string) string {
	for _, marker := range fenceMarkers {
		start := strings.Index(text, marker)
		if start == -1 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end == -1 {
			// Truncated before the closing fence; hand the remainder
			// to the later stages via the fragment path.
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(rest[:end])
	}
	return ""
}

// braceSpan cuts from the first "{" to the last "}".
func braceSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// balancedFragment scans from the first "{" and returns the longest
// prefix that closes every opened brace, honoring JSON string and
// escape rules. For a response truncated mid-value it backs up to the
// last complete key/value pair and closes the object, so well-formed
// leading fields survive.
func balancedFragment(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	text = text[start:]

	depth := 0
	inString := false
	escaped := false
	inValue := false   // a ':' was seen since the last ',' or '{'
	lastComplete := -1 // index just past the last value completed at depth 1

	for i, r := range text {
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch r {
			case '\\':
				escaped = true
			case '"':
				inString = false
				if depth == 1 && inValue {
					lastComplete = i + 1
				}
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case ':':
			inValue = true
		case ',':
			if depth == 1 {
				inValue = false
			}
		case '{':
			depth++
			if depth == 1 {
				inValue = false
			}
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
			if depth == 1 {
				lastComplete = i + 1
			}
		case ']':
			if depth == 1 {
				lastComplete = i + 1
			}
		}
	}

	if lastComplete > 0 {
		frag := strings.TrimRight(text[:lastComplete], ", \t\r\n")
		return frag + "}"
	}
	return ""
}
