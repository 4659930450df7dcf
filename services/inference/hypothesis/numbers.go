// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hypothesis

import (
	"regexp"
	"strconv"
	"strings"
)

var intRe = regexp.MustCompile(`-?\d+`)

// ExtractOperands pulls the integer operands out of an input text.
//
// # Description
//
// All integers are extracted in order. If the first integer equals the
// count of the remaining integers, it is treated as a size prefix
// ("n on the first line, then n values") and excluded from the
// operand list.
//
// The size-prefix rule is a heuristic and it can misfire: for the
// input "2\n1 2\n" the leading 2 is stripped even when it is a
// genuine operand. The failure mode is deliberate and covered by
// tests; callers needing the raw sequence use ExtractAllIntegers.
//
// # Outputs
//
//   - []int64: The operand list. Empty when the input has no integers.
func ExtractOperands(input string) []int64 {
	nums := ExtractAllIntegers(input)
	if len(nums) >= 2 && nums[0] == int64(len(nums)-1) {
		return nums[1:]
	}
	return nums
}

// ExtractAllIntegers extracts every integer in the input, in order.
// Tokens that overflow int64 are skipped.
func ExtractAllIntegers(input string) []int64 {
	matches := intRe.FindAllString(input, -1)
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// singleToken returns the input's sole whitespace-delimited token, or
// "" when the input has zero or several tokens. Used by the string
// predictors.
func singleToken(input string) string {
	fields := strings.Fields(input)
	if len(fields) != 1 {
		return ""
	}
	return fields[0]
}
