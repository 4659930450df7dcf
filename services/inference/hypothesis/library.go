// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hypothesis

import (
	"sort"
	"strconv"
	"strings"
)

// Candidate is one algorithm the engine can test against observations.
//
// Predict must be pure: output text and true when the candidate
// applies to the input, or false when it does not (wrong arity, value
// out of range, non-numeric input).
type Candidate struct {
	ID          string
	Name        string
	Description string
	Category    string
	Predict     func(input string) (string, bool)
}

// Library returns the closed candidate list, ordered by how commonly
// each algorithm appears in practice. The order is the final tiebreak
// in validation, so it is part of the engine's contract.
func Library() []Candidate {
	return []Candidate{
		// --- linear aggregation -----------------------------------------
		arrayOp("sum", "Array Sum", "Sum of all input numbers", "aggregation",
			func(ns []int64) (string, bool) { return itoa(sumOf(ns)), true }),
		arrayOp("max", "Array Max", "Maximum of all input numbers", "aggregation",
			func(ns []int64) (string, bool) { return itoa(maxOf(ns)), true }),
		arrayOp("min", "Array Min", "Minimum of all input numbers", "aggregation",
			func(ns []int64) (string, bool) { return itoa(minOf(ns)), true }),
		arrayOp("count", "Element Count", "Number of input values", "aggregation",
			func(ns []int64) (string, bool) { return strconv.Itoa(len(ns)), true }),
		arrayOp("product", "Array Product", "Product of all input numbers", "aggregation",
			func(ns []int64) (string, bool) {
				p := int64(1)
				for _, n := range ns {
					if p > 1<<40 || p < -(1<<40) {
						return "", false // would overflow observably
					}
					p *= n
				}
				return itoa(p), true
			}),
		arrayOp("range", "Value Range", "Difference between maximum and minimum", "aggregation",
			func(ns []int64) (string, bool) { return itoa(maxOf(ns) - minOf(ns)), true }),
		arrayOp("mean", "Integer Mean", "Arithmetic mean when it divides evenly", "aggregation",
			func(ns []int64) (string, bool) {
				s := sumOf(ns)
				if int64(len(ns)) == 0 || s%int64(len(ns)) != 0 {
					return "", false
				}
				return itoa(s / int64(len(ns))), true
			}),
		arrayOp("sum_squares", "Sum of Squares", "Sum of squared input values", "aggregation",
			func(ns []int64) (string, bool) {
				var s int64
				for _, n := range ns {
					s += n * n
				}
				return itoa(s), true
			}),
		arrayOp("xor", "XOR Accumulate", "Bitwise XOR of all values", "aggregation",
			func(ns []int64) (string, bool) {
				var x int64
				for _, n := range ns {
					x ^= n
				}
				return itoa(x), true
			}),

		// --- positional selection ---------------------------------------
		arrayOp("first", "First Element", "First input value", "selection",
			func(ns []int64) (string, bool) { return itoa(ns[0]), true }),
		arrayOp("last", "Last Element", "Last input value", "selection",
			func(ns []int64) (string, bool) { return itoa(ns[len(ns)-1]), true }),
		arrayOp("second_max", "Second Maximum", "Second-largest value", "selection",
			func(ns []int64) (string, bool) {
				if len(ns) < 2 {
					return "", false
				}
				s := sortedCopy(ns)
				return itoa(s[len(s)-2]), true
			}),
		arrayOp("median", "Median", "Middle value of the sorted input (odd length)", "selection",
			func(ns []int64) (string, bool) {
				if len(ns)%2 == 0 {
					return "", false
				}
				s := sortedCopy(ns)
				return itoa(s[len(s)/2]), true
			}),

		// --- counting ---------------------------------------------------
		arrayOp("count_positive", "Positive Count", "Number of positive values", "counting",
			func(ns []int64) (string, bool) { return strconv.Itoa(countIf(ns, func(n int64) bool { return n > 0 })), true }),
		arrayOp("count_negative", "Negative Count", "Number of negative values", "counting",
			func(ns []int64) (string, bool) { return strconv.Itoa(countIf(ns, func(n int64) bool { return n < 0 })), true }),
		arrayOp("count_even", "Even Count", "Number of even values", "counting",
			func(ns []int64) (string, bool) { return strconv.Itoa(countIf(ns, func(n int64) bool { return n%2 == 0 })), true }),
		arrayOp("count_distinct", "Distinct Count", "Number of distinct values", "counting",
			func(ns []int64) (string, bool) {
				set := make(map[int64]bool, len(ns))
				for _, n := range ns {
					set[n] = true
				}
				return strconv.Itoa(len(set)), true
			}),

		// --- number theory ----------------------------------------------
		arrayOp("gcd", "GCD", "Greatest common divisor of all values", "number_theory",
			func(ns []int64) (string, bool) {
				g := int64(0)
				for _, n := range ns {
					g = gcd(g, abs(n))
				}
				if g == 0 {
					return "", false
				}
				return itoa(g), true
			}),
		arrayOp("lcm", "LCM", "Least common multiple of all values", "number_theory",
			func(ns []int64) (string, bool) {
				l := int64(1)
				for _, n := range ns {
					a := abs(n)
					if a == 0 {
						return "", false
					}
					l = l / gcd(l, a) * a
					if l > 1<<60 {
						return "", false
					}
				}
				return itoa(l), true
			}),

		// --- dynamic programming ----------------------------------------
		arrayOp("kadane", "Max Subarray Sum", "Kadane maximum contiguous subarray sum", "dp",
			func(ns []int64) (string, bool) {
				best, cur := ns[0], ns[0]
				for _, n := range ns[1:] {
					if cur < 0 {
						cur = 0
					}
					cur += n
					if cur > best {
						best = cur
					}
				}
				return itoa(best), true
			}),
		arrayOp("lis", "LIS Length", "Length of the longest strictly increasing subsequence", "dp",
			func(ns []int64) (string, bool) {
				var tails []int64
				for _, n := range ns {
					i := sort.Search(len(tails), func(i int) bool { return tails[i] >= n })
					if i == len(tails) {
						tails = append(tails, n)
					} else {
						tails[i] = n
					}
				}
				return strconv.Itoa(len(tails)), true
			}),

		// --- boolean checks ---------------------------------------------
		arrayOp("is_sorted", "Sorted Check", "Whether the values are non-decreasing", "boolean",
			func(ns []int64) (string, bool) {
				return boolToken(sort.SliceIsSorted(ns, func(i, j int) bool { return ns[i] < ns[j] })), true
			}),
		arrayOp("has_duplicates", "Duplicate Check", "Whether any value repeats", "boolean",
			func(ns []int64) (string, bool) {
				set := make(map[int64]bool, len(ns))
				for _, n := range ns {
					if set[n] {
						return boolToken(true), true
					}
					set[n] = true
				}
				return boolToken(false), true
			}),
		arrayOp("all_equal", "All Equal Check", "Whether every value is the same", "boolean",
			func(ns []int64) (string, bool) {
				for _, n := range ns[1:] {
					if n != ns[0] {
						return boolToken(false), true
					}
				}
				return boolToken(true), true
			}),

		// --- scalar transforms ------------------------------------------
		scalarOp("identity", "Identity", "Echoes the input value", "scalar",
			func(n int64) (string, bool) { return itoa(n), true }),
		scalarOp("square", "Square", "Input value squared", "scalar",
			func(n int64) (string, bool) { return itoa(n * n), true }),
		scalarOp("double", "Double", "Input value doubled", "scalar",
			func(n int64) (string, bool) { return itoa(2 * n), true }),
		scalarOp("digit_sum", "Digit Sum", "Sum of decimal digits", "scalar",
			func(n int64) (string, bool) {
				n = abs(n)
				var s int64
				for n > 0 {
					s += n % 10
					n /= 10
				}
				return itoa(s), true
			}),
		scalarOp("triangular", "Triangular Number", "Sum of 1..n", "scalar",
			func(n int64) (string, bool) {
				if n < 0 || n > 1<<30 {
					return "", false
				}
				return itoa(n * (n + 1) / 2), true
			}),
		scalarOp("factorial", "Factorial", "n! for small n", "scalar",
			func(n int64) (string, bool) {
				if n < 0 || n > 20 {
					return "", false
				}
				f := int64(1)
				for i := int64(2); i <= n; i++ {
					f *= i
				}
				return itoa(f), true
			}),
		scalarOp("fibonacci", "Nth Fibonacci", "F(n) with F(1)=F(2)=1", "scalar",
			func(n int64) (string, bool) {
				if n < 1 || n > 90 {
					return "", false
				}
				a, b := int64(0), int64(1)
				for i := int64(1); i < n; i++ {
					a, b = b, a+b
				}
				return itoa(b), true
			}),
		scalarOp("power_of_two", "Power of Two", "2^n", "scalar",
			func(n int64) (string, bool) {
				if n < 0 || n > 62 {
					return "", false
				}
				return itoa(int64(1) << uint(n)), true
			}),
		scalarOp("is_even", "Even Check", "Whether the value is even", "boolean",
			func(n int64) (string, bool) { return boolToken(n%2 == 0), true }),
		scalarOp("is_prime", "Primality Check", "Whether the value is prime", "boolean",
			func(n int64) (string, bool) {
				if n > 1<<32 {
					return "", false
				}
				return boolToken(isPrime(n)), true
			}),
		scalarOp("divisor_count", "Divisor Count", "Number of positive divisors", "number_theory",
			func(n int64) (string, bool) {
				if n < 1 || n > 1<<32 {
					return "", false
				}
				c := 0
				for d := int64(1); d*d <= n; d++ {
					if n%d == 0 {
						c += 2
						if d*d == n {
							c--
						}
					}
				}
				return strconv.Itoa(c), true
			}),

		// --- strings ----------------------------------------------------
		{
			ID: "str_len", Name: "String Length", Category: "string",
			Description: "Length of the input token",
			Predict: func(input string) (string, bool) {
				tok := singleToken(input)
				if tok == "" || len(ExtractAllIntegers(input)) > 0 {
					return "", false
				}
				return strconv.Itoa(len(tok)), true
			},
		},
		{
			ID: "str_reverse", Name: "String Reverse", Category: "string",
			Description: "The input token reversed",
			Predict: func(input string) (string, bool) {
				tok := singleToken(input)
				if tok == "" || len(ExtractAllIntegers(input)) > 0 {
					return "", false
				}
				r := []rune(tok)
				for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
					r[i], r[j] = r[j], r[i]
				}
				return string(r), true
			},
		},
		{
			ID: "str_palindrome", Name: "Palindrome Check", Category: "boolean",
			Description: "Whether the input token is a palindrome",
			Predict: func(input string) (string, bool) {
				tok := singleToken(input)
				if tok == "" || len(ExtractAllIntegers(input)) > 0 {
					return "", false
				}
				for i, j := 0, len(tok)-1; i < j; i, j = i+1, j-1 {
					if tok[i] != tok[j] {
						return boolToken(false), true
					}
				}
				return boolToken(true), true
			},
		},
	}
}

// =============================================================================
// Constructors and numeric helpers
// =============================================================================

// arrayOp wraps a predictor over the extracted operand list.
func arrayOp(id, name, desc, category string, fn func([]int64) (string, bool)) Candidate {
	return Candidate{
		ID: id, Name: name, Description: desc, Category: category,
		Predict: func(input string) (string, bool) {
			ns := ExtractOperands(input)
			if len(ns) == 0 {
				return "", false
			}
			return fn(ns)
		},
	}
}

// scalarOp wraps a predictor that applies only to single-value inputs.
func scalarOp(id, name, desc, category string, fn func(int64) (string, bool)) Candidate {
	return Candidate{
		ID: id, Name: name, Description: desc, Category: category,
		Predict: func(input string) (string, bool) {
			ns := ExtractOperands(input)
			if len(ns) != 1 {
				return "", false
			}
			return fn(ns[0])
		},
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func sumOf(ns []int64) int64 {
	var s int64
	for _, n := range ns {
		s += n
	}
	return s
}

func maxOf(ns []int64) int64 {
	m := ns[0]
	for _, n := range ns[1:] {
		if n > m {
			m = n
		}
	}
	return m
}

func minOf(ns []int64) int64 {
	m := ns[0]
	for _, n := range ns[1:] {
		if n < m {
			m = n
		}
	}
	return m
}

func countIf(ns []int64, pred func(int64) bool) int {
	c := 0
	for _, n := range ns {
		if pred(n) {
			c++
		}
	}
	return c
}

func sortedCopy(ns []int64) []int64 {
	s := make([]int64, len(ns))
	copy(s, ns)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func isPrime(n int64) bool {
	if n < 2 {
		return false
	}
	for d := int64(2); d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// boolToken is the canonical form for boolean predictions; the engine
// compares it against YES/NO, true/false and 1/0 output styles.
func boolToken(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// normalizeBool maps an output token to "true"/"false" when it belongs
// to a recognized boolean vocabulary, or "" otherwise.
func normalizeBool(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return "true"
	case "false", "no", "0":
		return "false"
	}
	return ""
}
