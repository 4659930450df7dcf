// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	formatText      string
	constraintsText string
	extraCases      []string
	timeoutMs       int
	parallelism     int
	reasoningModel  string
	noReasoning     bool
	jsonOutput      bool
	verbose         bool

	rootCmd = &cobra.Command{
		Use:   "blackbox",
		Short: "Reverse-engineer competitive programming problems from compiled executables",
		Long: `BlackBox observes a compiled executable's input/output behavior inside a
sandbox, validates algorithm hypotheses against the observations, and
synthesizes the problem statement the executable most likely solves.`,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze <executable>",
		Short: "Analyze an executable and print the inferred problem",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}
)

func init() {
	analyzeCmd.Flags().StringVar(&formatText, "format", "",
		"Free-text description of the executable's input format")
	analyzeCmd.Flags().StringVar(&constraintsText, "constraints", "",
		"Free-text constraints, e.g. '1 <= n <= 100000'")
	analyzeCmd.Flags().StringArrayVar(&extraCases, "extra-case", nil,
		"Extra input to test with (repeatable)")
	analyzeCmd.Flags().IntVar(&timeoutMs, "timeout-ms", 2000,
		"Per-execution wall-clock limit in milliseconds")
	analyzeCmd.Flags().IntVar(&parallelism, "parallelism", 4,
		"Concurrent sandbox executions")
	analyzeCmd.Flags().StringVar(&reasoningModel, "model", "",
		"Reasoning model identifier (default from provider)")
	analyzeCmd.Flags().BoolVar(&noReasoning, "no-reasoning", false,
		"Skip the reasoning service; produce a local low-confidence report")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Print the full analysis result as JSON")
	analyzeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(analyzeCmd)
}
