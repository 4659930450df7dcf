// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aayush-Sood101/BlackBox/pkg/logging"
	"github.com/Aayush-Sood101/BlackBox/services/inference/adaptive"
	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
	"github.com/Aayush-Sood101/BlackBox/services/inference/hypothesis"
	"github.com/Aayush-Sood101/BlackBox/services/inference/patterns"
	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
	"github.com/Aayush-Sood101/BlackBox/services/inference/reasoning"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
	"github.com/Aayush-Sood101/BlackBox/services/inference/strategy"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
)

// disabledClient satisfies llm.Client without ever succeeding, so the
// pipeline degrades to its local fallback report.
type disabledClient struct{}

func (disabledClient) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "", errors.New("reasoning disabled by flag")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	executable, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(executable)
	if err != nil {
		return fmt.Errorf("target executable: %w", err)
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return fmt.Errorf("target %s is not an executable file", executable)
	}

	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Service: "blackbox"})
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := sandbox.NewLocalRunner(os.TempDir(), log)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	limits := sandbox.DefaultLimits()
	limits.Timeout = time.Duration(timeoutMs) * time.Millisecond

	var client llm.Client
	if noReasoning {
		client = disabledClient{}
	} else {
		client, err = llm.NewOpenAIClient(reasoningModel, log)
		if err != nil {
			return fmt.Errorf("reasoning client (use --no-reasoning to skip): %w", err)
		}
	}

	p, err := pipeline.New(pipeline.Options{
		Runner:      runner,
		Limits:      limits,
		Parallelism: parallelism,
		Generator:   strategy.NewGenerator(log),
		Engine:      hypothesis.NewEngine(log),
		Detector:    patterns.NewDetector(log),
		Adaptive:    adaptive.NewOrchestrator(log),
		Reasoner:    reasoning.NewReasoner(client, recovery.NewExecutor(log), log),
		Logger:      log,
	})
	if err != nil {
		return err
	}

	run := p.NewRun()
	if !jsonOutput {
		events, detach := run.Subscribe()
		defer detach()
		go func() {
			for ev := range events {
				fmt.Fprintf(os.Stderr, "[%3d%%] %-10s %s\n", ev.Progress, ev.Stage, ev.Message)
			}
		}()
	}

	p.Run(ctx, run, pipeline.Request{
		ExecutablePath:  executable,
		FormatText:      formatText,
		ConstraintsText: constraintsText,
		ExtraCases:      extraCases,
	})

	result, err := run.Result()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printReport(result)
	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}

func printReport(result *domain.AnalysisResult) {
	rule := strings.Repeat("=", 64)

	if !result.Success {
		fmt.Println(rule)
		fmt.Println("ANALYSIS FAILED")
		fmt.Println(rule)
		printStats(result.Stats)
		return
	}

	p := result.Problem
	fmt.Println(rule)
	fmt.Printf("%s\n", p.Title)
	if p.Fallback {
		fmt.Println("(low-confidence fallback: reasoning service unavailable)")
	}
	fmt.Println(rule)

	section("Statement", p.Statement)
	section("Input Format", p.InputFormat)
	section("Output Format", p.OutputSpec)
	section("Constraints", p.Constraints)
	section("Algorithm", p.Algorithm)
	section("Reference Solution", p.Solution)

	if len(p.Examples) > 0 {
		fmt.Println("\nExamples:")
		for i, ex := range p.Examples {
			fmt.Printf("  #%d input:  %q\n", i+1, ex.Input)
			fmt.Printf("     output: %q\n", ex.Output)
		}
	}

	if len(result.Hypotheses) > 0 {
		fmt.Println("\nHypotheses:")
		for _, h := range result.Hypotheses {
			fmt.Printf("  %-28s %.2f (%d/%d matched)\n",
				h.Name, h.Confidence, h.Matches, h.Matches+h.Mismatches)
		}
	}
	if len(result.Patterns) > 0 {
		fmt.Println("\nDetected patterns:")
		for _, pat := range result.Patterns {
			fmt.Printf("  %-16s %.2f\n", pat.Type, pat.Confidence)
		}
	}

	fmt.Printf("\nQuality score: %.2f\n", result.QualityScore)
	printStats(result.Stats)
}

func section(title, body string) {
	if body == "" {
		return
	}
	fmt.Printf("\n%s:\n  %s\n", title, strings.ReplaceAll(body, "\n", "\n  "))
}

func printStats(stats domain.ExecutionStats) {
	fmt.Printf("Executions: %d attempted, %d successful, %d failed (%d timed out) in %s\n",
		stats.Attempted, stats.Successful, stats.Failed, stats.TimedOut, stats.TotalTime)
}
