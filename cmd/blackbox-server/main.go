// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command blackbox-server starts the BlackBox analysis API server.
//
// BlackBox reverse-engineers competitive-programming problems from
// compiled executables: it runs the target in a sandbox against
// generated inputs, validates algorithm hypotheses against the
// observed behavior, and asks a reasoning model to synthesize a full
// problem statement.
//
// Usage:
//
//	go run ./cmd/blackbox-server
//	go run ./cmd/blackbox-server -config config.yaml
//	go run ./cmd/blackbox-server -addr :9090 -debug
//
// The reasoning backend needs OPENAI_API_KEY in the environment (or
// the container secret /run/secrets/openai_api_key).
//
// Example requests:
//
//	# Start an analysis
//	curl -X POST http://localhost:8090/api/v1/analyze \
//	  -F executable=@./solution \
//	  -F format="First line contains n, second line n integers." \
//	  -F constraints="1 <= n <= 100000"
//
//	# Poll it
//	curl http://localhost:8090/api/v1/runs/<run_id>
//	curl http://localhost:8090/api/v1/runs/<run_id>/result
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aayush-Sood101/BlackBox/pkg/config"
	"github.com/Aayush-Sood101/BlackBox/pkg/logging"
	"github.com/Aayush-Sood101/BlackBox/services/inference/adaptive"
	"github.com/Aayush-Sood101/BlackBox/services/inference/hypothesis"
	"github.com/Aayush-Sood101/BlackBox/services/inference/patterns"
	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
	"github.com/Aayush-Sood101/BlackBox/services/inference/reasoning"
	"github.com/Aayush-Sood101/BlackBox/services/inference/recovery"
	"github.com/Aayush-Sood101/BlackBox/services/inference/sandbox"
	"github.com/Aayush-Sood101/BlackBox/services/inference/strategy"
	"github.com/Aayush-Sood101/BlackBox/services/llm"
	"github.com/Aayush-Sood101/BlackBox/services/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (defaults apply when empty)")
	addr := flag.String("addr", "", "Listen address override, host:port")
	debug := flag.Bool("debug", false, "Enable debug logging and Gin debug mode")
	flag.Parse()

	if err := run(*configPath, *addr, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "blackbox-server:", err)
		os.Exit(1)
	}
}

func run(configPath, addrOverride string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if debug {
		cfg.Logging.Level = "debug"
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "blackbox-server",
	})
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- sandbox -----------------------------------------------------
	runner, err := sandbox.NewLocalRunner(cfg.Sandbox.WorkspaceRoot, log)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	limits := sandbox.Limits{
		Timeout:      time.Duration(cfg.Sandbox.TimeoutMs) * time.Millisecond,
		Grace:        time.Duration(cfg.Sandbox.GraceMs) * time.Millisecond,
		MemoryBytes:  cfg.Sandbox.MemoryBytes,
		MaxProcesses: cfg.Sandbox.MaxProcesses,
	}

	sweeper := sandbox.NewSweeper(cfg.Sandbox.WorkspaceRoot, sandbox.SweeperConfig{
		Interval: cfg.Sandbox.SweepInterval,
		MaxAge:   cfg.Sandbox.WorkspaceMaxAge,
	}, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// --- reasoning ---------------------------------------------------
	openaiClient, err := llm.NewOpenAIClient(cfg.Reasoning.Model, log)
	if err != nil {
		return fmt.Errorf("reasoning client: %w", err)
	}
	queued := llm.NewQueuedClient(openaiClient, cfg.Reasoning.MinRequestSpacing, log)
	defer queued.Close()

	// --- pipeline ----------------------------------------------------
	p, err := pipeline.New(pipeline.Options{
		Runner:           runner,
		Limits:           limits,
		Parallelism:      cfg.Sandbox.Parallelism,
		Generator:        strategy.NewGenerator(log),
		Engine:           hypothesis.NewEngine(log),
		Detector:         patterns.NewDetector(log),
		Adaptive:         adaptive.NewOrchestrator(log),
		Reasoner:         reasoning.NewReasoner(queued, recovery.NewExecutor(log), log),
		MaxTestCases:     cfg.Pipeline.MaxTestCases,
		MaxAdaptiveTests: cfg.Pipeline.MaxAdaptiveTests,
		Logger:           log,
	})
	if err != nil {
		return err
	}

	registry := pipeline.NewRegistry(cfg.Pipeline.RunTTL, log)
	registry.Start(ctx, cfg.Pipeline.RegistrySweepInterval)
	defer registry.Stop()

	// --- transport ---------------------------------------------------
	srv, err := server.New(server.Options{
		Pipeline:       p,
		Registry:       registry,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		UploadRoot:     cfg.Sandbox.WorkspaceRoot,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	log.Info("blackbox server starting",
		"addr", cfg.Server.Addr,
		"sandbox_root", cfg.Sandbox.WorkspaceRoot,
		"model", cfg.Reasoning.Model)
	return srv.Run(ctx, cfg.Server.Addr)
}
