// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates BlackBox configuration.
//
// Configuration is read from a YAML file, merged over built-in
// defaults, and validated before use. Secrets (the reasoning API key)
// are never read from the file; they come from the environment only.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for all BlackBox components.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP/WebSocket front end.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr" validate:"required"`

	// MaxUploadBytes caps the size of an uploaded executable.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"gt=0"`
}

// SandboxConfig configures isolated execution of target binaries.
type SandboxConfig struct {
	// TimeoutMs is the per-execution wall-clock limit.
	TimeoutMs int `yaml:"timeout_ms" validate:"gt=0,lte=60000"`

	// GraceMs is the extra time allowed for the watchdog to reap a
	// timed-out process before it is force-killed.
	GraceMs int `yaml:"grace_ms" validate:"gt=0,lte=5000"`

	// MemoryBytes is the address-space limit for the target process.
	MemoryBytes int64 `yaml:"memory_bytes" validate:"gt=0"`

	// MaxProcesses limits processes/threads the target may spawn.
	MaxProcesses int `yaml:"max_processes" validate:"gt=0,lte=256"`

	// Parallelism caps concurrent sandbox executions. Deliberately
	// independent of host core count to avoid oversubscribing the
	// isolation layer.
	Parallelism int `yaml:"parallelism" validate:"gt=0,lte=16"`

	// WorkspaceRoot is where per-run workspaces are created.
	WorkspaceRoot string `yaml:"workspace_root" validate:"required"`

	// SweepInterval is how often orphaned workspaces are reclaimed.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`

	// WorkspaceMaxAge is the age past which a workspace counts as orphaned.
	WorkspaceMaxAge time.Duration `yaml:"workspace_max_age" validate:"gt=0"`
}

// PipelineConfig configures the analysis pipeline.
type PipelineConfig struct {
	// MaxTestCases is the target batch size after dedup and trim.
	MaxTestCases int `yaml:"max_test_cases" validate:"gt=0,lte=200"`

	// MaxAdaptiveTests caps the re-test batch emitted when hypotheses
	// are ambiguous.
	MaxAdaptiveTests int `yaml:"max_adaptive_tests" validate:"gt=0,lte=50"`

	// RunTTL is how long finished runs stay queryable in the registry.
	RunTTL time.Duration `yaml:"run_ttl" validate:"gt=0"`

	// RegistrySweepInterval is how often stale registry entries are removed.
	RegistrySweepInterval time.Duration `yaml:"registry_sweep_interval" validate:"gt=0"`
}

// ReasoningConfig configures the external reasoning service client.
type ReasoningConfig struct {
	// Model is the model identifier passed to the provider.
	Model string `yaml:"model" validate:"required"`

	// MinRequestSpacing is the minimum interval between requests,
	// enforced by the serialized request queue.
	MinRequestSpacing time.Duration `yaml:"min_request_spacing" validate:"gte=0"`

	// RequestTimeout bounds a single reasoning call.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables file logging when non-empty.
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
//
// The defaults are safe to run with no config file at all.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8090",
			MaxUploadBytes: 32 << 20,
		},
		Sandbox: SandboxConfig{
			TimeoutMs:       2000,
			GraceMs:         500,
			MemoryBytes:     256 << 20,
			MaxProcesses:    16,
			Parallelism:     4,
			WorkspaceRoot:   os.TempDir(),
			SweepInterval:   5 * time.Minute,
			WorkspaceMaxAge: 30 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxTestCases:          25,
			MaxAdaptiveTests:      10,
			RunTTL:                30 * time.Minute,
			RegistrySweepInterval: time.Minute,
		},
		Reasoning: ReasoningConfig{
			Model:             "gpt-4o-mini",
			MinRequestSpacing: 1500 * time.Millisecond,
			RequestTimeout:    90 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path, merges it over defaults, and
// validates the result.
//
// # Inputs
//
//   - path: Config file path. Empty string returns validated defaults.
//
// # Outputs
//
//   - Config: The merged, validated configuration.
//   - error: Non-nil on read, parse, or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks all field constraints.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if time.Duration(c.Sandbox.TimeoutMs)*time.Millisecond >= c.Reasoning.RequestTimeout {
		return fmt.Errorf("invalid config: sandbox timeout must be shorter than reasoning request timeout")
	}
	return nil
}
