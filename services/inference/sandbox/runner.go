// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sandbox runs untrusted executables under resource limits.
//
// The package exposes one capability interface, IsolatedRunner, with a
// production implementation backed by local processes under POSIX
// resource limits, and an in-memory mock for pipeline tests.
//
// Guarantees of the production runner:
//
//   - writes confined to an ephemeral per-run workspace
//   - no inherited environment, no network helpers in PATH
//   - forcible termination at timeout + grace via process-group kill
//   - workspace destroyed on every exit path, including cancellation
package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// Sentinel errors for the sandbox package.
var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrExecutableNotFound indicates the target binary does not exist
	// or is not executable.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrWorkspace indicates the isolation layer failed to prepare or
	// destroy a workspace. Classified as infrastructure failure.
	ErrWorkspace = errors.New("sandbox workspace error")
)

// workspacePrefix names sandbox workspaces so the sweeper can
// recognize orphans without touching unrelated directories.
const workspacePrefix = "bbx-ws-"

// Limits bounds one execution.
type Limits struct {
	// Timeout is the wall-clock limit enforced by the runner.
	Timeout time.Duration

	// Grace is the extra time the watchdog waits before force-killing
	// the process group after Timeout expires.
	Grace time.Duration

	// MemoryBytes caps the target's address space.
	MemoryBytes int64

	// MaxProcesses caps processes/threads the target may create.
	MaxProcesses int

	// MaxOutputBytes truncates captured stdout/stderr. Zero means the
	// default (1 MiB).
	MaxOutputBytes int
}

// DefaultLimits returns conservative limits for competitive-programming
// style binaries.
func DefaultLimits() Limits {
	return Limits{
		Timeout:        2 * time.Second,
		Grace:          500 * time.Millisecond,
		MemoryBytes:    256 << 20,
		MaxProcesses:   16,
		MaxOutputBytes: 1 << 20,
	}
}

// IsolatedRunner executes one binary against one textual input.
//
// # Description
//
// Implementations must confine all side effects to an ephemeral
// workspace and categorize failures in the returned ExecutionResult
// rather than collapsing them to a boolean. The returned error is
// reserved for infrastructure faults (the isolation layer itself
// failed); a target that crashes, times out, or exceeds limits yields
// a nil error and a categorized result.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; each execution owns
// its own process and workspace.
type IsolatedRunner interface {
	Execute(ctx context.Context, executablePath, input string, limits Limits) (*domain.ExecutionResult, error)
}
