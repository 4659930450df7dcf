// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// minimalEnv is the only environment visible to the target process.
var minimalEnv = []string{"PATH=/usr/bin:/bin", "HOME=/tmp"}

// LocalRunner is the production IsolatedRunner backed by local
// processes under POSIX resource limits.
//
// # Description
//
// Each Execute call creates an ephemeral workspace under the
// configured root, copies the target binary into it, and runs it with
// a stripped environment inside its own process group. Address-space,
// process-count and core-dump limits are applied with prlimit after
// start. A watchdog force-kills the whole group at timeout + grace,
// guarding against lost child-exit signals.
//
// Network isolation is delegated to the deployment (the service runs
// inside a container without network for untrusted workloads); the
// runner itself strips PATH down so the usual network helpers are
// unreachable.
//
// # Thread Safety
//
// Safe for concurrent use. Executions share nothing but the root
// directory.
type LocalRunner struct {
	root   string
	logger *slog.Logger
}

// NewLocalRunner creates a runner rooted at the given directory.
//
// The root must exist and be writable; workspaces are created under
// it and removed when each execution finishes.
func NewLocalRunner(root string, logger *slog.Logger) (*LocalRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrWorkspace, root)
	}
	return &LocalRunner{root: root, logger: logger}, nil
}

// Execute implements IsolatedRunner.
//
// # Inputs
//
//   - ctx: Cancellation. Must not be nil. Cancellation kills the
//     process group and still destroys the workspace.
//   - executablePath: Target binary. Must exist and be executable.
//   - input: Text fed to the target's stdin.
//   - limits: Resource bounds for this execution.
//
// # Outputs
//
//   - *domain.ExecutionResult: Categorized outcome. Non-nil whenever
//     the isolation layer itself worked, even if the target failed.
//   - error: Infrastructure faults only (workspace setup, start
//     failure). Wraps ErrWorkspace or ErrExecutableNotFound.
func (r *LocalRunner) Execute(ctx context.Context, executablePath, input string, limits Limits) (*domain.ExecutionResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if limits.Timeout <= 0 {
		limits = DefaultLimits()
	}
	if limits.MaxOutputBytes <= 0 {
		limits.MaxOutputBytes = 1 << 20
	}

	info, err := os.Stat(executablePath)
	if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, executablePath)
	}

	ws, err := r.createWorkspace()
	if err != nil {
		return nil, err
	}
	// Unconditional release: success, timeout, crash, or cancellation
	// all pass through here.
	defer ws.Destroy(r.logger)

	target, err := ws.stageExecutable(executablePath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(ws.Dir, "input.txt"), []byte(input), 0o600); err != nil {
		return nil, fmt.Errorf("%w: write input: %v", ErrWorkspace, err)
	}

	return r.run(ctx, ws, target, input, limits)
}

// run starts the staged binary and supervises it.
func (r *LocalRunner) run(ctx context.Context, ws *workspace, target, input string, limits Limits) (*domain.ExecutionResult, error) {
	cmd := exec.Command(target)
	cmd.Dir = ws.Dir
	cmd.Env = minimalEnv
	cmd.Stdin = strings.NewReader(input)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	outLimited := &limitedWriter{w: &stdout, limit: limits.MaxOutputBytes}
	errLimited := &limitedWriter{w: &stderr, limit: limits.MaxOutputBytes}
	cmd.Stdout = outLimited
	cmd.Stderr = errLimited

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start target: %v", ErrWorkspace, err)
	}
	pid := cmd.Process.Pid
	applyRlimits(pid, limits, r.logger)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(limits.Timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	canceled := false

	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		killGroup(pid)
		waitErr = r.awaitKill(done, pid, limits.Grace)
	case <-ctx.Done():
		canceled = true
		killGroup(pid)
		waitErr = r.awaitKill(done, pid, limits.Grace)
	}
	elapsed := time.Since(start)

	if canceled {
		// Workspace is reclaimed by the deferred Destroy before the
		// caller observes the cancellation.
		return nil, ctx.Err()
	}

	res := &domain.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
		TimedOut: timedOut,
	}

	switch {
	case timedOut:
		res.ExitCode = -1
		res.FailureReason = domain.FailTimeout
		r.logger.Warn("sandbox execution timed out",
			slog.Duration("timeout", limits.Timeout),
			slog.Duration("elapsed", elapsed),
		)
	case waitErr == nil:
		res.ExitCode = 0
	default:
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			res.ExitCode = -1
			res.FailureReason = domain.FailInfrastructure
			return res, fmt.Errorf("%w: wait: %v", ErrWorkspace, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if killedByResourceLimit(exitErr) {
			res.ResourceExceeded = true
			res.FailureReason = domain.FailResource
		} else {
			res.FailureReason = domain.FailProcess
		}
	}

	r.logger.Debug("sandbox execution finished",
		slog.Int("exit_code", res.ExitCode),
		slog.Bool("timed_out", res.TimedOut),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

// awaitKill waits up to grace for the process to die after a group
// kill, escalating once if the first signal was lost.
func (r *LocalRunner) awaitKill(done <-chan error, pid int, grace time.Duration) error {
	if grace <= 0 {
		grace = 500 * time.Millisecond
	}
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		killGroup(pid)
		return <-done
	}
}

// killGroup sends SIGKILL to the target's process group.
func killGroup(pid int) {
	// Negative pid addresses the whole group. The target was started
	// with Setpgid, so its group id equals its pid.
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// applyRlimits applies memory, process and core limits to a started
// process. Failures are logged, not fatal: a refused prlimit (e.g.
// under restrictive seccomp) degrades to watchdog-only enforcement.
func applyRlimits(pid int, limits Limits, logger *slog.Logger) {
	set := func(resource int, value uint64, name string) {
		rl := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, &rl, nil); err != nil {
			logger.Warn("failed to apply rlimit", "limit", name, "error", err)
		}
	}
	if limits.MemoryBytes > 0 {
		set(unix.RLIMIT_AS, uint64(limits.MemoryBytes), "address_space")
	}
	if limits.MaxProcesses > 0 {
		set(unix.RLIMIT_NPROC, uint64(limits.MaxProcesses), "nproc")
	}
	set(unix.RLIMIT_CORE, 0, "core")
}

// killedByResourceLimit reports whether the exit looks like an OOM or
// limit kill rather than an ordinary crash.
func killedByResourceLimit(exitErr *exec.ExitError) bool {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	sig := status.Signal()
	return sig == unix.SIGKILL || sig == unix.SIGXCPU || sig == unix.SIGXFSZ
}

// =============================================================================
// Workspace
// =============================================================================

// workspace is one execution's exclusive scratch directory.
type workspace struct {
	Dir string
}

func (r *LocalRunner) createWorkspace() (*workspace, error) {
	dir := filepath.Join(r.root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create workspace: %v", ErrWorkspace, err)
	}
	return &workspace{Dir: dir}, nil
}

// stageExecutable copies the target binary into the workspace so the
// running process never touches the upload location.
func (w *workspace) stageExecutable(src string) (string, error) {
	dst := filepath.Join(w.Dir, "target")
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: open executable: %v", ErrWorkspace, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o700)
	if err != nil {
		return "", fmt.Errorf("%w: stage executable: %v", ErrWorkspace, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("%w: copy executable: %v", ErrWorkspace, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: close staged executable: %v", ErrWorkspace, err)
	}
	return dst, nil
}

// Destroy removes the workspace. Failures are logged; the sweeper
// reclaims anything left behind.
func (w *workspace) Destroy(logger *slog.Logger) {
	if err := os.RemoveAll(w.Dir); err != nil {
		logger.Warn("failed to destroy workspace", "dir", w.Dir, "error", err)
	}
}

// =============================================================================
// Limited writer
// =============================================================================

// limitedWriter caps bytes written, discarding the excess.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil
	}
	remain := lw.limit - lw.written
	if len(p) > remain {
		lw.truncated = true
		if _, err := lw.w.Write(p[:remain]); err != nil {
			return 0, err
		}
		lw.written = lw.limit
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.written += n
	return n, err
}

var _ IsolatedRunner = (*LocalRunner)(nil)
