// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// writeScript drops an executable shell script into dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testLimits() Limits {
	l := DefaultLimits()
	l.Timeout = 1 * time.Second
	l.Grace = 300 * time.Millisecond
	// Scripts run under /bin/sh; an address-space cap low enough to
	// matter for real targets breaks the shell itself, so lift it here.
	l.MemoryBytes = 0
	l.MaxProcesses = 0
	return l
}

func TestExecuteCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "echoer", `read line; echo "got: $line"`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	res, err := r.Execute(context.Background(), exe, "41 1\n", testLimits())
	require.NoError(t, err)
	assert.True(t, res.Usable())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "got: 41 1\n", res.Stdout)
	assert.False(t, res.TimedOut)
	assert.Empty(t, res.FailureReason)
}

func TestExecuteNonzeroExitIsProcessError(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "failer", `echo oops >&2; exit 3`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	res, err := r.Execute(context.Background(), exe, "", testLimits())
	require.NoError(t, err)
	assert.False(t, res.Usable(), "nonzero exit must never become an observation")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, domain.FailProcess, res.FailureReason)
	assert.Contains(t, res.Stderr, "oops")
}

func TestExecuteTimeoutContract(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "spinner", `while true; do :; done`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	limits := testLimits()
	limits.Timeout = 1 * time.Second
	limits.Grace = 300 * time.Millisecond

	start := time.Now()
	res, err := r.Execute(context.Background(), exe, "", limits)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Usable())
	assert.Equal(t, domain.FailTimeout, res.FailureReason)
	// Must return within timeout + grace (plus scheduling slack).
	assert.Less(t, elapsed, limits.Timeout+limits.Grace+500*time.Millisecond)
}

func TestExecuteDestroysWorkspace(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "toucher", `echo leftover > artifact.txt`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), exe, "", testLimits())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), workspacePrefix,
			"workspace must be destroyed after execution")
	}
}

func TestExecuteWorkspaceDestroyedOnTimeout(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "spinner", `while true; do :; done`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	limits := testLimits()
	limits.Timeout = 200 * time.Millisecond
	_, err = r.Execute(context.Background(), exe, "", limits)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), workspacePrefix)
	}
}

func TestExecuteCancellation(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "sleeper", `sleep 30`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	limits := testLimits()
	limits.Timeout = 10 * time.Second
	start := time.Now()
	_, err = r.Execute(ctx, exe, "", limits)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second,
		"cancellation must terminate the target promptly")

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), workspacePrefix,
			"workspace must be reclaimed on cancellation")
	}
}

func TestExecuteMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), filepath.Join(dir, "nope"), "", testLimits())
	assert.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestExecuteOutputTruncation(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "flooder", `i=0; while [ $i -lt 1000 ]; do echo "0123456789012345678901234567890123456789"; i=$((i+1)); done`)

	r, err := NewLocalRunner(dir, nil)
	require.NoError(t, err)

	limits := testLimits()
	limits.MaxOutputBytes = 1024
	res, err := r.Execute(context.Background(), exe, "", limits)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Stdout), 1024)
}

func TestSweeperReclaimsOnlyOldWorkspaces(t *testing.T) {
	root := t.TempDir()

	old := filepath.Join(root, workspacePrefix+"old")
	fresh := filepath.Join(root, workspacePrefix+"fresh")
	unrelated := filepath.Join(root, "keep-me")
	for _, d := range []string{old, fresh, unrelated} {
		require.NoError(t, os.Mkdir(d, 0o700))
	}
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	s := NewSweeper(root, SweeperConfig{Interval: time.Minute, MaxAge: time.Hour}, nil)
	removed := s.SweepOnce()

	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, unrelated)
}

func TestSweeperStartStop(t *testing.T) {
	root := t.TempDir()
	s := NewSweeper(root, SweeperConfig{Interval: 10 * time.Millisecond, MaxAge: time.Nanosecond}, nil)

	stale := filepath.Join(root, workspacePrefix+"stale")
	require.NoError(t, os.Mkdir(stale, 0o700))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(stale, old, old))

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop() // idempotent
}

func TestMockRunnerRecordsInputs(t *testing.T) {
	m := &MockRunner{Program: OkProgram(func(in string) string { return "42" })}
	res, err := m.Execute(context.Background(), "whatever", "1 2 3", Limits{})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Stdout)
	assert.True(t, res.Usable())
	assert.Equal(t, []string{"1 2 3"}, m.Inputs())
}
