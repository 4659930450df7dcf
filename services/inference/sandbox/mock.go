// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/Aayush-Sood101/BlackBox/services/inference/domain"
)

// ProgramFunc models the target executable for the mock runner:
// input text in, execution result out.
type ProgramFunc func(input string) *domain.ExecutionResult

// MockRunner is an in-memory IsolatedRunner for pipeline tests.
//
// The behavior of the "executable" is a ProgramFunc; infrastructure
// faults and artificial latency can be injected per instance.
type MockRunner struct {
	mu sync.Mutex

	// Program produces the result for each input. Nil echoes the
	// input back with exit code 0.
	Program ProgramFunc

	// Err, when non-nil, is returned from every Execute call,
	// simulating an isolation-layer fault.
	Err error

	// Latency delays each execution, for timeout and cancellation tests.
	Latency time.Duration

	inputs []string
}

// OkProgram builds a ProgramFunc that maps inputs to outputs via fn.
func OkProgram(fn func(input string) string) ProgramFunc {
	return func(input string) *domain.ExecutionResult {
		return &domain.ExecutionResult{Stdout: fn(input), ExitCode: 0, Elapsed: time.Millisecond}
	}
}

// Execute implements IsolatedRunner.
func (m *MockRunner) Execute(ctx context.Context, _ string, input string, _ Limits) (*domain.ExecutionResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	err := m.Err
	prog := m.Program
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if prog == nil {
		return &domain.ExecutionResult{Stdout: input, ExitCode: 0, Elapsed: time.Millisecond}, nil
	}
	return prog(input), nil
}

// Inputs returns a copy of every input executed so far.
func (m *MockRunner) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.inputs))
	copy(out, m.inputs)
	return out
}

var _ IsolatedRunner = (*MockRunner)(nil)
