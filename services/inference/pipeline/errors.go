// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "errors"

var (
	// ErrInvalidTransition is returned when a stage change violates the
	// pipeline state machine.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrNoObservations marks a run where not a single execution
	// succeeded; synthesis is impossible without behavior to explain.
	ErrNoObservations = errors.New("insufficient successful executions")

	// ErrRunNotFound is returned by the registry for unknown or expired
	// run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunInProgress is returned when a result is requested before
	// the run reaches a terminal stage.
	ErrRunInProgress = errors.New("run still in progress")
)
