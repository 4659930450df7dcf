// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import "errors"

var (
	// ErrRetriesExhausted wraps the last failure once a kind's retry
	// budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrKindMismatch is returned when the actual failure kind differs
	// from the declared kind and the actual kind forbids retries.
	ErrKindMismatch = errors.New("failure kind differs from declared kind")

	// ErrNilOperation is returned when Do is called without an operation.
	ErrNilOperation = errors.New("operation must not be nil")
)
