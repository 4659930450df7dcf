// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "sync"

// Stage is one phase of an analysis run.
type Stage string

const (
	StageGenerating Stage = "generating"
	StageExecuting  Stage = "executing"
	StageValidating Stage = "validating"
	StageReasoning  Stage = "reasoning"
	StageVerifying  Stage = "verifying"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// AllStages returns every pipeline stage.
func AllStages() []Stage {
	return []Stage{
		StageGenerating, StageExecuting, StageValidating,
		StageReasoning, StageVerifying, StageComplete, StageError,
	}
}

// Terminal reports whether the stage ends the run.
func (s Stage) Terminal() bool { return s == StageComplete || s == StageError }

// stageProgress maps each stage to its nominal completion percentage.
// Runs report the maximum value seen so far, so the adaptive
// re-execution round never winds reported progress backwards.
var stageProgress = map[Stage]int{
	StageGenerating: 10,
	StageExecuting:  35,
	StageValidating: 55,
	StageReasoning:  75,
	StageVerifying:  90,
	StageComplete:   100,
	StageError:      100,
}

// StateMachine enforces valid stage transitions for an analysis run.
//
// The transition graph:
//
//	generating → executing      : deduplicated test batch exists
//	executing  → validating     : every queued test resolved
//	validating → executing      : ambiguous hypotheses, adaptive re-test
//	                              (at most once per run, enforced by the
//	                              run itself, not the machine)
//	validating → reasoning      : hypotheses settled
//	reasoning  → verifying      : always, even on a fallback result
//	verifying  → complete       : quality scored
//	*          → error          : any stage can fail
//
// Terminal stages have no outgoing transitions; a run is never
// restarted, retries live inside individual operations.
//
// # Thread Safety
//
// StateMachine is safe for concurrent use.
type StateMachine struct {
	mu          sync.RWMutex
	transitions map[Stage]map[Stage]bool
}

// NewStateMachine creates the pipeline state machine with all valid
// transitions registered.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[Stage]map[Stage]bool)}
	for _, s := range AllStages() {
		sm.transitions[s] = make(map[Stage]bool)
	}

	sm.addTransition(StageGenerating, StageExecuting)
	sm.addTransition(StageExecuting, StageValidating)
	sm.addTransition(StageValidating, StageExecuting)
	sm.addTransition(StageValidating, StageReasoning)
	sm.addTransition(StageReasoning, StageVerifying)
	sm.addTransition(StageVerifying, StageComplete)

	for _, s := range AllStages() {
		if !s.Terminal() {
			sm.addTransition(s, StageError)
		}
	}
	return sm
}

func (sm *StateMachine) addTransition(from, to Stage) {
	sm.transitions[from][to] = true
}

// CanTransition reports whether from → to is a legal stage change.
func (sm *StateMachine) CanTransition(from, to Stage) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}
