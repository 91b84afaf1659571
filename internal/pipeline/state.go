package pipeline

import (
	"sync"
	"sync/atomic"
)

// Phase names the step a cycle is currently in. Purely observational:
// transitions happen only on the cycle's own goroutine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseAcquiring
	PhaseCapturing
	PhaseDetecting
	PhaseFiltering
	PhaseBlurring
	PhaseMapping
	PhasePresenting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseCapturing:
		return "capturing"
	case PhaseDetecting:
		return "detecting"
	case PhaseFiltering:
		return "filtering"
	case PhaseBlurring:
		return "blurring"
	case PhaseMapping:
		return "mapping"
	case PhasePresenting:
		return "presenting"
	default:
		return "unknown"
	}
}

// State is the orchestrator's single piece of mutable shared state.
// busy is the only field touched from more than one goroutine and is
// the single-flight gate: a tick that fails the CAS is dropped, which
// is what prevents frame buildup against a slow detector.
type State struct {
	busy atomic.Bool

	mu                  sync.Mutex
	phase               Phase
	lastMotionSignature string
}

// BeginCycle attempts to claim the single flight slot.
func (s *State) BeginCycle() bool {
	return s.busy.CompareAndSwap(false, true)
}

// EndCycle returns to idle. Runs in the cycle's cleanup block on every
// outcome.
func (s *State) EndCycle() {
	s.setPhase(PhaseIdle)
	s.busy.Store(false)
}

// Busy reports whether a cycle is in flight.
func (s *State) Busy() bool { return s.busy.Load() }

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// CurrentPhase is for diagnostics and tests.
func (s *State) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) motionSignature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMotionSignature
}

func (s *State) setMotionSignature(sig string) {
	s.mu.Lock()
	s.lastMotionSignature = sig
	s.mu.Unlock()
}
