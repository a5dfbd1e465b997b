// ABOUTME: Engine lifecycle and recovery state enums
// ABOUTME: Stored as atomics so any goroutine can read them
package engine

import "fmt"

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RecoveryState tracks fault handling while running.
type RecoveryState int32

const (
	RecoveryHealthy RecoveryState = iota
	RecoveryRecovering
	RecoveryFailed
)

func (r RecoveryState) String() string {
	switch r {
	case RecoveryHealthy:
		return "healthy"
	case RecoveryRecovering:
		return "recovering"
	case RecoveryFailed:
		return "failed"
	default:
		return fmt.Sprintf("recovery(%d)", int32(r))
	}
}
