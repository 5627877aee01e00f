package types

import (
	"fmt"
	"time"

	"dagbft/types"
)

//-----------------------------------------------------------------------------
// LeaderTimeoutStep enum type

// LeaderTimeoutStep enumerates the states of the leader timeout task
type LeaderTimeoutStep uint8

const (
	LeaderTimeoutStepArmed = LeaderTimeoutStep(0x01) // 等待deadline
	LeaderTimeoutStepFired = LeaderTimeoutStep(0x02) // 本轮已经触发过，等待round变化
)

func (s LeaderTimeoutStep) String() string {
	switch s {
	case LeaderTimeoutStepArmed:
		return "Armed"
	case LeaderTimeoutStepFired:
		return "Fired"
	default:
		return "Unknown"
	}
}

// LeaderTimeoutState is owned by the task loop, nobody else writes it.
type LeaderTimeoutState struct {
	LeaderRound types.Round
	Deadline    time.Time
	Fired       bool
}

// Arm moves to round and restarts the deadline. Fired is always cleared,
// even when round equals the current leader round.
func (s *LeaderTimeoutState) Arm(round types.Round, now time.Time, timeout time.Duration) {
	s.LeaderRound = round
	s.Deadline = now.Add(timeout)
	s.Fired = false
}

// MarkFired returns false when the current round already fired.
func (s *LeaderTimeoutState) MarkFired() bool {
	if s.Fired {
		return false
	}
	s.Fired = true
	return true
}

func (s LeaderTimeoutState) Step() LeaderTimeoutStep {
	if s.Fired {
		return LeaderTimeoutStepFired
	}
	return LeaderTimeoutStepArmed
}

func (s LeaderTimeoutState) String() string {
	return fmt.Sprintf("LeaderTimeout{round:%d %v deadline:%v}", s.LeaderRound, s.Step(), s.Deadline)
}
