package consensus

import (
	"fmt"

	"github.com/joescharf/quorum/internal/models"
)

// InvalidTransitionError is returned when a submission arrives outside the
// state that accepts it. In correct orchestrator usage this is a bug, not an
// operational condition.
type InvalidTransitionError struct {
	Op    string
	State models.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// DuplicateSubmissionError is returned when a participant submits twice for
// the same round and phase.
type DuplicateSubmissionError struct {
	Participant string
	Round       int
	Phase       models.Phase
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("duplicate %s submission from %s in round %d", e.Phase, e.Participant, e.Round)
}

// UnknownParticipantError is returned when a submission names a participant
// the session was not created with.
type UnknownParticipantError struct {
	Participant string
}

func (e *UnknownParticipantError) Error() string {
	return fmt.Sprintf("unknown participant: %s", e.Participant)
}
