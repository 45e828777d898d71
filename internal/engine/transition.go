package engine

import (
	"github.com/stratalink/engagement-engine/internal/model"
)

// TransitionEffects describes the side effects a conversation status change
// carries besides the status write itself.
type TransitionEffects struct {
	// StampClosedAt is true when closed_at must be set to the transition
	// time. Only the first entry into the terminal set stamps it; moves
	// between terminal states leave the original timestamp alone.
	StampClosedAt bool
	// ActiveDelta is the adjustment to the company's active_conversations
	// counter: -1 leaving active, +1 entering active, 0 otherwise.
	ActiveDelta int
}

// ComputeTransition evaluates a status change on a conversation. Any status
// may move to any other status; the effects capture what must accompany the
// write. closedAtSet tells whether the conversation already carries a
// closed_at stamp.
func ComputeTransition(oldStatus, newStatus string, closedAtSet bool) TransitionEffects {
	var effects TransitionEffects

	if model.IsTerminalStatus(newStatus) && !model.IsTerminalStatus(oldStatus) && !closedAtSet {
		effects.StampClosedAt = true
	}

	wasActive := oldStatus == model.ConversationStatusActive
	isActive := newStatus == model.ConversationStatusActive
	switch {
	case wasActive && !isActive:
		effects.ActiveDelta = -1
	case !wasActive && isActive:
		effects.ActiveDelta = +1
	}

	return effects
}
