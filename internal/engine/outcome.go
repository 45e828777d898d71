// Package engine implements the consistency core: touchpoint outcome
// inference, conversation lifecycle transitions, aggregate counter deltas,
// and the ordered mutation pipelines that tie them together inside one
// transaction.
package engine

import (
	"time"

	"github.com/stratalink/engagement-engine/internal/model"
)

// inferredOutcomes maps each engagement timestamp to its outcome label, in
// descending priority order.
var inferredOutcomes = []struct {
	outcome string
	at      func(*model.Touchpoint) *time.Time
}{
	{model.OutcomeReplied, func(t *model.Touchpoint) *time.Time { return t.RepliedAt }},
	{model.OutcomeClicked, func(t *model.Touchpoint) *time.Time { return t.ClickedAt }},
	{model.OutcomeOpened, func(t *model.Touchpoint) *time.Time { return t.OpenedAt }},
	{model.OutcomeBounced, func(t *model.Touchpoint) *time.Time { return t.BouncedAt }},
	{model.OutcomeDelivered, func(t *model.Touchpoint) *time.Time { return t.DeliveredAt }},
	{model.OutcomeSent, func(t *model.Touchpoint) *time.Time { return t.SentAt }},
}

// isInferableOutcome reports whether outcome is one of the labels inference
// itself produces. Anything else was asserted by the caller.
func isInferableOutcome(outcome string) bool {
	for _, candidate := range inferredOutcomes {
		if candidate.outcome == outcome {
			return true
		}
	}
	return false
}

// InferredOutcome derives a touchpoint's outcome from its engagement
// timestamps: the highest-priority populated timestamp wins, with
// replied > clicked > opened > bounced > delivered > sent. A caller-supplied
// outcome outside the inferable set is preserved untouched. An outcome that
// inference itself produced earlier is re-derived, so a later update adding a
// higher-priority timestamp advances it. With no timestamps populated the
// current outcome is returned as is.
func InferredOutcome(t *model.Touchpoint) string {
	if t.Outcome != "" && !isInferableOutcome(t.Outcome) {
		return t.Outcome
	}
	for _, candidate := range inferredOutcomes {
		if candidate.at(t) != nil {
			return candidate.outcome
		}
	}
	return t.Outcome
}
