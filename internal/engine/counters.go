package engine

import (
	"time"

	"github.com/stratalink/engagement-engine/internal/model"
)

// touchpointDeltas is the set of conversation and contact aggregate
// adjustments implied by one touchpoint mutation.
type touchpointDeltas struct {
	TouchpointDelta  int
	LastTouchpointAt *time.Time
	ResponseDelta    int
	LastResponseAt   *time.Time
	EngagedAt        *time.Time
}

// createTouchpointDeltas computes the aggregate adjustments for a new
// touchpoint: one more touchpoint on the conversation and the contact, plus
// a response increment when the touchpoint is an inbound reply.
func createTouchpointDeltas(t *model.Touchpoint) touchpointDeltas {
	deltas := touchpointDeltas{
		TouchpointDelta:  1,
		LastTouchpointAt: t.SentAt,
		EngagedAt:        t.SentAt,
	}
	if t.IsResponse() {
		deltas.ResponseDelta = 1
		deltas.LastResponseAt = t.RepliedAt
	}
	return deltas
}

// updateTouchpointDeltas computes the adjustments when an existing
// touchpoint's fields change. The touchpoint still exists so counts only
// move when the mutation flips its response classification.
func updateTouchpointDeltas(before, after *model.Touchpoint) touchpointDeltas {
	var deltas touchpointDeltas
	wasResponse := before.IsResponse()
	isResponse := after.IsResponse()
	switch {
	case !wasResponse && isResponse:
		deltas.ResponseDelta = 1
		deltas.LastResponseAt = after.RepliedAt
	case wasResponse && !isResponse:
		deltas.ResponseDelta = -1
	}
	return deltas
}

// deleteTouchpointDeltas reverses the contribution of a removed touchpoint.
// The last_* timestamps are left alone; a full recount repairs them if the
// deleted touchpoint happened to be the most recent one.
func deleteTouchpointDeltas(t *model.Touchpoint) touchpointDeltas {
	deltas := touchpointDeltas{TouchpointDelta: -1}
	if t.IsResponse() {
		deltas.ResponseDelta = -1
	}
	return deltas
}
