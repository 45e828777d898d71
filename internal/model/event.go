package model

import (
	"encoding/json"
	"time"
)

// EventType identifies an entity-change notification subject.
type EventType string

// Entity-change event types (version-prefixed NATS subjects). Intake paths
// publish these; the engine is the only consumer that mutates entity rows.
const (
	V1CompanyUpsert      EventType = "v1.entities.company.upsert"
	V1CompanyDelete      EventType = "v1.entities.company.delete"
	V1ContactUpsert      EventType = "v1.entities.contact.upsert"
	V1ContactDelete      EventType = "v1.entities.contact.delete"
	V1ConversationUpsert EventType = "v1.entities.conversation.upsert"
	V1ConversationStatus EventType = "v1.entities.conversation.status"
	V1ConversationDelete EventType = "v1.entities.conversation.delete"
	V1TouchpointUpsert   EventType = "v1.entities.touchpoint.upsert"
	V1TouchpointUpdate   EventType = "v1.entities.touchpoint.update"
	V1TouchpointDelete   EventType = "v1.entities.touchpoint.delete"
	V1RelationshipUpsert EventType = "v1.entities.relationship.upsert"
	V1RelationshipDelete EventType = "v1.entities.relationship.delete"
)

// KnownEventType reports whether input names a routable event type.
func KnownEventType(input string) (EventType, bool) {
	switch EventType(input) {
	case V1CompanyUpsert, V1CompanyDelete,
		V1ContactUpsert, V1ContactDelete,
		V1ConversationUpsert, V1ConversationStatus, V1ConversationDelete,
		V1TouchpointUpsert, V1TouchpointUpdate, V1TouchpointDelete,
		V1RelationshipUpsert, V1RelationshipDelete:
		return EventType(input), true
	}
	return "", false
}

// EventEnvelope is the wire payload carried on every entity-change subject.
// Entity holds the entity document; its shape depends on the event type.
type EventEnvelope struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Entity     json.RawMessage `json:"entity"`
}

// StatusChangePayload is the entity document for conversation.status events.
type StatusChangePayload struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=active paused closed won lost nurturing"`
}

// DeletePayload is the entity document for delete events.
type DeletePayload struct {
	ID string `json:"id" validate:"required"`
}

// MessageMetadata captures JetStream delivery details for logging and
// redelivery decisions.
type MessageMetadata struct {
	StreamSequence   uint64
	ConsumerSequence uint64
	NumDelivered     uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	MessageID        string
	MessageSubject   string
}
