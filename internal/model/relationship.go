package model

import (
	"time"
)

// Relationship types
const (
	RelationshipColleagues = "colleagues"
	RelationshipReportsTo  = "reports_to"
	RelationshipKnows      = "knows"
	RelationshipReferral   = "referral"
)

// Relationship is an undirected edge between two contacts. The pair is stored
// normalized (contact_a_id < contact_b_id) so the composite unique index on
// the pair enforces undirected uniqueness regardless of insert orientation.
type Relationship struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	ContactAID string    `json:"contact_a_id" gorm:"type:text;uniqueIndex:idx_relationships_pair;index" validate:"required"`
	ContactA   *Contact  `json:"-" gorm:"foreignKey:ContactAID;constraint:OnDelete:CASCADE"`
	ContactBID string    `json:"contact_b_id" gorm:"type:text;uniqueIndex:idx_relationships_pair;index" validate:"required"`
	ContactB   *Contact  `json:"-" gorm:"foreignKey:ContactBID;constraint:OnDelete:CASCADE"`
	Type       string    `json:"type,omitempty" gorm:"type:text;default:knows"`
	Strength   string    `json:"strength,omitempty" gorm:"type:text"` // e.g. weak, medium, strong
	Confidence float64   `json:"confidence,omitempty" gorm:"not null;default:0" validate:"gte=0,lte=1"`
	Verified   bool      `json:"verified" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Relationship model.
func (Relationship) TableName() string {
	return "relationships"
}

// Normalize orders the endpoint pair lexicographically so both orientations
// of the same edge map to the same stored row.
func (r *Relationship) Normalize() {
	if r.ContactBID < r.ContactAID {
		r.ContactAID, r.ContactBID = r.ContactBID, r.ContactAID
	}
}

// Other returns the endpoint opposite to contactID, or an empty string when
// contactID is not an endpoint of this edge.
func (r Relationship) Other(contactID string) string {
	switch contactID {
	case r.ContactAID:
		return r.ContactBID
	case r.ContactBID:
		return r.ContactAID
	}
	return ""
}

// ContactEdge is the normalized read view of a relationship from one
// contact's perspective.
type ContactEdge struct {
	EdgeID     string  `json:"edge_id"`
	OtherID    string  `json:"other_contact_id"`
	Type       string  `json:"type"`
	Strength   string  `json:"strength"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
}
