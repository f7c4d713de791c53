package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a registered customer. Descriptor holds the encoded face
// descriptor; an empty value means the identity never takes part in matching.
type Identity struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	Phone         string     `json:"phone" db:"phone"`
	Descriptor    string     `json:"-" db:"descriptor"`
	SnapshotKey   string     `json:"snapshot_key" db:"snapshot_key"`
	PhotoKey      string     `json:"photo_key" db:"photo_key"`
	RegisteredAt  time.Time  `json:"registered_at" db:"registered_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	LastGreetedAt *time.Time `json:"last_greeted_at,omitempty" db:"last_greeted_at"`
}

// IdentityUpdate carries the admin-editable fields. Nil fields are left unchanged.
type IdentityUpdate struct {
	Name     *string
	Email    *string
	Phone    *string
	PhotoKey *string
}

// IdentityMatch is one row of a vector search over stored descriptors.
type IdentityMatch struct {
	Identity   Identity
	Similarity float64
}
