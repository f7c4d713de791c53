package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanEvent is a persisted state change of a scan session (a visit log).
type ScanEvent struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Camera     string     `json:"camera" db:"camera"`
	Surface    string     `json:"surface" db:"surface"`
	State      string     `json:"state" db:"state"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty" db:"identity_id"`
	Score      float64    `json:"score" db:"score"`
	Attempts   int        `json:"attempts" db:"attempts"`
	OccurredAt time.Time  `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
