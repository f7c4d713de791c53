package dto

import "github.com/google/uuid"

// WebSocket and queue event types.
const (
	EventScanState    = "scan.state"
	EventRegistration = "registration"
)

// ScanStateEvent is a scan session state change as published on the queue
// and delivered to websocket clients.
type ScanStateEvent struct {
	Camera       string     `json:"camera"`
	Surface      string     `json:"surface"`
	State        string     `json:"state"`
	IdentityID   *uuid.UUID `json:"identity_id,omitempty"`
	IdentityName string     `json:"identity_name,omitempty"`
	Score        float64    `json:"score,omitempty"`
	Attempts     int        `json:"attempts"`
	CameraActive bool       `json:"camera_active"`
	HandOffReady bool       `json:"handoff_ready"`
	OccurredAt   string     `json:"occurred_at"`
}

// RegistrationEvent announces a newly registered identity.
type RegistrationEvent struct {
	IdentityID   uuid.UUID `json:"identity_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt string    `json:"registered_at"`
}

// WSEvent is a WebSocket message for real-time delivery.
type WSEvent struct {
	Type         string             `json:"type"` // scan.state, registration
	Camera       string             `json:"camera,omitempty"`
	Scan         *ScanStateEvent    `json:"scan,omitempty"`
	Registration *RegistrationEvent `json:"registration,omitempty"`
}

type ScanEventResponse struct {
	ID         uuid.UUID  `json:"id"`
	Camera     string     `json:"camera"`
	Surface    string     `json:"surface"`
	State      string     `json:"state"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Score      float64    `json:"score"`
	Attempts   int        `json:"attempts"`
	OccurredAt string     `json:"occurred_at"`
}

type ScanEventListResponse struct {
	Events []ScanEventResponse `json:"events"`
	Total  int                 `json:"total"`
}
