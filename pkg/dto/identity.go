package dto

import "github.com/google/uuid"

type IdentityResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	SnapshotURL   string    `json:"snapshot_url,omitempty"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	RegisteredAt  string    `json:"registered_at"`
	UpdatedAt     string    `json:"updated_at"`
	LastGreetedAt string    `json:"last_greeted_at,omitempty"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type RegisterResponse struct {
	Identity          IdentityResponse `json:"identity"`
	// SnapshotBlobURL links straight to the stored snapshot and expires.
	SnapshotBlobURL   string           `json:"snapshot_blob_url,omitempty"`
	SnapshotError     string           `json:"snapshot_error,omitempty"`
	PossibleDuplicate *uuid.UUID       `json:"possible_duplicate,omitempty"`
	DuplicateScore    float64          `json:"duplicate_score,omitempty"`
}

// CaptureResponse reports the single face found in a still image.
type CaptureResponse struct {
	FaceDetected bool   `json:"face_detected"`
	Box          [4]int `json:"box"` // x1, y1, x2, y2
	SnapshotB64  string `json:"snapshot_b64,omitempty"`
}

// SearchRequest looks up the identities nearest to a descriptor.
type SearchRequest struct {
	Descriptor []float32 `json:"descriptor"`
	Limit      int       `json:"limit"`
}

type SearchResult struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Similarity float64   `json:"similarity"`
	Matched    bool      `json:"matched"`
}
