// Package registration enrolls a new identity from a captured face.
package registration

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/match"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/observability"
	"github.com/your-org/whome/internal/vision"
)

var (
	// ErrNoFaceDetected means the frame did not hold exactly one face. The
	// caller keeps the entered fields and retries with a new frame.
	ErrNoFaceDetected = errors.New("no face detected")
	ErrInvalidFields  = errors.New("name, email and phone are required")
)

// FaceDetector finds a single face.
type FaceDetector interface {
	DetectSingle(ctx context.Context, img image.Image) (*vision.Detection, error)
}

// IdentityStore persists identities.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, ident *models.Identity) error
	ListIdentities(ctx context.Context) ([]models.Identity, error)
}

// BlobStore keeps the snapshot image and hands out a retrievable URL for it.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// Publisher announces new registrations.
type Publisher interface {
	PublishRegistration(ctx context.Context, ident *models.Identity) error
}

// HandOffSource yields the frame left by an exhausted scan session.
type HandOffSource interface {
	HandOff(cameraID string) (image.Image, error)
}

type Fields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (f Fields) normalized() Fields {
	return Fields{
		Name:  strings.TrimSpace(f.Name),
		Email: strings.TrimSpace(f.Email),
		Phone: strings.TrimSpace(f.Phone),
	}
}

func (f Fields) validate() error {
	if f.Name == "" || f.Email == "" || f.Phone == "" {
		return ErrInvalidFields
	}
	return nil
}

// Captured is a face ready to be registered.
type Captured struct {
	Descriptor descriptor.Descriptor
	Box        image.Rectangle
	// Snapshot is the padded 200x200 JPEG crop shown in the admin UI.
	Snapshot []byte
	// Frame is the full-frame JPEG.
	Frame []byte
}

type Result struct {
	Identity *models.Identity
	// SnapshotErr is set when the identity was stored without its snapshot.
	SnapshotErr error
	// SnapshotURL is a time-limited direct link to the stored snapshot.
	SnapshotURL string
	// PossibleDuplicate is the existing identity the new face matches, when
	// duplicate warnings are enabled.
	PossibleDuplicate *models.Identity
	DuplicateScore    float64
}

type Service struct {
	detector       FaceDetector
	store          IdentityStore
	blobs          BlobStore
	publisher      Publisher
	warnDuplicates bool
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithDuplicateWarnings reports a new face that already matches an identity.
// Registration still succeeds.
func WithDuplicateWarnings(enabled bool) Option {
	return func(s *Service) { s.warnDuplicates = enabled }
}

func NewService(detector FaceDetector, store IdentityStore, blobs BlobStore, opts ...Option) *Service {
	s := &Service{detector: detector, store: store, blobs: blobs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture detects the single face in img and prepares it for Register.
func (s *Service) Capture(ctx context.Context, img image.Image) (*Captured, error) {
	det, err := s.detector.DetectSingle(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect face: %w", err)
	}
	if det == nil {
		observability.Registrations.WithLabelValues("no_face").Inc()
		return nil, ErrNoFaceDetected
	}

	desc, err := det.Descriptor(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract descriptor: %w", err)
	}
	if len(desc) != descriptor.Length {
		return nil, fmt.Errorf("extract descriptor: got %d components, want %d", len(desc), descriptor.Length)
	}

	snapshot, err := vision.EncodeJPEG(vision.Snapshot(img, det.Box), vision.SnapshotQuality)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	frame, err := vision.EncodeJPEG(img, vision.FrameQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return &Captured{
		Descriptor: desc,
		Box:        det.Box,
		Snapshot:   snapshot,
		Frame:      frame,
	}, nil
}

// SnapshotKey is the object key of an identity's registration snapshot.
func SnapshotKey(id uuid.UUID) string {
	return fmt.Sprintf("identities/%s/snapshot.jpg", id)
}

// Register stores a new identity for a captured face. A failed snapshot
// upload does not prevent registration; it is reported in the result.
func (s *Service) Register(ctx context.Context, fields Fields, captured *Captured) (*Result, error) {
	fields = fields.normalized()
	if err := fields.validate(); err != nil {
		return nil, err
	}
	if captured == nil || len(captured.Descriptor) == 0 {
		return nil, ErrNoFaceDetected
	}

	res := &Result{}
	if s.warnDuplicates {
		res.PossibleDuplicate, res.DuplicateScore = s.findDuplicate(ctx, captured.Descriptor)
	}

	ident := &models.Identity{
		ID:         uuid.New(),
		Name:       fields.Name,
		Email:      fields.Email,
		Phone:      fields.Phone,
		Descriptor: descriptor.Encode(captured.Descriptor),
	}

	key := SnapshotKey(ident.ID)
	if err := s.blobs.PutObject(ctx, key, captured.Snapshot, "image/jpeg"); err != nil {
		slog.Warn("upload registration snapshot", "identity_id", ident.ID, "error", err)
		res.SnapshotErr = err
	} else {
		ident.SnapshotKey = key
		if res.SnapshotURL, err = s.blobs.URL(ctx, key); err != nil {
			slog.Warn("sign registration snapshot url", "identity_id", ident.ID, "error", err)
		}
	}

	if err := s.store.CreateIdentity(ctx, ident); err != nil {
		observability.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create identity: %w", err)
	}
	res.Identity = ident
	observability.Registrations.WithLabelValues("created").Inc()
	slog.Info("identity registered", "identity_id", ident.ID, "snapshot", ident.SnapshotKey != "")

	if s.publisher != nil {
		if err := s.publisher.PublishRegistration(ctx, ident); err != nil {
			slog.Warn("publish registration", "identity_id", ident.ID, "error", err)
		}
	}
	return res, nil
}

// RegisterImage captures and registers in one step.
func (s *Service) RegisterImage(ctx context.Context, fields Fields, img image.Image) (*Result, error) {
	if err := fields.normalized().validate(); err != nil {
		return nil, err
	}
	captured, err := s.Capture(ctx, img)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, fields, captured)
}

// RegisterFromHandOff registers the face in the frame an exhausted scan
// session left behind on cameraID.
func (s *Service) RegisterFromHandOff(ctx context.Context, source HandOffSource, cameraID string, fields Fields) (*Result, error) {
	frame, err := source.HandOff(cameraID)
	if err != nil {
		return nil, err
	}
	return s.RegisterImage(ctx, fields, frame)
}

func (s *Service) findDuplicate(ctx context.Context, d descriptor.Descriptor) (*models.Identity, float64) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		slog.Warn("duplicate check skipped", "error", err)
		return nil, 0
	}
	candidates := make([]duplicateCandidate, 0, len(identities))
	for i := range identities {
		if identities[i].Descriptor == "" {
			continue
		}
		candidates = append(candidates, duplicateCandidate{
			identity: &identities[i],
			desc:     descriptor.Decode(identities[i].Descriptor),
		})
	}
	best, score, ok := match.BestMatch(d, candidates)
	if !ok {
		return nil, 0
	}
	slog.Warn("registering a face that matches an existing identity",
		"existing_identity_id", best.identity.ID,
		"score", score,
	)
	return best.identity, score
}

type duplicateCandidate struct {
	identity *models.Identity
	desc     descriptor.Descriptor
}

func (c duplicateCandidate) CandidateDescriptor() descriptor.Descriptor { return c.desc }
