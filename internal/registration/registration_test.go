package registration

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/vision"
)

type fakeModel struct {
	faces []vision.Face
	desc  descriptor.Descriptor
}

func (m *fakeModel) Load(ctx context.Context) error { return nil }

func (m *fakeModel) Detect(ctx context.Context, img image.Image) ([]vision.Face, error) {
	return m.faces, nil
}

func (m *fakeModel) Describe(ctx context.Context, img image.Image, box image.Rectangle) (descriptor.Descriptor, error) {
	return m.desc, nil
}

func (m *fakeModel) Close() {}

func detectorFor(t *testing.T, model *fakeModel) *vision.Detector {
	t.Helper()
	loader := vision.NewLoader(model)
	require.NoError(t, loader.Ensure(context.Background()))
	return vision.NewDetector(loader)
}

func oneFace() *fakeModel {
	d := make(descriptor.Descriptor, descriptor.Length)
	d[0] = 1
	return &fakeModel{
		faces: []vision.Face{{Box: image.Rect(100, 100, 200, 220), Score: 0.9}},
		desc:  d,
	}
}

type memoryStore struct {
	mu         sync.Mutex
	identities []models.Identity
	createErr  error
}

func (s *memoryStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, *ident)
	return nil
}

func (s *memoryStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Identity(nil), s.identities...), nil
}

type memoryBlobs struct {
	objects map[string][]byte
	err     error
}

func (b *memoryBlobs) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return nil
}

func (b *memoryBlobs) URL(ctx context.Context, key string) (string, error) {
	return "http://blobs.local/" + key, nil
}

type recordingPublisher struct {
	published []*models.Identity
}

func (p *recordingPublisher) PublishRegistration(ctx context.Context, ident *models.Identity) error {
	p.published = append(p.published, ident)
	return nil
}

func frame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 120, B: 150, A: 255})
		}
	}
	return img
}

var ada = Fields{Name: " Ada ", Email: "ada@example.com", Phone: "555-0100"}

func TestCapture(t *testing.T) {
	svc := NewService(detectorFor(t, oneFace()), &memoryStore{}, &memoryBlobs{})

	captured, err := svc.Capture(context.Background(), frame())
	require.NoError(t, err)
	assert.Len(t, captured.Descriptor, descriptor.Length)

	snap, err := vision.DecodeImage(captured.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, vision.SnapshotSize, snap.Bounds().Dx())
	assert.Equal(t, vision.SnapshotSize, snap.Bounds().Dy())

	full, err := vision.DecodeImage(captured.Frame)
	require.NoError(t, err)
	assert.Equal(t, 640, full.Bounds().Dx())
}

func TestCapture_FrameTooLargeToEncode(t *testing.T) {
	svc := NewService(detectorFor(t, oneFace()), &memoryStore{}, &memoryBlobs{})

	_, err := svc.Capture(context.Background(), image.NewGray(image.Rect(0, 0, 1<<16, 240)))
	assert.ErrorContains(t, err, "encode frame")
	assert.NotErrorIs(t, err, ErrNoFaceDetected)
}

func TestCapture_NoFace(t *testing.T) {
	tests := []struct {
		name  string
		faces []vision.Face
	}{
		{"no face", nil},
		{"two faces", []vision.Face{{Box: image.Rect(0, 0, 10, 10)}, {Box: image.Rect(20, 20, 30, 30)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := oneFace()
			model.faces = tt.faces
			svc := NewService(detectorFor(t, model), &memoryStore{}, &memoryBlobs{})

			_, err := svc.Capture(context.Background(), frame())
			assert.ErrorIs(t, err, ErrNoFaceDetected)
		})
	}
}

func TestRegister(t *testing.T) {
	store := &memoryStore{}
	blobs := &memoryBlobs{}
	pub := &recordingPublisher{}
	svc := NewService(detectorFor(t, oneFace()), store, blobs, WithPublisher(pub))

	captured, err := svc.Capture(context.Background(), frame())
	require.NoError(t, err)

	res, err := svc.Register(context.Background(), ada, captured)
	require.NoError(t, err)
	require.NotNil(t, res.Identity)
	assert.NoError(t, res.SnapshotErr)

	ident := res.Identity
	assert.Equal(t, "Ada", ident.Name)
	assert.Equal(t, SnapshotKey(ident.ID), ident.SnapshotKey)
	assert.Equal(t, captured.Snapshot, blobs.objects[ident.SnapshotKey])
	assert.Equal(t, "http://blobs.local/"+ident.SnapshotKey, res.SnapshotURL)

	stored, err := descriptor.DecodeStrict(ident.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, captured.Descriptor, stored)

	require.Len(t, store.identities, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, ident.ID, pub.published[0].ID)
}

func TestRegister_SnapshotFailureStillCreatesIdentity(t *testing.T) {
	store := &memoryStore{}
	uploadErr := errors.New("bucket unavailable")
	svc := NewService(detectorFor(t, oneFace()), store, &memoryBlobs{err: uploadErr})

	captured, err := svc.Capture(context.Background(), frame())
	require.NoError(t, err)

	res, err := svc.Register(context.Background(), ada, captured)
	require.NoError(t, err)
	assert.ErrorIs(t, res.SnapshotErr, uploadErr)
	assert.Empty(t, res.Identity.SnapshotKey)
	assert.Empty(t, res.SnapshotURL)
	assert.Len(t, store.identities, 1)
}

func TestRegister_InvalidFields(t *testing.T) {
	svc := NewService(detectorFor(t, oneFace()), &memoryStore{}, &memoryBlobs{})
	captured, err := svc.Capture(context.Background(), frame())
	require.NoError(t, err)

	for _, f := range []Fields{
		{Email: "a@b", Phone: "1"},
		{Name: "A", Phone: "1"},
		{Name: "A", Email: "a@b", Phone: "  "},
	} {
		_, err := svc.Register(context.Background(), f, captured)
		assert.ErrorIs(t, err, ErrInvalidFields)
	}
}

func TestRegisterImage_NoFacePersistsNothing(t *testing.T) {
	model := oneFace()
	model.faces = nil
	store := &memoryStore{}
	blobs := &memoryBlobs{}
	svc := NewService(detectorFor(t, model), store, blobs)

	_, err := svc.RegisterImage(context.Background(), ada, frame())
	assert.ErrorIs(t, err, ErrNoFaceDetected)
	assert.Empty(t, store.identities)
	assert.Empty(t, blobs.objects)

	// Same fields, next frame has a face.
	model.faces = oneFace().faces
	res, err := svc.RegisterImage(context.Background(), ada, frame())
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.Identity.Name)
}

func TestRegister_DuplicatesAllowed(t *testing.T) {
	store := &memoryStore{}

	t.Run("no check by default", func(t *testing.T) {
		svc := NewService(detectorFor(t, oneFace()), store, &memoryBlobs{})
		for i := 0; i < 2; i++ {
			res, err := svc.RegisterImage(context.Background(), ada, frame())
			require.NoError(t, err)
			assert.Nil(t, res.PossibleDuplicate)
		}
		assert.Len(t, store.identities, 2)
	})

	t.Run("warning when enabled", func(t *testing.T) {
		svc := NewService(detectorFor(t, oneFace()), store, &memoryBlobs{}, WithDuplicateWarnings(true))
		res, err := svc.RegisterImage(context.Background(), ada, frame())
		require.NoError(t, err)
		require.NotNil(t, res.PossibleDuplicate)
		assert.Equal(t, store.identities[0].ID, res.PossibleDuplicate.ID, "first registered wins ties")
		assert.Equal(t, 1.0, res.DuplicateScore)
		assert.Len(t, store.identities, 3)
	})
}

type handOffs map[string]image.Image

func (h handOffs) HandOff(cameraID string) (image.Image, error) {
	img, ok := h[cameraID]
	if !ok {
		return nil, errors.New("no session")
	}
	return img, nil
}

func TestRegisterFromHandOff(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(detectorFor(t, oneFace()), store, &memoryBlobs{})

	res, err := svc.RegisterFromHandOff(context.Background(), handOffs{"front": frame()}, "front", ada)
	require.NoError(t, err)
	assert.NotNil(t, res.Identity)

	_, err = svc.RegisterFromHandOff(context.Background(), handOffs{}, "front", ada)
	assert.Error(t, err)
	assert.Len(t, store.identities, 1)
}

func TestCreateIdentityErrorIsReturned(t *testing.T) {
	svc := NewService(detectorFor(t, oneFace()), &memoryStore{createErr: errors.New("db down")}, &memoryBlobs{})
	_, err := svc.RegisterImage(context.Background(), ada, frame())
	assert.ErrorContains(t, err, "create identity")
}
