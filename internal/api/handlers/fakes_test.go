package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errNotFound = errors.New("no such object")

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: make(map[string][]byte)}
}

func (b *memoryBlobs) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *memoryBlobs) GetObject(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errNotFound
	}
	return data, nil
}

func (b *memoryBlobs) DeleteObject(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memoryBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	return out
}

type memoryIdentities struct {
	items   map[uuid.UUID]*models.Identity
	order   []uuid.UUID
	matches []models.IdentityMatch
}

func newMemoryIdentities(idents ...*models.Identity) *memoryIdentities {
	s := &memoryIdentities{items: make(map[uuid.UUID]*models.Identity)}
	for _, ident := range idents {
		s.items[ident.ID] = ident
		s.order = append(s.order, ident.ID)
	}
	return s
}

func (s *memoryIdentities) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	var out []models.Identity
	for _, id := range s.order {
		if ident, ok := s.items[id]; ok {
			out = append(out, *ident)
		}
	}
	return out, nil
}

func (s *memoryIdentities) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	cp := *ident
	return &cp, nil
}

func (s *memoryIdentities) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	for _, id := range s.order {
		if ident, ok := s.items[id]; ok && strings.EqualFold(ident.Email, email) {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryIdentities) UpdateIdentity(ctx context.Context, id uuid.UUID, upd models.IdentityUpdate) (*models.Identity, error) {
	ident, ok := s.items[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if upd.Name != nil {
		ident.Name = *upd.Name
	}
	if upd.Email != nil {
		ident.Email = *upd.Email
	}
	if upd.Phone != nil {
		ident.Phone = *upd.Phone
	}
	if upd.PhotoKey != nil {
		ident.PhotoKey = *upd.PhotoKey
	}
	cp := *ident
	return &cp, nil
}

func (s *memoryIdentities) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.items[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memoryIdentities) SearchIdentities(ctx context.Context, d descriptor.Descriptor, limit int) ([]models.IdentityMatch, error) {
	return s.matches, nil
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type upload struct {
	field, filename string
	data            []byte
}

// multipartBody builds a multipart/form-data request body.
func multipartBody(t *testing.T, fields map[string]string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func serve(r *gin.Engine, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func serveJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	return serve(r, method, path, strings.NewReader(body), "application/json")
}

var fixedTime = time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC)
