package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/match"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/pkg/dto"
)

type IdentityStore interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	UpdateIdentity(ctx context.Context, id uuid.UUID, upd models.IdentityUpdate) (*models.Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	SearchIdentities(ctx context.Context, d descriptor.Descriptor, limit int) ([]models.IdentityMatch, error)
}

// IdentityObserver is told when an identity goes away, so running sessions
// and caches drop it.
type IdentityObserver interface {
	Forget(id uuid.UUID)
}

// ForgetFunc adapts a function to IdentityObserver.
type ForgetFunc func(id uuid.UUID)

func (f ForgetFunc) Forget(id uuid.UUID) { f(id) }

type IdentityHandler struct {
	db        IdentityStore
	blobs     storage.ObjectStore
	observers []IdentityObserver
}

func NewIdentityHandler(db IdentityStore, blobs storage.ObjectStore, observers ...IdentityObserver) *IdentityHandler {
	return &IdentityHandler{db: db, blobs: blobs, observers: observers}
}

func identityResponse(ident *models.Identity) dto.IdentityResponse {
	r := dto.IdentityResponse{
		ID:           ident.ID,
		Name:         ident.Name,
		Email:        ident.Email,
		Phone:        ident.Phone,
		RegisteredAt: formatTime(ident.RegisteredAt),
		UpdatedAt:    formatTime(ident.UpdatedAt),
	}
	if ident.SnapshotKey != "" {
		r.SnapshotURL = "/v1/identities/" + ident.ID.String() + "/snapshot"
	}
	if ident.PhotoKey != "" {
		r.PhotoURL = "/v1/identities/" + ident.ID.String() + "/photo"
	}
	if ident.LastGreetedAt != nil {
		r.LastGreetedAt = formatTime(*ident.LastGreetedAt)
	}
	return r
}

// List returns all identities, or the one matching ?email=.
func (h *IdentityHandler) List(c *gin.Context) {
	var identities []models.Identity
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		ident, err := h.db.FindIdentityByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if ident != nil {
			identities = append(identities, *ident)
		}
	} else {
		var err error
		identities, err = h.db.ListIdentities(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for i := range identities {
		resp = append(resp, identityResponse(&identities[i]))
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

func (h *IdentityHandler) lookup(c *gin.Context) (*models.Identity, bool) {
	id, ok := parseID(c, "identity")
	if !ok {
		return nil, false
	}
	ident, err := h.db.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if ident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return nil, false
	}
	return ident, true
}

func (h *IdentityHandler) Get(c *gin.Context) {
	ident, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, identityResponse(ident))
}

func optionalForm(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

// Update edits name, email and phone from multipart fields. An uploaded
// "photo" replaces the profile photo and the old one is removed.
func (h *IdentityHandler) Update(c *gin.Context) {
	current, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	upd := models.IdentityUpdate{
		Name:  optionalForm(c, "name"),
		Email: optionalForm(c, "email"),
		Phone: optionalForm(c, "phone"),
	}
	for _, v := range []*string{upd.Name, upd.Email} {
		if v != nil && *v == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and email cannot be empty"})
			return
		}
	}

	data, header, err := readUpload(c, "photo")
	switch {
	case errors.Is(err, errNoUpload):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		key := fmt.Sprintf("%sphoto_%d%s", identityPrefix(current.ID), time.Now().Unix(), strings.ToLower(filepath.Ext(header.Filename)))
		if err := h.blobs.PutObject(ctx, key, data, contentTypeOf(header, data)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store photo failed"})
			return
		}
		upd.PhotoKey = &key
	}

	ident, err := h.db.UpdateIdentity(ctx, current.ID, upd)
	if err != nil {
		if upd.PhotoKey != nil {
			_ = h.blobs.DeleteObject(ctx, *upd.PhotoKey)
		}
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if upd.PhotoKey != nil && current.PhotoKey != "" && current.PhotoKey != *upd.PhotoKey {
		if err := h.blobs.DeleteObject(ctx, current.PhotoKey); err != nil {
			slog.Warn("delete old photo", "identity_id", current.ID, "key", current.PhotoKey, "error", err)
		}
	}
	c.JSON(http.StatusOK, identityResponse(ident))
}

// Delete removes the identity, its images, and any live recognition of it.
func (h *IdentityHandler) Delete(c *gin.Context) {
	current, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.db.DeleteIdentity(ctx, current.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.deleteImages(ctx, current)
	for _, o := range h.observers {
		o.Forget(current.ID)
	}

	slog.Info("identity deleted", "identity_id", current.ID)
	c.Status(http.StatusNoContent)
}

// prefixDeleter is implemented by blob stores that can drop every object
// under a prefix in one request.
type prefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

func identityPrefix(id uuid.UUID) string {
	return "identities/" + id.String() + "/"
}

// deleteImages removes the snapshot and every profile photo of ident,
// including photos orphaned by earlier failed updates.
func (h *IdentityHandler) deleteImages(ctx context.Context, ident *models.Identity) {
	if pd, ok := h.blobs.(prefixDeleter); ok {
		if err := pd.DeletePrefix(ctx, identityPrefix(ident.ID)); err != nil {
			slog.Warn("delete identity images", "identity_id", ident.ID, "error", err)
		}
		return
	}
	for _, key := range []string{ident.SnapshotKey, ident.PhotoKey} {
		if key == "" {
			continue
		}
		if err := h.blobs.DeleteObject(ctx, key); err != nil {
			slog.Warn("delete identity image", "identity_id", ident.ID, "key", key, "error", err)
		}
	}
}

// Search returns the identities nearest to a descriptor.
func (h *IdentityHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Descriptor) != descriptor.Length {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("descriptor must have %d components", descriptor.Length)})
		return
	}

	matches, err := h.db.SearchIdentities(c.Request.Context(), descriptor.Descriptor(req.Descriptor), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, dto.SearchResult{
			IdentityID: m.Identity.ID,
			Name:       m.Identity.Name,
			Email:      m.Identity.Email,
			Similarity: m.Similarity,
			Matched:    m.Similarity > match.Threshold,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": resp, "total": len(resp)})
}

// Snapshot proxies the registration snapshot from blob storage.
func (h *IdentityHandler) Snapshot(c *gin.Context) {
	ident, ok := h.lookup(c)
	if !ok {
		return
	}
	serveObject(c, h.blobs, ident.SnapshotKey, "snapshot")
}

// Photo proxies the profile photo from blob storage.
func (h *IdentityHandler) Photo(c *gin.Context) {
	ident, ok := h.lookup(c)
	if !ok {
		return
	}
	serveObject(c, h.blobs, ident.PhotoKey, "photo")
}
