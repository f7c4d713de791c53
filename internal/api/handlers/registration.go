package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/whome/internal/registration"
	"github.com/your-org/whome/internal/scan"
	"github.com/your-org/whome/internal/vision"
	"github.com/your-org/whome/pkg/dto"
)

// Registrar is implemented by registration.Service.
type Registrar interface {
	Capture(ctx context.Context, img image.Image) (*registration.Captured, error)
	RegisterImage(ctx context.Context, fields registration.Fields, img image.Image) (*registration.Result, error)
	RegisterFromHandOff(ctx context.Context, source registration.HandOffSource, cameraID string, fields registration.Fields) (*registration.Result, error)
}

// ModelGate loads the face model on demand.
type ModelGate interface {
	Ensure(ctx context.Context) error
}

type RegistrationHandler struct {
	svc     Registrar
	model   ModelGate
	handoff registration.HandOffSource
}

func NewRegistrationHandler(svc Registrar, model ModelGate, handoff registration.HandOffSource) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, model: model, handoff: handoff}
}

func registrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registration.ErrInvalidFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registration.ErrNoFaceDetected):
		// The client keeps the entered fields and retries with a new frame.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected", "retry": true})
	case errors.Is(err, scan.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scan.ErrNoHandOff):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *RegistrationHandler) ensureModel(c *gin.Context) bool {
	if err := h.model.Ensure(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face model unavailable: " + err.Error()})
		return false
	}
	return true
}

// uploadedImage decodes the "image" multipart field.
func uploadedImage(c *gin.Context) (image.Image, bool) {
	data, _, err := readUpload(c, "image")
	if err != nil {
		if errors.Is(err, errNoUpload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	img, err := vision.DecodeImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return img, true
}

// Register creates an identity from multipart fields plus either an
// uploaded image or, with camera=, the frame an exhausted scan handed off.
func (h *RegistrationHandler) Register(c *gin.Context) {
	fields := registration.Fields{
		Name:  c.PostForm("name"),
		Email: c.PostForm("email"),
		Phone: c.PostForm("phone"),
	}
	if !h.ensureModel(c) {
		return
	}

	var (
		res *registration.Result
		err error
	)
	if cameraID := c.PostForm("camera"); cameraID != "" {
		res, err = h.svc.RegisterFromHandOff(c.Request.Context(), h.handoff, cameraID, fields)
	} else {
		img, ok := uploadedImage(c)
		if !ok {
			return
		}
		res, err = h.svc.RegisterImage(c.Request.Context(), fields, img)
	}
	if err != nil {
		registrationError(c, err)
		return
	}

	resp := dto.RegisterResponse{
		Identity:        identityResponse(res.Identity),
		SnapshotBlobURL: res.SnapshotURL,
		DuplicateScore:  res.DuplicateScore,
	}
	if res.SnapshotErr != nil {
		resp.SnapshotError = res.SnapshotErr.Error()
	}
	if res.PossibleDuplicate != nil {
		id := res.PossibleDuplicate.ID
		resp.PossibleDuplicate = &id
	}
	c.JSON(http.StatusCreated, resp)
}

// Capture checks that a still image holds exactly one face and returns its
// snapshot.
func (h *RegistrationHandler) Capture(c *gin.Context) {
	if !h.ensureModel(c) {
		return
	}
	img, ok := uploadedImage(c)
	if !ok {
		return
	}

	captured, err := h.svc.Capture(c.Request.Context(), img)
	if err != nil {
		registrationError(c, err)
		return
	}

	b := captured.Box
	c.JSON(http.StatusOK, dto.CaptureResponse{
		FaceDetected: true,
		Box:          [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
		SnapshotB64:  base64.StdEncoding.EncodeToString(captured.Snapshot),
	})
}
