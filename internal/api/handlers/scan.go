package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/whome/internal/camera"
	"github.com/your-org/whome/internal/config"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/scan"
	"github.com/your-org/whome/internal/visits"
	"github.com/your-org/whome/pkg/dto"
)

// ScanController is implemented by scan.Manager.
type ScanController interface {
	Start(ctx context.Context, cameraID, surface string) (*scan.Session, error)
	Stop(cameraID string) error
	Retry(ctx context.Context, cameraID string) error
	Get(cameraID string) (*scan.Session, bool)
	Statuses() []scan.StateChange
}

// ScanEventStore lists the persisted visit log.
type ScanEventStore interface {
	ListScanEvents(ctx context.Context, camera string, limit int) ([]models.ScanEvent, error)
}

type ScanHandler struct {
	scans  ScanController
	events ScanEventStore
}

func NewScanHandler(scans ScanController, events ScanEventStore) *ScanHandler {
	return &ScanHandler{scans: scans, events: events}
}

func statusOf(sc scan.StateChange) dto.ScanStateEvent {
	return *visits.StateEvent(sc)
}

// scanError maps session errors to HTTP statuses.
func scanError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scan.ErrUnknownSurface):
		status = http.StatusBadRequest
	case errors.Is(err, camera.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, camera.ErrUnknownCamera), errors.Is(err, scan.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, scan.ErrNotExhausted), errors.Is(err, scan.ErrSessionStopped):
		status = http.StatusConflict
	case errors.Is(err, scan.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Start begins scanning on a camera. ?surface= selects the preset and
// defaults to the greeting kiosk.
func (h *ScanHandler) Start(c *gin.Context) {
	var req dto.StartScanRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Surface == "" {
		req.Surface = config.SurfaceGreet
	}

	cameraID := c.Param("camera")
	s, err := h.scans.Start(c.Request.Context(), cameraID, req.Surface)
	if err != nil {
		slog.Warn("start scan failed", "camera", cameraID, "surface", req.Surface, "error", err)
		scanError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, statusOf(s.Status()))
}

func (h *ScanHandler) Stop(c *gin.Context) {
	if err := h.scans.Stop(c.Param("camera")); err != nil {
		scanError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Retry restarts an exhausted session.
func (h *ScanHandler) Retry(c *gin.Context) {
	cameraID := c.Param("camera")
	if err := h.scans.Retry(c.Request.Context(), cameraID); err != nil {
		scanError(c, err)
		return
	}
	s, ok := h.scans.Get(cameraID)
	if !ok {
		scanError(c, scan.ErrNoSession)
		return
	}
	c.JSON(http.StatusAccepted, statusOf(s.Status()))
}

func (h *ScanHandler) Status(c *gin.Context) {
	s, ok := h.scans.Get(c.Param("camera"))
	if !ok {
		scanError(c, scan.ErrNoSession)
		return
	}
	c.JSON(http.StatusOK, statusOf(s.Status()))
}

func (h *ScanHandler) List(c *gin.Context) {
	statuses := h.scans.Statuses()
	resp := make([]dto.ScanStateEvent, 0, len(statuses))
	for _, sc := range statuses {
		resp = append(resp, statusOf(sc))
	}
	c.JSON(http.StatusOK, dto.ScanStatusListResponse{Sessions: resp, Total: len(resp)})
}

// Events returns the persisted visit log, newest first.
func (h *ScanHandler) Events(c *gin.Context) {
	var q struct {
		Camera string `form:"camera"`
		Limit  int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.events.ListScanEvents(c.Request.Context(), q.Camera, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ScanEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.ScanEventResponse{
			ID:         ev.ID,
			Camera:     ev.Camera,
			Surface:    ev.Surface,
			State:      ev.State,
			IdentityID: ev.IdentityID,
			Score:      ev.Score,
			Attempts:   ev.Attempts,
			OccurredAt: formatTime(ev.OccurredAt),
		})
	}
	c.JSON(http.StatusOK, dto.ScanEventListResponse{Events: resp, Total: len(resp)})
}
