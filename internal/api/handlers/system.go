package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/internal/vision"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// BusPinger reports the message bus connection.
type BusPinger interface {
	Ping() error
}

// ModelState reports the face model lifecycle.
type ModelState interface {
	State() vision.State
}

// ModelReloader clears a failed model load and loads again.
type ModelReloader interface {
	Reset()
	Ensure(ctx context.Context) error
}

// Counter reports a live count, such as running scan sessions.
type Counter interface {
	Count() int
}

// CounterFunc adapts a func to Counter.
type CounterFunc func() int

func (f CounterFunc) Count() int { return f() }

type SystemHandler struct {
	db     Pinger
	blobs  Pinger
	bus    BusPinger
	model  ModelState
	store  storage.ObjectStore
	bucket string

	sessions Counter
	clients  Counter
}

// NewSystemHandler builds the health endpoints. bus may be nil when the
// API runs without NATS.
func NewSystemHandler(db, blobs Pinger, bus BusPinger, model ModelState, store storage.ObjectStore, bucket string) *SystemHandler {
	return &SystemHandler{db: db, blobs: blobs, bus: bus, model: model, store: store, bucket: bucket}
}

// WithActivity sets what Status reports as running scan sessions and
// connected websocket clients. Either may be nil.
func (h *SystemHandler) WithActivity(sessions, clients Counter) *SystemHandler {
	h.sessions = sessions
	h.clients = clients
	return h
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	check("postgres", h.db.Ping(ctx))
	check("minio", h.blobs.Ping(ctx))
	if h.bus != nil {
		check("nats", h.bus.Ping())
	}

	// A model that has not been loaded yet is loaded on the first scan; only
	// a failed load makes the service unready.
	state := h.model.State()
	checks["model"] = state.String()
	if state == vision.StateFailed {
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

// Storage runs the upload/read/delete round trip against blob storage.
func (h *SystemHandler) Storage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result := storage.CheckStorage(ctx, h.store, h.bucket)
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// ReloadModel retries a failed model load. A ready model is left alone.
func (h *SystemHandler) ReloadModel(c *gin.Context) {
	reloader, ok := h.model.(ModelReloader)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "model reload is not supported"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	if h.model.State() == vision.StateFailed {
		reloader.Reset()
	}
	if err := reloader.Ensure(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "model": h.model.State().String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": h.model.State().String()})
}

// Status reports the model state and the live scan and websocket activity.
func (h *SystemHandler) Status(c *gin.Context) {
	count := func(ctr Counter) int {
		if ctr == nil {
			return 0
		}
		return ctr.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"model":         h.model.State().String(),
		"scan_sessions": count(h.sessions),
		"ws_clients":    count(h.clients),
		"nats":          h.bus != nil,
	})
}
