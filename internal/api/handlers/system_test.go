package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/internal/vision"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type busPinger struct{ err error }

func (p busPinger) Ping() error { return p.err }

type modelState vision.State

func (m modelState) State() vision.State { return vision.State(m) }

func newSystemRouter(db, blobs pinger, bus BusPinger, model modelState, store storage.ObjectStore) *gin.Engine {
	h := NewSystemHandler(db, blobs, bus, model, store, "whome")
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/system/storage", h.Storage)
	return r
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		db     pinger
		bus    BusPinger
		model  modelState
		want   int
		checks map[string]string
	}{
		{
			name:   "ready",
			bus:    busPinger{},
			model:  modelState(vision.StateReady),
			want:   http.StatusOK,
			checks: map[string]string{"postgres": "ok", "minio": "ok", "nats": "ok", "model": "ready"},
		},
		{
			name:   "model not loaded yet, no bus",
			model:  modelState(vision.StateUninitialized),
			want:   http.StatusOK,
			checks: map[string]string{"postgres": "ok", "minio": "ok", "model": "uninitialized"},
		},
		{
			name:   "model failed",
			bus:    busPinger{},
			model:  modelState(vision.StateFailed),
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"postgres": "ok", "minio": "ok", "nats": "ok", "model": "failed"},
		},
		{
			name:   "database down",
			db:     pinger{err: errors.New("connection refused")},
			model:  modelState(vision.StateReady),
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"postgres": "connection refused", "minio": "ok", "model": "ready"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSystemRouter(tt.db, pinger{}, tt.bus, tt.model, newMemoryBlobs())
			w := serve(r, http.MethodGet, "/readyz", nil, "")
			assert.Equal(t, tt.want, w.Code)

			var resp struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.checks, resp.Checks)
		})
	}
}

func TestStorageCheckEndpoint(t *testing.T) {
	blobs := newMemoryBlobs()
	r := newSystemRouter(pinger{}, pinger{}, nil, modelState(vision.StateReady), blobs)

	w := serve(r, http.MethodGet, "/system/storage", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var check storage.StorageCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.CanUpload && check.CanRead && check.CanDelete)
	assert.Empty(t, blobs.keys())

	blobs.putErr = errors.New("access denied")
	w = serve(r, http.MethodGet, "/system/storage", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type reloadableModel struct {
	state  vision.State
	err    error
	resets int
}

func (m *reloadableModel) State() vision.State { return m.state }
func (m *reloadableModel) Reset()              { m.resets++; m.state = vision.StateUninitialized }

func (m *reloadableModel) Ensure(ctx context.Context) error {
	if m.err != nil {
		m.state = vision.StateFailed
		return m.err
	}
	m.state = vision.StateReady
	return nil
}

func TestReloadModel(t *testing.T) {
	model := &reloadableModel{state: vision.StateFailed}
	h := NewSystemHandler(pinger{}, pinger{}, nil, model, newMemoryBlobs(), "whome")
	r := gin.New()
	r.POST("/system/model/reload", h.ReloadModel)

	w := serve(r, http.MethodPost, "/system/model/reload", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, model.resets)
	assert.Contains(t, w.Body.String(), `"ready"`)

	// Already ready: no reset.
	w = serve(r, http.MethodPost, "/system/model/reload", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, model.resets)

	model.state, model.err = vision.StateFailed, errors.New("missing model file")
	w = serve(r, http.MethodPost, "/system/model/reload", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "missing model file")
}

func TestReloadModelUnsupported(t *testing.T) {
	h := NewSystemHandler(pinger{}, pinger{}, nil, modelState(vision.StateReady), newMemoryBlobs(), "whome")
	r := gin.New()
	r.POST("/system/model/reload", h.ReloadModel)

	assert.Equal(t, http.StatusNotImplemented, serve(r, http.MethodPost, "/system/model/reload", nil, "").Code)
}

func TestSystemStatus(t *testing.T) {
	h := NewSystemHandler(pinger{}, pinger{}, busPinger{}, modelState(vision.StateReady), newMemoryBlobs(), "whome").
		WithActivity(CounterFunc(func() int { return 2 }), nil)
	r := gin.New()
	r.GET("/system/status", h.Status)

	w := serve(r, http.MethodGet, "/system/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Model        string `json:"model"`
		ScanSessions int    `json:"scan_sessions"`
		WSClients    int    `json:"ws_clients"`
		NATS         bool   `json:"nats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Model)
	assert.Equal(t, 2, body.ScanSessions)
	assert.Zero(t, body.WSClients)
	assert.True(t, body.NATS)
}
