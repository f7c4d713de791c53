package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/camera"
)

var (
	ErrUnknownSurface = errors.New("unknown scan surface")
	ErrNoSession      = errors.New("no scan session for camera")
	ErrNoHandOff      = errors.New("no handed-off frame for camera")

	// ErrModelUnavailable wraps a face model load failure.
	ErrModelUnavailable = errors.New("face model unavailable")
)

// ModelGate is the face model as seen by the manager: it must be loaded
// before a session can start.
type ModelGate interface {
	Extractor
	Ensure(ctx context.Context) error
}

// Listener receives every state change of every session.
type Listener func(StateChange)

// Manager owns at most one session per camera.
type Manager struct {
	surfaces map[string]Config
	source   camera.Source
	model    ModelGate
	gallery  CandidateSource
	listener Listener
	clock    clock

	mu       sync.Mutex
	sessions map[string]*Session
	// starting serializes Start per camera so opening one camera does not
	// hold up the others.
	starting map[string]*sync.Mutex
}

type ManagerOption func(*Manager)

// WithListener forwards state changes, e.g. to the event bus.
func WithListener(l Listener) ManagerOption {
	return func(m *Manager) { m.listener = l }
}

func withClock(c clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

func NewManager(surfaces map[string]Config, source camera.Source, model ModelGate, gallery CandidateSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		surfaces: surfaces,
		source:   source,
		model:    model,
		gallery:  gallery,
		sessions: make(map[string]*Session),
		starting: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens cameraID and begins scanning with the given surface preset.
// A session already running on that camera is stopped first. The face model
// is loaded if needed; a load failure or a camera error starts nothing.
func (m *Manager) Start(ctx context.Context, cameraID, surface string) (*Session, error) {
	cfg, ok := m.surfaces[surface]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, surface)
	}
	if err := m.model.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	lock := m.cameraLock(cameraID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	old, ok := m.sessions[cameraID]
	delete(m.sessions, cameraID)
	m.mu.Unlock()
	if ok {
		old.Stop()
		slog.Info("replaced scan session", "camera", cameraID, "surface", old.Surface())
	}

	stream, err := m.source.Open(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cameraID, err)
	}

	s := newSession(sessionParams{
		camera:    cameraID,
		surface:   surface,
		cfg:       cfg,
		source:    m.source,
		stream:    stream,
		extractor: m.model,
		gallery:   m.gallery,
		clock:     m.clock,
	})
	if m.listener != nil {
		ch, _ := s.subscribe(listenerBuffer, true)
		go func() {
			for change := range ch {
				m.listener(change)
			}
		}()
	}

	m.mu.Lock()
	m.sessions[cameraID] = s
	m.mu.Unlock()
	s.start()
	go m.reap(cameraID, s)

	slog.Info("scan session started", "camera", cameraID, "surface", surface)
	return s, nil
}

func (m *Manager) cameraLock(cameraID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.starting[cameraID]
	if !ok {
		l = &sync.Mutex{}
		m.starting[cameraID] = l
	}
	return l
}

// reap drops a session that ended on its own, such as a checkout scan that
// released the camera after recognizing someone.
func (m *Manager) reap(cameraID string, s *Session) {
	<-s.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[cameraID] == s {
		delete(m.sessions, cameraID)
	}
}

// Stop ends the session on cameraID.
func (m *Manager) Stop(cameraID string) error {
	m.mu.Lock()
	s, ok := m.sessions[cameraID]
	delete(m.sessions, cameraID)
	m.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	s.Stop()
	slog.Info("scan session stopped", "camera", cameraID)
	return nil
}

// Retry restarts an exhausted session on cameraID.
func (m *Manager) Retry(ctx context.Context, cameraID string) error {
	s, ok := m.Get(cameraID)
	if !ok {
		return ErrNoSession
	}
	return s.Retry(ctx)
}

func (m *Manager) Get(cameraID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[cameraID]
	return s, ok
}

// HandOff returns the last frame of an exhausted session on cameraID.
func (m *Manager) HandOff(cameraID string) (image.Image, error) {
	s, ok := m.Get(cameraID)
	if !ok {
		return nil, ErrNoSession
	}
	frame := s.HandOff()
	if frame == nil {
		return nil, ErrNoHandOff
	}
	return frame, nil
}

// Forget resets any session currently recognizing identityID.
func (m *Manager) Forget(identityID uuid.UUID) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Forget(identityID)
	}
}

// Statuses returns the state of every session ordered by camera.
func (m *Manager) Statuses() []StateChange {
	m.mu.Lock()
	out := make([]StateChange, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Status())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}

// ActiveCount returns the number of sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StopAll stops every session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
