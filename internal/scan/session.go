package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/camera"
	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/match"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/observability"
)

var (
	ErrSessionStopped = errors.New("scan session stopped")
	ErrNotExhausted   = errors.New("scan session is not exhausted")
)

// Extractor returns the descriptor of the single face in img, or nil when
// there is no single face.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) (descriptor.Descriptor, error)
}

// CandidateSource supplies the identities a probe is matched against.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StateChange is a snapshot of a session published to subscribers.
type StateChange struct {
	Camera       string           `json:"camera"`
	Surface      string           `json:"surface"`
	State        State            `json:"state"`
	Identity     *models.Identity `json:"identity,omitempty"`
	Score        float64          `json:"score,omitempty"`
	Attempts     int              `json:"attempts"`
	CameraActive bool             `json:"camera_active"`
	HandOffReady bool             `json:"handoff_ready"`
	At           time.Time        `json:"at"`
}

// clock abstracts the two timers a session runs.
type clock interface {
	NewTicker(d time.Duration) (<-chan time.Time, func())
	AfterFunc(d time.Duration, f func()) func() bool
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type retryRequest struct {
	reply chan error
}

// Session drives a Machine for one camera. All machine events are handled
// on a single goroutine; captures run on their own goroutine and report
// back through the event channel.
type Session struct {
	camera  string
	surface string
	cfg     Config

	machine   *Machine
	source    camera.Source
	stream    camera.Stream
	extractor Extractor
	gallery   CandidateSource
	clock     clock

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan Event
	retries chan retryRequest
	done    chan struct{}

	forgetStop func() bool

	// ended is only touched by the event loop.
	ended bool

	mu      sync.Mutex
	status  StateChange
	handoff image.Image
	subs    map[int]subscriber
	nextSub int
	closed  bool
}

// subscriber is a registered state change channel. Drops are logged loudly
// for listeners that persist or forward events.
type subscriber struct {
	ch       chan StateChange
	listener bool
}

const (
	clientBuffer   = 16
	listenerBuffer = 256
)

type sessionParams struct {
	camera    string
	surface   string
	cfg       Config
	source    camera.Source
	stream    camera.Stream
	extractor Extractor
	gallery   CandidateSource
	clock     clock
}

func newSession(p sessionParams) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if p.clock == nil {
		p.clock = realClock{}
	}
	return &Session{
		camera:    p.camera,
		surface:   p.surface,
		cfg:       p.cfg,
		machine:   NewMachine(p.cfg),
		source:    p.source,
		stream:    p.stream,
		extractor: p.extractor,
		gallery:   p.gallery,
		clock:     p.clock,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan Event),
		retries:   make(chan retryRequest),
		done:      make(chan struct{}),
		status:    StateChange{Camera: p.camera, Surface: p.surface, State: Idle},
		subs:      make(map[int]subscriber),
	}
}

func (s *Session) Camera() string  { return s.camera }
func (s *Session) Surface() string { return s.surface }

// Done is closed once the session has fully stopped, either through Stop
// or because a recognition on a StopOnRecognize surface ended it.
func (s *Session) Done() <-chan struct{} { return s.done }

// start enters Scanning and launches the event loop. The stream must
// already be open.
func (s *Session) start() {
	observability.ActiveSessions.Inc()
	s.apply(s.machine.Handle(Start{}))
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()

	tickC, stopTicker := s.clock.NewTicker(s.cfg.TickInterval)
	defer stopTicker()

	for !s.ended {
		select {
		case <-s.ctx.Done():
			s.apply(s.machine.Handle(Stop{}))
			s.closeSubscribers()
			return
		case <-tickC:
			s.apply(s.machine.Handle(Tick{}))
		case ev := <-s.events:
			if r, ok := ev.(CaptureResult); ok {
				s.recordCapture(r)
			}
			s.apply(s.machine.Handle(ev))
		case req := <-s.retries:
			req.reply <- s.retry()
		}
	}

	s.stopForget()
	s.closeSubscribers()
	slog.Info("scan session ended", "camera", s.camera, "surface", s.surface, "state", s.machine.State().String())
}

// Stop ends the session, cancels both timers and releases the camera. It
// returns after the event loop has exited, so no timer or capture callback
// can change the session afterwards. Stop is idempotent.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Retry reopens the camera of an exhausted session and resumes scanning
// with a fresh attempt count.
func (s *Session) Retry(ctx context.Context) error {
	req := retryRequest{reply: make(chan error, 1)}
	select {
	case s.retries <- req:
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget clears the current recognition if it is for identityID.
func (s *Session) Forget(identityID uuid.UUID) {
	s.post(Forget{IdentityID: identityID})
}

// Status returns the latest published state.
func (s *Session) Status() StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HandOff returns the frame carried by an exhausted session, or nil.
func (s *Session) HandOff() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handoff
}

// Subscribe registers for state changes. The channel is closed when the
// session stops or the returned func is called. Slow subscribers miss
// updates rather than blocking the session.
func (s *Session) Subscribe() (<-chan StateChange, func()) {
	return s.subscribe(clientBuffer, false)
}

func (s *Session) subscribe(buffer int, listener bool) (<-chan StateChange, func()) {
	ch := make(chan StateChange, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{ch: ch, listener: listener}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (s *Session) post(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) apply(effects []Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case Capture:
			go s.capture(s.stream)
		case ScheduleForget:
			s.stopForget()
			gen := e.Gen
			s.forgetStop = s.clock.AfterFunc(e.After, func() {
				s.post(ForgetElapsed{Gen: gen})
			})
		case CancelForget:
			s.stopForget()
		case StopCamera:
			s.closeStream()
		case HandOff:
			s.mu.Lock()
			s.handoff = e.Frame
			s.mu.Unlock()
		case Notify:
			s.publish(e)
		case End:
			s.ended = true
		}
	}
}

func (s *Session) stopForget() {
	if s.forgetStop != nil {
		s.forgetStop()
		s.forgetStop = nil
	}
}

func (s *Session) closeStream() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		slog.Warn("close camera", "camera", s.camera, "error", err)
	}
	s.stream = nil
	observability.ActiveSessions.Dec()
}

func (s *Session) retry() error {
	if s.machine.State() != Exhausted {
		return ErrNotExhausted
	}
	stream, err := s.source.Open(s.ctx, s.camera)
	if err != nil {
		return fmt.Errorf("reopen camera: %w", err)
	}
	s.stream = stream
	observability.ActiveSessions.Inc()

	s.mu.Lock()
	s.handoff = nil
	s.mu.Unlock()

	slog.Info("scan session retried", "camera", s.camera, "surface", s.surface)
	s.apply(s.machine.Handle(Retry{}))
	return nil
}

func (s *Session) capture(stream camera.Stream) {
	s.post(s.runCapture(s.ctx, stream))
}

func (s *Session) runCapture(ctx context.Context, stream camera.Stream) CaptureResult {
	if stream == nil {
		return CaptureResult{Err: camera.ErrClosed}
	}
	frame, err := stream.Frame()
	if err != nil {
		return CaptureResult{Err: fmt.Errorf("grab frame: %w", err)}
	}

	desc, err := s.extractor.Extract(ctx, frame)
	if err != nil {
		return CaptureResult{Frame: frame, Err: err}
	}
	if desc == nil {
		return CaptureResult{Frame: frame}
	}

	candidates, err := s.gallery.Candidates(ctx)
	if err != nil {
		return CaptureResult{Frame: frame, Err: err}
	}
	best, score, ok := match.BestMatch(desc, candidates)
	if !ok {
		return CaptureResult{Frame: frame}
	}
	return CaptureResult{Frame: frame, Match: best.Identity, Score: score}
}

func (s *Session) recordCapture(r CaptureResult) {
	outcome := "miss"
	switch {
	case r.Err != nil:
		outcome = "error"
		observability.ScanTickErrors.WithLabelValues(s.camera).Inc()
		slog.Warn("scan tick failed", "camera", s.camera, "error", r.Err)
	case r.Match != nil:
		outcome = "match"
	}
	observability.ScanTicks.WithLabelValues(s.camera, outcome).Inc()
}

func (s *Session) publish(n Notify) {
	switch n.State {
	case Recognized:
		observability.Recognitions.WithLabelValues(s.surface).Inc()
		slog.Info("identity recognized",
			"camera", s.camera,
			"identity_id", n.Identity.ID,
			"score", n.Score,
		)
	case Exhausted:
		observability.Exhaustions.WithLabelValues(s.surface).Inc()
		slog.Info("scan attempts exhausted", "camera", s.camera, "attempts", n.Attempts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StateChange{
		Camera:       s.camera,
		Surface:      s.surface,
		State:        n.State,
		Identity:     n.Identity,
		Score:        n.Score,
		Attempts:     n.Attempts,
		CameraActive: s.machine.CameraOpen(),
		HandOffReady: s.handoff != nil,
		At:           time.Now().UTC(),
	}
	for _, sub := range s.subs {
		select {
		case sub.ch <- s.status:
		default:
			kind := "client"
			if sub.listener {
				kind = "listener"
				slog.Warn("listener fell behind, dropping state change", "camera", s.camera, "state", s.status.State.String())
			} else {
				slog.Debug("dropping state change for slow subscriber", "camera", s.camera)
			}
			observability.StateChangeDrops.WithLabelValues(s.camera, kind).Inc()
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}
