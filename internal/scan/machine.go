// Package scan runs the periodic capture, detect and match loop bound to a
// camera, and decides when a face is recognized or attempts run out.
package scan

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/config"
	"github.com/your-org/whome/internal/models"
)

// Config parameterizes a scan surface.
type Config struct {
	TickInterval time.Duration
	ForgetDelay  time.Duration
	// MaxAttempts is the number of completed captures without any match
	// after which the session is exhausted. Zero disables the cap.
	MaxAttempts int
	// StopOnRecognize releases the camera as soon as someone is recognized.
	StopOnRecognize bool
}

func ConfigFromSurface(s config.SurfaceConfig) Config {
	return Config{
		TickInterval:    s.TickInterval,
		ForgetDelay:     s.ForgetDelay,
		MaxAttempts:     s.MaxAttempts,
		StopOnRecognize: s.StopOnRecognize,
	}
}

// Event is an input to Machine.Handle.
type Event interface{ event() }

type (
	// Start begins a session with the camera already open.
	Start struct{}
	// Tick asks for a new capture.
	Tick struct{}
	// CaptureResult is the outcome of one capture. Match is nil on a miss
	// (no face, ambiguous face, or no candidate above threshold).
	CaptureResult struct {
		Match *models.Identity
		Score float64
		Frame image.Image
		Err   error
	}
	// ForgetElapsed fires when the forget delay scheduled as Gen runs out.
	ForgetElapsed struct{ Gen uint64 }
	// Retry restarts an exhausted session. The camera must be open again.
	Retry struct{}
	// Stop ends the session.
	Stop struct{}
	// Forget drops the current recognition if it is for IdentityID.
	Forget struct{ IdentityID uuid.UUID }
)

func (Start) event()         {}
func (Tick) event()          {}
func (CaptureResult) event() {}
func (ForgetElapsed) event() {}
func (Retry) event()         {}
func (Stop) event()          {}
func (Forget) event()        {}

// Effect is an action the session runtime must carry out.
type Effect interface{ effect() }

type (
	// Notify reports a state change to subscribers.
	Notify struct {
		State    State
		Identity *models.Identity
		Score    float64
		Attempts int
	}
	// Capture starts one capture, detect and match cycle.
	Capture struct{}
	// ScheduleForget arms the forget timer. It replaces any earlier timer.
	ScheduleForget struct {
		Gen   uint64
		After time.Duration
	}
	CancelForget struct{}
	StopCamera   struct{}
	// HandOff passes the last captured frame to registration.
	HandOff struct{ Frame image.Image }
	// End finishes the session. The machine ignores every later event.
	End struct{}
)

func (Notify) effect()         {}
func (Capture) effect()        {}
func (ScheduleForget) effect() {}
func (CancelForget) effect()   {}
func (StopCamera) effect()     {}
func (HandOff) effect()        {}
func (End) effect()            {}

// Machine is the scan state machine. It holds no timers and does no I/O:
// Handle maps an event to the effects the caller must perform. It is not
// safe for concurrent use.
type Machine struct {
	cfg Config

	state         State
	attempts      int
	lastMatched   *models.Identity
	everMatched   bool
	inFlight      bool
	forgetGen     uint64
	forgetPending bool
	cameraOpen    bool
	lastFrame     image.Image
	ended         bool
}

func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

func (m *Machine) State() State                  { return m.state }
func (m *Machine) Attempts() int                 { return m.attempts }
func (m *Machine) LastMatched() *models.Identity { return m.lastMatched }
func (m *Machine) InFlight() bool                { return m.inFlight }
func (m *Machine) CameraOpen() bool              { return m.cameraOpen }
func (m *Machine) Ended() bool                   { return m.ended }

func (m *Machine) Handle(ev Event) []Effect {
	if m.ended {
		return nil
	}
	switch ev.(type) {
	case Start:
		return m.start()
	case Stop:
		return m.stop()
	}

	if m.state == Idle {
		return nil
	}

	switch e := ev.(type) {
	case Tick:
		return m.tick()
	case CaptureResult:
		return m.captured(e)
	case ForgetElapsed:
		return m.forgetElapsed(e)
	case Retry:
		return m.retry()
	case Forget:
		return m.forget(e)
	}
	return nil
}

func (m *Machine) start() []Effect {
	if m.state != Idle {
		return nil
	}
	m.reset()
	m.state = Scanning
	m.cameraOpen = true
	return []Effect{m.notify()}
}

func (m *Machine) stop() []Effect {
	if m.state == Idle {
		return nil
	}
	effects := []Effect{CancelForget{}}
	if m.cameraOpen {
		effects = append(effects, StopCamera{})
	}
	m.reset()
	m.state = Idle
	return append(effects, m.notify())
}

func (m *Machine) tick() []Effect {
	if m.state != Scanning && m.state != Recognized {
		return nil
	}
	if !m.cameraOpen || m.inFlight {
		return nil
	}
	m.inFlight = true
	return []Effect{Capture{}}
}

func (m *Machine) captured(r CaptureResult) []Effect {
	if !m.inFlight {
		return nil
	}
	m.inFlight = false
	if !m.cameraOpen {
		return nil
	}

	m.attempts++
	if r.Frame != nil {
		m.lastFrame = r.Frame
	}

	var effects []Effect
	switch {
	case r.Err != nil:
		// Failed cycles count as attempts but say nothing about who is in frame.
	case r.Match != nil:
		return m.matched(r)
	case m.lastMatched != nil && !m.forgetPending:
		m.forgetGen++
		m.forgetPending = true
		effects = append(effects, ScheduleForget{Gen: m.forgetGen, After: m.cfg.ForgetDelay})
	}

	if !m.everMatched && m.cfg.MaxAttempts > 0 && m.attempts >= m.cfg.MaxAttempts {
		m.state = Exhausted
		m.cameraOpen = false
		effects = append(effects, StopCamera{}, HandOff{Frame: m.lastFrame}, m.notify())
	}
	return effects
}

func (m *Machine) matched(r CaptureResult) []Effect {
	m.everMatched = true

	var effects []Effect
	if m.forgetPending {
		effects = append(effects, m.cancelForget())
	}

	if m.lastMatched != nil && m.lastMatched.ID == r.Match.ID {
		return effects
	}

	m.state = Recognized
	m.lastMatched = r.Match
	n := m.notify()
	n.Score = r.Score
	effects = append(effects, n)

	if m.cfg.StopOnRecognize {
		m.cameraOpen = false
		m.ended = true
		effects = append(effects, StopCamera{}, End{})
	}
	return effects
}

func (m *Machine) forgetElapsed(e ForgetElapsed) []Effect {
	if !m.forgetPending || e.Gen != m.forgetGen {
		return nil
	}
	m.forgetPending = false
	m.lastMatched = nil
	if m.state != Recognized {
		return nil
	}
	m.state = Scanning
	return []Effect{m.notify()}
}

func (m *Machine) retry() []Effect {
	if m.state != Exhausted {
		return nil
	}
	m.reset()
	m.state = Scanning
	m.cameraOpen = true
	return []Effect{m.notify()}
}

func (m *Machine) forget(e Forget) []Effect {
	if m.lastMatched == nil || m.lastMatched.ID != e.IdentityID {
		return nil
	}
	var effects []Effect
	if m.forgetPending {
		effects = append(effects, m.cancelForget())
	}
	m.lastMatched = nil
	if m.state == Recognized && m.cameraOpen {
		m.state = Scanning
		effects = append(effects, m.notify())
	}
	return effects
}

// cancelForget invalidates the pending timer's generation so a callback
// that already fired is ignored.
func (m *Machine) cancelForget() Effect {
	m.forgetPending = false
	m.forgetGen++
	return CancelForget{}
}

func (m *Machine) reset() {
	m.attempts = 0
	m.lastMatched = nil
	m.everMatched = false
	m.inFlight = false
	m.forgetPending = false
	m.forgetGen++
	m.cameraOpen = false
	m.lastFrame = nil
	m.ended = false
}

func (m *Machine) notify() Notify {
	return Notify{State: m.state, Identity: m.lastMatched, Attempts: m.attempts}
}
