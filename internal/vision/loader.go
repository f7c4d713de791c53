package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/whome/internal/observability"
)

// State is the lifecycle of a Loader.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader owns a Model and loads it at most once. A failed load stays failed
// until Reset is called.
type Loader struct {
	model Model

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func NewLoader(model Model) *Loader {
	return &Loader{model: model}
}

// Model returns the wrapped model.
func (l *Loader) Model() Model {
	return l.model
}

// State reports the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Ensure loads the model if needed and blocks until it is ready or failed.
// Concurrent callers share one load. Cancelling ctx stops the wait but not the load.
func (l *Loader) Ensure(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateReady:
		l.mu.Unlock()
		return nil
	case StateFailed:
		err := l.err
		l.mu.Unlock()
		return err
	case StateLoading:
		done := l.done
		l.mu.Unlock()
		select {
		case <-done:
			return l.result()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.state = StateLoading
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()
	observability.ModelState.Set(float64(StateLoading))

	go l.load(context.WithoutCancel(ctx), done)

	select {
	case <-done:
		return l.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) load(ctx context.Context, done chan struct{}) {
	start := time.Now()
	err := l.model.Load(ctx)
	observability.InferenceDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	l.mu.Lock()
	if err != nil {
		l.state = StateFailed
		l.err = fmt.Errorf("load face model: %w", err)
		slog.Error("face model load failed", "error", err)
	} else {
		l.state = StateReady
		slog.Info("face model ready", "duration", time.Since(start).String())
	}
	observability.ModelState.Set(float64(l.state))
	close(done)
	l.mu.Unlock()
}

func (l *Loader) result() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFailed {
		return l.err
	}
	return nil
}

// Reset returns a failed loader to uninitialized so the next Ensure retries.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFailed {
		l.state = StateUninitialized
		l.err = nil
		observability.ModelState.Set(float64(l.state))
	}
}

// Close releases the model if it was loaded.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReady {
		l.model.Close()
		l.state = StateUninitialized
	}
}
