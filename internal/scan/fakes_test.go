package scan

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/whome/internal/camera"
	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
)

type fakeTimer struct {
	after   time.Duration
	fire    func()
	stopped atomic.Bool
}

// fakeClock hands out a manually driven ticker and records timers so tests
// decide when they fire.
type fakeClock struct {
	tick chan time.Time

	mu     sync.Mutex
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{tick: make(chan time.Time)}
}

func (c *fakeClock) NewTicker(time.Duration) (<-chan time.Time, func()) {
	return c.tick, func() {}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := &fakeTimer{after: d, fire: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return func() bool { return !t.stopped.Swap(true) }
}

func (c *fakeClock) timerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// tryTick delivers a tick if the session loop is ready to take one.
func (c *fakeClock) tryTick() {
	select {
	case c.tick <- time.Now():
	default:
	}
}

type fakeStream struct {
	frame  image.Image
	closes atomic.Int32
}

func (s *fakeStream) Frame() (image.Image, error) {
	if s.closes.Load() > 0 {
		return nil, camera.ErrClosed
	}
	return s.frame, nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeSource struct {
	err error

	mu      sync.Mutex
	streams []*fakeStream
}

func (s *fakeSource) Open(ctx context.Context, id string) (camera.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	st := &fakeStream{frame: image.NewGray(image.Rect(0, 0, 4, 4))}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return st, nil
}

func (s *fakeSource) opened() []*fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeStream(nil), s.streams...)
}

// fakeExtractor returns scripted descriptors in order, then repeats the last.
type fakeExtractor struct {
	ensureErr error

	mu     sync.Mutex
	script []descriptor.Descriptor
	calls  int
}

func (e *fakeExtractor) Ensure(ctx context.Context) error { return e.ensureErr }

func (e *fakeExtractor) Extract(ctx context.Context, img image.Image) (descriptor.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if len(e.script) == 0 {
		return nil, nil
	}
	d := e.script[0]
	if len(e.script) > 1 {
		e.script = e.script[1:]
	}
	return d, nil
}

type staticGallery []Candidate

func (g staticGallery) Candidates(ctx context.Context) ([]Candidate, error) {
	return g, nil
}

func unitDescriptor(axis int) descriptor.Descriptor {
	d := make(descriptor.Descriptor, descriptor.Length)
	d[axis] = 1
	return d
}

func galleryOf(ids ...*models.Identity) staticGallery {
	g := make(staticGallery, len(ids))
	for i, id := range ids {
		g[i] = Candidate{Identity: id, Descriptor: unitDescriptor(i)}
	}
	return g
}
