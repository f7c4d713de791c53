package scan

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/observability"
)

const waitFor = 2 * time.Second

func startSession(t *testing.T, cfg Config, ext *fakeExtractor, gallery CandidateSource) (*Session, *fakeClock, *fakeSource, <-chan StateChange) {
	t.Helper()
	clk := newFakeClock()
	src := &fakeSource{}
	stream, err := src.Open(context.Background(), "front")
	require.NoError(t, err)

	s := newSession(sessionParams{
		camera:    "front",
		surface:   "greet",
		cfg:       cfg,
		source:    src,
		stream:    stream,
		extractor: ext,
		gallery:   gallery,
		clock:     clk,
	})
	changes, _ := s.Subscribe()
	s.start()
	t.Cleanup(s.Stop)

	first := nextChange(t, changes)
	require.Equal(t, Scanning, first.State)
	return s, clk, src, changes
}

func nextChange(t *testing.T, ch <-chan StateChange) StateChange {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for state change")
		return StateChange{}
	}
}

// tickUntil keeps offering ticks until cond holds.
func tickUntil(t *testing.T, clk *fakeClock, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		clk.tryTick()
		return cond()
	}, waitFor, time.Millisecond)
}

func TestSession_RecognizesIdentity(t *testing.T) {
	x := newIdentity("x")
	ext := &fakeExtractor{script: []descriptor.Descriptor{unitDescriptor(0)}}
	s, clk, _, changes := startSession(t, greetConfig, ext, galleryOf(x))

	clk.tick <- time.Now()
	c := nextChange(t, changes)
	assert.Equal(t, Recognized, c.State)
	assert.Equal(t, x.ID, c.Identity.ID)
	assert.Equal(t, 1.0, c.Score)
	assert.True(t, c.CameraActive)
	assert.Equal(t, Recognized, s.Status().State)
}

func TestSession_StopPreventsPendingForget(t *testing.T) {
	x := newIdentity("x")
	ext := &fakeExtractor{script: []descriptor.Descriptor{unitDescriptor(0), nil}}
	s, clk, src, changes := startSession(t, greetConfig, ext, galleryOf(x))

	clk.tick <- time.Now()
	require.Equal(t, Recognized, nextChange(t, changes).State)

	tickUntil(t, clk, func() bool { return clk.timerCount() == 1 })
	timer := clk.lastTimer()
	assert.Equal(t, greetConfig.ForgetDelay, timer.after)

	s.Stop()
	assert.True(t, timer.stopped.Load(), "forget timer must be cancelled")
	assert.Equal(t, int32(1), src.opened()[0].closes.Load())

	before := s.Status()
	assert.Equal(t, Idle, before.State)

	// A callback that slipped past the cancel must not reach the session.
	fired := make(chan struct{})
	go func() {
		timer.fire()
		close(fired)
	}()
	select {
	case <-fired:
	case <-time.After(waitFor):
		t.Fatal("late forget callback blocked")
	}
	assert.Equal(t, before, s.Status())

	c := nextChange(t, changes)
	assert.Equal(t, Idle, c.State)
	_, open := <-changes
	assert.False(t, open, "subscription closes with the session")
}

func TestSession_ForgetTimerReturnsToScanning(t *testing.T) {
	x := newIdentity("x")
	ext := &fakeExtractor{script: []descriptor.Descriptor{unitDescriptor(0), nil}}
	_, clk, _, changes := startSession(t, greetConfig, ext, galleryOf(x))

	clk.tick <- time.Now()
	require.Equal(t, Recognized, nextChange(t, changes).State)

	tickUntil(t, clk, func() bool { return clk.timerCount() == 1 })
	clk.lastTimer().fire()

	c := nextChange(t, changes)
	assert.Equal(t, Scanning, c.State)
	assert.Nil(t, c.Identity)
}

func TestSession_ExhaustionHandsOffAndRetries(t *testing.T) {
	cfg := greetConfig
	cfg.MaxAttempts = 3
	ext := &fakeExtractor{}
	s, clk, src, changes := startSession(t, cfg, ext, galleryOf(newIdentity("x")))

	tickUntil(t, clk, func() bool { return s.Status().State == Exhausted })

	c := nextChange(t, changes)
	assert.Equal(t, Exhausted, c.State)
	assert.Equal(t, 3, c.Attempts)
	assert.True(t, c.HandOffReady)
	assert.False(t, c.CameraActive)
	assert.NotNil(t, s.HandOff())
	assert.Equal(t, int32(1), src.opened()[0].closes.Load())

	require.NoError(t, s.Retry(context.Background()))
	c = nextChange(t, changes)
	assert.Equal(t, Scanning, c.State)
	assert.Zero(t, c.Attempts)
	assert.Nil(t, s.HandOff())
	require.Len(t, src.opened(), 2)

	assert.ErrorIs(t, s.Retry(context.Background()), ErrNotExhausted)

	s.Stop()
	assert.Equal(t, int32(1), src.opened()[0].closes.Load())
	assert.Equal(t, int32(1), src.opened()[1].closes.Load())
	assert.ErrorIs(t, s.Retry(context.Background()), ErrSessionStopped)
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s, _, src, _ := startSession(t, greetConfig, &fakeExtractor{}, staticGallery(nil))

	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), src.opened()[0].closes.Load())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed after Stop")
	}
}

func TestSession_SubscribeAfterStop(t *testing.T) {
	s, _, _, _ := startSession(t, greetConfig, &fakeExtractor{}, staticGallery(nil))
	s.Stop()

	ch, unsubscribe := s.Subscribe()
	_, open := <-ch
	assert.False(t, open)
	unsubscribe()
}

func TestSession_Unsubscribe(t *testing.T) {
	s, _, _, _ := startSession(t, greetConfig, &fakeExtractor{}, staticGallery(nil))

	ch, unsubscribe := s.Subscribe()
	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	s.Stop()
}

func TestSession_StopOnRecognizeEndsSession(t *testing.T) {
	cfg := greetConfig
	cfg.StopOnRecognize = true
	x := newIdentity("x")
	ext := &fakeExtractor{script: []descriptor.Descriptor{unitDescriptor(0)}}
	s, clk, src, changes := startSession(t, cfg, ext, galleryOf(x))

	clk.tick <- time.Now()
	c := nextChange(t, changes)
	assert.Equal(t, Recognized, c.State)
	assert.False(t, c.CameraActive)

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session still running after recognition released the camera")
	}
	_, open := <-changes
	assert.False(t, open, "subscription closes when the session ends")

	// No more ticks are consumed.
	select {
	case clk.tick <- time.Now():
		t.Fatal("ended session took a tick")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, int32(1), src.opened()[0].closes.Load())
	assert.Equal(t, 1, ext.calls)

	final := s.Status()
	assert.Equal(t, Recognized, final.State)
	assert.Equal(t, x.ID, final.Identity.ID)

	s.Forget(x.ID)
	assert.ErrorIs(t, s.Retry(context.Background()), ErrSessionStopped)
	s.Stop()
	assert.Equal(t, Recognized, s.Status().State, "stopping an ended session keeps its final state")
	assert.Equal(t, int32(1), src.opened()[0].closes.Load())
}

func TestSession_ListenerOutlastsClientBuffer(t *testing.T) {
	s := newSession(sessionParams{camera: "drops", surface: "greet", cfg: greetConfig, clock: newFakeClock()})
	client, _ := s.Subscribe()
	listener, _ := s.subscribe(listenerBuffer, true)

	before := testutil.ToFloat64(observability.StateChangeDrops.WithLabelValues("drops", "client"))
	sent := clientBuffer + 4
	for i := 0; i < sent; i++ {
		s.publish(Notify{State: Scanning, Attempts: i})
	}

	assert.Len(t, client, clientBuffer)
	assert.Len(t, listener, sent)
	assert.Equal(t, float64(4), testutil.ToFloat64(observability.StateChangeDrops.WithLabelValues("drops", "client"))-before)
	assert.Zero(t, testutil.ToFloat64(observability.StateChangeDrops.WithLabelValues("drops", "listener")))
}
