// Package visits turns scan state changes into queue events, and queue
// events into visit records and websocket broadcasts.
package visits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/scan"
	"github.com/your-org/whome/internal/storage"
	"github.com/your-org/whome/pkg/dto"
)

const publishTimeout = 5 * time.Second

// StateEvent converts a session state change to its wire form.
func StateEvent(sc scan.StateChange) *dto.ScanStateEvent {
	ev := &dto.ScanStateEvent{
		Camera:       sc.Camera,
		Surface:      sc.Surface,
		State:        sc.State.String(),
		Score:        sc.Score,
		Attempts:     sc.Attempts,
		CameraActive: sc.CameraActive,
		HandOffReady: sc.HandOffReady,
		OccurredAt:   sc.At.UTC().Format(time.RFC3339Nano),
	}
	if sc.Identity != nil {
		id := sc.Identity.ID
		ev.IdentityID = &id
		ev.IdentityName = sc.Identity.Name
	}
	return ev
}

type ScanPublisher interface {
	PublishScanEvent(ctx context.Context, ev *dto.ScanStateEvent) error
}

// Forwarder is a scan.Listener target. With no publisher configured events
// go straight to the local recorder.
type Forwarder struct {
	pub   ScanPublisher
	local *Recorder
}

func NewForwarder(pub ScanPublisher, local *Recorder) *Forwarder {
	return &Forwarder{pub: pub, local: local}
}

func (f *Forwarder) Listen(sc scan.StateChange) {
	ev := StateEvent(sc)
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if f.pub == nil {
		if err := f.local.OnScanState(ctx, ev); err != nil {
			slog.Error("record scan event", "camera", ev.Camera, "error", err)
		}
		return
	}
	if err := f.pub.PublishScanEvent(ctx, ev); err != nil {
		slog.Error("publish scan event", "camera", ev.Camera, "state", ev.State, "error", err)
	}
}

type Store interface {
	CreateScanEvent(ctx context.Context, ev *models.ScanEvent) error
	TouchLastGreeted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Broadcaster interface {
	BroadcastEvent(ev *dto.WSEvent)
}

// Recorder persists scan events, stamps last_greeted_at on recognitions and
// fans every event out to websocket clients.
type Recorder struct {
	store Store
	hub   Broadcaster
}

func NewRecorder(store Store, hub Broadcaster) *Recorder {
	return &Recorder{store: store, hub: hub}
}

func (r *Recorder) OnScanState(ctx context.Context, ev *dto.ScanStateEvent) error {
	occurred, err := time.Parse(time.RFC3339Nano, ev.OccurredAt)
	if err != nil {
		occurred = time.Now().UTC()
	}

	rec := &models.ScanEvent{
		Camera:     ev.Camera,
		Surface:    ev.Surface,
		State:      ev.State,
		IdentityID: ev.IdentityID,
		Score:      ev.Score,
		Attempts:   ev.Attempts,
		OccurredAt: occurred,
	}
	if err := r.store.CreateScanEvent(ctx, rec); err != nil {
		return fmt.Errorf("store scan event: %w", err)
	}

	if ev.State == scan.Recognized.String() && ev.IdentityID != nil {
		err := r.store.TouchLastGreeted(ctx, *ev.IdentityID, occurred)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("touch last greeted: %w", err)
		}
	}

	r.hub.BroadcastEvent(&dto.WSEvent{Type: dto.EventScanState, Camera: ev.Camera, Scan: ev})
	return nil
}

func (r *Recorder) OnRegistration(ctx context.Context, ev *dto.RegistrationEvent) error {
	r.hub.BroadcastEvent(&dto.WSEvent{Type: dto.EventRegistration, Registration: ev})
	return nil
}
