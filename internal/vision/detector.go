package vision

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/observability"
)

// Detector finds exactly one face in an image.
type Detector struct {
	loader *Loader
}

func NewDetector(loader *Loader) *Detector {
	return &Detector{loader: loader}
}

// Ensure loads the underlying model.
func (d *Detector) Ensure(ctx context.Context) error {
	return d.loader.Ensure(ctx)
}

// DetectSingle returns nil when the model is not ready, when no face is
// found, or when more than one face makes the frame ambiguous.
func (d *Detector) DetectSingle(ctx context.Context, img image.Image) (*Detection, error) {
	if d.loader.State() != StateReady {
		return nil, nil
	}
	model := d.loader.Model()

	start := time.Now()
	faces, err := model.Detect(ctx, img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) != 1 {
		return nil, nil
	}

	return &Detection{
		Box:   faces[0].Box,
		Score: faces[0].Score,
		img:   img,
		model: model,
	}, nil
}

// Extract detects a single face and returns its descriptor, or nil when
// there is no single face.
func (d *Detector) Extract(ctx context.Context, img image.Image) (descriptor.Descriptor, error) {
	det, err := d.DetectSingle(ctx, img)
	if err != nil || det == nil {
		return nil, err
	}

	start := time.Now()
	desc, err := det.Descriptor(ctx)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract descriptor: %w", err)
	}
	return desc, nil
}
