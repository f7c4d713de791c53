package vision

import (
	"context"
	"image"

	"github.com/your-org/whome/internal/descriptor"
)

// Model is the underlying face model. Load is called once by a Loader;
// Detect and Describe are only called after a successful Load.
type Model interface {
	Load(ctx context.Context) error
	// Detect returns every face above the model's confidence threshold.
	Detect(ctx context.Context, img image.Image) ([]Face, error)
	// Describe extracts the descriptor of the face inside box.
	Describe(ctx context.Context, img image.Image, box image.Rectangle) (descriptor.Descriptor, error)
	Close()
}

// Face is one raw detection.
type Face struct {
	Box   image.Rectangle
	Score float32
}

// Detection is a single unambiguous face found in an image.
type Detection struct {
	Box   image.Rectangle
	Score float32

	img   image.Image
	model Model
}

// Descriptor runs the extraction step for the detected face.
func (d *Detection) Descriptor(ctx context.Context) (descriptor.Descriptor, error) {
	return d.model.Describe(ctx, d.img, d.Box)
}
