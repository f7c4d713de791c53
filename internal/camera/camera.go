// Package camera provides exclusive access to local capture devices.
package camera

import (
	"context"
	"errors"
	"image"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrUnknownCamera    = errors.New("unknown camera")
	ErrNoFrame          = errors.New("no frame captured yet")
	ErrClosed           = errors.New("camera closed")
	// ErrStreamEnded means the capture process died while the stream was open.
	ErrStreamEnded = errors.New("camera stream ended")
)

// Source opens camera streams by id.
type Source interface {
	Open(ctx context.Context, id string) (Stream, error)
}

// Stream is an open camera. Frame returns the most recent frame; Close
// releases the device and is safe to call more than once.
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}
