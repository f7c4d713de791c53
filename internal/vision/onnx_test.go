package vision

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/whome/internal/config"
)

func TestONNXModel_InferenceWithoutSessions(t *testing.T) {
	m := NewONNXModel(config.VisionConfig{})
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Detect(context.Background(), img)
			assert.ErrorIs(t, err, ErrModelClosed)
			_, err = m.Describe(context.Background(), img, image.Rect(8, 8, 40, 40))
			assert.ErrorIs(t, err, ErrModelClosed)
		}()
	}
	m.Close()
	wg.Wait()

	_, err := m.Detect(context.Background(), img)
	assert.ErrorIs(t, err, ErrModelClosed)
}

func TestONNXLibPath(t *testing.T) {
	assert.Equal(t, "/opt/ort/libonnxruntime.so", onnxLibPath("/opt/ort/libonnxruntime.so"))
	assert.NotEmpty(t, onnxLibPath(""))
}
