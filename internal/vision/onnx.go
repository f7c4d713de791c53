package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/whome/internal/config"
	"github.com/your-org/whome/internal/descriptor"
)

// ErrModelClosed is returned by inference on a model that is not loaded or
// has been closed.
var ErrModelClosed = errors.New("face model is not loaded")

// ONNXModel is the production Model: RetinaFace detection plus a
// 128-d embedding network, both through ONNX Runtime.
type ONNXModel struct {
	cfg config.VisionConfig

	// ORT sessions bind fixed tensors, so runs are serialised.
	mu       sync.Mutex
	detector *retinaFace
	embedder *embedder
}

func NewONNXModel(cfg config.VisionConfig) *ONNXModel {
	return &ONNXModel{cfg: cfg}
}

func (m *ONNXModel) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(onnxLibPath(m.cfg.ONNXLibPath))
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("init onnx runtime: %w", err)
		}
	}

	detPath := filepath.Join(m.cfg.ModelsDir, m.cfg.DetectorModel)
	slog.Info("loading detection model", "path", detPath)
	det, err := newRetinaFace(detPath, float32(m.cfg.DetectionThreshold))
	if err != nil {
		return fmt.Errorf("load detector: %w", err)
	}

	embPath := filepath.Join(m.cfg.ModelsDir, m.cfg.EmbedderModel)
	slog.Info("loading embedding model", "path", embPath)
	emb, err := newEmbedder(embPath, m.cfg.EmbedderInput, m.cfg.EmbedderOutput, m.cfg.EmbedderSize)
	if err != nil {
		det.close()
		return fmt.Errorf("load embedder: %w", err)
	}

	m.detector = det
	m.embedder = emb
	return nil
}

func (m *ONNXModel) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	m.mu.Lock()
	if m.detector == nil {
		m.mu.Unlock()
		return nil, ErrModelClosed
	}
	w, h := m.detector.inputW, m.detector.inputH
	m.mu.Unlock()

	bounds := img.Bounds()
	input := imageToFloat32CHW(img, w, h,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})

	raw, err := m.runDetect(input, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(raw))
	for _, d := range raw {
		box := image.Rect(int(d.BBox[0]), int(d.BBox[1]), int(d.BBox[2]), int(d.BBox[3])).Add(bounds.Min)
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{Box: box, Score: d.Confidence})
	}
	return faces, nil
}

func (m *ONNXModel) Describe(ctx context.Context, img image.Image, box image.Rectangle) (descriptor.Descriptor, error) {
	crop := cropFace(img, box)
	if crop == nil {
		return nil, fmt.Errorf("face box %v outside image %v", box, img.Bounds())
	}

	m.mu.Lock()
	if m.embedder == nil {
		m.mu.Unlock()
		return nil, ErrModelClosed
	}
	size := m.embedder.size
	m.mu.Unlock()

	input := imageToFloat32CHW(crop, size, size,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedder == nil {
		return nil, ErrModelClosed
	}
	return m.embedder.extract(input)
}

func (m *ONNXModel) runDetect(input []float32, w, h int) ([]rawDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector == nil {
		return nil, ErrModelClosed
	}
	return m.detector.detect(input, w, h)
}

func (m *ONNXModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector != nil {
		m.detector.close()
		m.detector = nil
	}
	if m.embedder != nil {
		m.embedder.close()
		m.embedder = nil
	}
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// onnxLibPath returns the configured ONNX Runtime shared library or the platform default.
func onnxLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
