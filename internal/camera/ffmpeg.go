package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/whome/internal/config"
)

// FFmpegSource captures cameras through an ffmpeg child process that
// writes MJPEG frames to stdout.
type FFmpegSource struct {
	cfg    config.CameraConfig
	binary string
}

func NewFFmpegSource(cfg config.CameraConfig) *FFmpegSource {
	return &FFmpegSource{cfg: cfg, binary: "ffmpeg"}
}

func (s *FFmpegSource) Open(ctx context.Context, id string) (Stream, error) {
	input, ok := s.cfg.Devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	if err := checkDeviceAccess(input); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	st := &ffmpegStream{
		cancel: cancel,
		first:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go st.run(streamCtx, s.binary, buildArgs(input, s.cfg))

	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-st.first:
		slog.Info("camera opened", "camera", id, "input", input)
		return st, nil
	case <-st.done:
		return nil, fmt.Errorf("open camera %s: %w", id, st.exitErr())
	case <-timer.C:
		_ = st.Close()
		return nil, fmt.Errorf("open camera %s: no frame within %s", id, s.cfg.StartTimeout)
	case <-ctx.Done():
		_ = st.Close()
		return nil, ctx.Err()
	}
}

// checkDeviceAccess probes local device nodes so a permission problem is
// reported before ffmpeg is started.
func checkDeviceAccess(input string) error {
	if !strings.HasPrefix(input, "/dev/") {
		return nil
	}
	f, err := os.Open(input)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, input)
		}
		return fmt.Errorf("open device %s: %w", input, err)
	}
	return f.Close()
}

// buildArgs returns the ffmpeg arguments for a device path or stream URL.
func buildArgs(input string, cfg config.CameraConfig) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(input, "rtsp://") || strings.HasPrefix(input, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000",
		)
	case strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	default:
		args = append(args,
			"-f", cfg.InputFormat,
			"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"-framerate", strconv.Itoa(cfg.FPS),
		)
	}

	return append(args,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", cfg.FPS, cfg.Width, cfg.Height),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// isPermissionError reports whether an ffmpeg stderr line signals an access problem.
func isPermissionError(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "permission denied") || strings.Contains(l, "operation not permitted")
}

type ffmpegStream struct {
	cancel context.CancelFunc
	first  chan struct{}
	done   chan struct{}

	mu         sync.Mutex
	latest     []byte
	err        error
	permission bool
	closed     bool
	firstOnce  sync.Once
	closeOnce  sync.Once
}

func (st *ffmpegStream) run(ctx context.Context, binary string, args []string) {
	defer close(st.done)

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		st.setErr(fmt.Errorf("ffmpeg stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		st.setErr(fmt.Errorf("ffmpeg stderr pipe: %w", err))
		return
	}
	if err := cmd.Start(); err != nil {
		st.setErr(fmt.Errorf("start ffmpeg: %w", err))
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if isPermissionError(line) {
				st.mu.Lock()
				st.permission = true
				st.mu.Unlock()
			}
			slog.Warn("ffmpeg stderr", "output", line)
		}
	}()

	readErr := readJPEGFrames(ctx, stdout, func(frame []byte) {
		st.mu.Lock()
		st.latest = frame
		st.mu.Unlock()
		st.firstOnce.Do(func() { close(st.first) })
	})
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return
	}
	if readErr != nil {
		st.setErr(readErr)
	} else if waitErr != nil {
		st.setErr(fmt.Errorf("ffmpeg exited: %w", waitErr))
	}
}

func (st *ffmpegStream) setErr(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}

// exitErr classifies why the process ended.
func (st *ffmpegStream) exitErr() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.permission {
		return ErrPermissionDenied
	}
	if st.err != nil {
		return st.err
	}
	return errors.New("ffmpeg exited")
}

func (st *ffmpegStream) Frame() (image.Image, error) {
	st.mu.Lock()
	closed, data := st.closed, st.latest
	st.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	select {
	case <-st.done:
		return nil, fmt.Errorf("%w: %w", ErrStreamEnded, st.exitErr())
	default:
	}
	if data == nil {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (st *ffmpegStream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		st.mu.Unlock()
		st.cancel()
		<-st.done
	})
	return nil
}
