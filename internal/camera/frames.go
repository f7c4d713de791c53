package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// maxFrameSize bounds a single JPEG read from the pipe.
const maxFrameSize = 10 * 1024 * 1024

// readJPEGFrames splits a stream of concatenated JPEG images and calls fn
// for each one. It tolerates an initial EOF while ffmpeg opens the device.
func readJPEGFrames(ctx context.Context, r io.Reader, fn func([]byte)) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if framesRead > 0 {
				return nil
			}
			if startupRetries < maxStartupRetries {
				startupRetries++
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("no frames received (waited %.1fs)", float64(startupRetries)*0.1)
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && framesRead > 0 {
				return nil
			}
			return err
		}

		framesRead++
		fn(frame)
		if framesRead == 1 {
			slog.Debug("first camera frame", "bytes", len(frame))
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
