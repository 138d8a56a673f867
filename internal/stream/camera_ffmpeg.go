package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

func init() {
	registerBackend("ffmpeg", func(cfg CameraConfig) Opener {
		return &FFmpegOpener{Binary: "ffmpeg", Format: cfg.Format, ReadTimeout: cfg.ReadTimeout}
	})
}

// splitJPEG is a bufio.SplitFunc that yields whole JPEG images from an
// MJPEG byte stream, using the SOI and EOI markers.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// FFmpegOpener captures frames by running ffmpeg with MJPEG output on
// stdout.
type FFmpegOpener struct {
	Binary      string
	Format      string // ffmpeg input format, e.g. v4l2, avfoundation, dshow
	ReadTimeout time.Duration
}

func (o *FFmpegOpener) args(device string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if o.Format != "" {
		args = append(args, "-f", o.Format)
	}
	return append(args, "-i", device, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// Open starts ffmpeg and waits for the first frame, so a missing device
// is reported here rather than on the first Read.
func (o *FFmpegOpener) Open(ctx context.Context, device string) (Camera, error) {
	cmd := exec.Command(o.Binary, o.args(device)...)

	cam := &ffmpegCamera{
		cmd:     cmd,
		frames:  make(chan []byte, 1),
		done:    make(chan struct{}),
		timeout: o.ReadTimeout,
	}
	cmd.Stderr = &cam.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrCameraUnavailable, err)
	}

	go cam.scan(stdout)

	first, err := cam.next(ctx)
	if err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, device, err)
	}
	cam.pending = first

	return cam, nil
}

type ffmpegCamera struct {
	cmd     *exec.Cmd
	stderr  lockedBuffer
	frames  chan []byte
	done    chan struct{}
	scanErr error
	timeout time.Duration
	pending []byte

	closeOnce sync.Once
}

// scan keeps only the newest frame so a slow consumer sees live video
// instead of a growing backlog.
func (c *ffmpegCamera) scan(r io.Reader) {
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 16*megabyte)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		select {
		case c.frames <- frame:
		default:
			select {
			case <-c.frames:
			default:
			}
			c.frames <- frame
		}
	}

	if err := scanner.Err(); err != nil {
		c.scanErr = err
		return
	}
	c.scanErr = io.EOF
}

func (c *ffmpegCamera) next(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		// drain a frame that raced with EOF
		select {
		case frame := <-c.frames:
			return frame, nil
		default:
		}
		return nil, c.exitError()
	case <-timer.C:
		return nil, ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lockedBuffer collects ffmpeg stderr, which is written by the exec
// copier goroutine while a reader may already be reporting the exit.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 64*1024 {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (c *ffmpegCamera) exitError() error {
	msg := strings.TrimSpace(c.stderr.String())
	if msg == "" {
		return fmt.Errorf("ffmpeg stream ended: %w", c.scanErr)
	}
	return fmt.Errorf("ffmpeg stream ended: %w: %s", c.scanErr, msg)
}

func (c *ffmpegCamera) Read(ctx context.Context) (image.Image, error) {
	data := c.pending
	c.pending = nil

	if data == nil {
		var err error
		if data, err = c.next(ctx); err != nil {
			return nil, err
		}
	}

	return extractor.Decode(data)
}

func (c *ffmpegCamera) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		<-c.done
		if waitErr := c.cmd.Wait(); waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				err = waitErr
			}
		}
	})
	return err
}
