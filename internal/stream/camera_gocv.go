//go:build gocv

package stream

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

func init() {
	registerBackend("gocv", func(cfg CameraConfig) Opener {
		return &GoCVOpener{ReadTimeout: cfg.ReadTimeout}
	})
}

// GoCVOpener captures from a local device through OpenCV. Numeric device
// names are treated as camera indexes.
type GoCVOpener struct {
	ReadTimeout time.Duration
}

type gocvFrame struct {
	img image.Image
	err error
}

func (o *GoCVOpener) Open(ctx context.Context, device string) (Camera, error) {
	var source interface{} = device
	if id, err := strconv.Atoi(device); err == nil {
		source = id
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, device, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("%w: %s: device not opened", ErrCameraUnavailable, device)
	}

	cam := &gocvCamera{
		frames:  make(chan gocvFrame),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: o.ReadTimeout,
	}
	go cam.loop(capture)

	return cam, nil
}

// gocvCamera owns the VideoCapture from a single goroutine; OpenCV
// handles are not safe for concurrent use.
type gocvCamera struct {
	frames  chan gocvFrame
	stop    chan struct{}
	done    chan struct{}
	timeout time.Duration

	closeOnce sync.Once
}

func (c *gocvCamera) loop(capture *gocv.VideoCapture) {
	defer close(c.done)
	defer capture.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		var frame gocvFrame
		if ok := capture.Read(&mat); !ok || mat.Empty() {
			frame.err = fmt.Errorf("read returned no frame")
		} else {
			frame.img, frame.err = mat.ToImage()
		}

		select {
		case c.frames <- frame:
		case <-c.stop:
			return
		}
		if frame.err != nil {
			return
		}
	}
}

func (c *gocvCamera) Read(ctx context.Context) (image.Image, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case frame := <-c.frames:
		return frame.img, frame.err
	case <-c.done:
		return nil, fmt.Errorf("capture closed")
	case <-timer.C:
		return nil, ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the capture goroutine. A read stuck in the driver is left
// to finish on its own after the timeout.
func (c *gocvCamera) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		select {
		case <-c.done:
		case <-time.After(c.timeout):
		}
	})
	return nil
}
