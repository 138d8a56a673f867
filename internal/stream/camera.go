// Package stream produces the live annotated MJPEG sequence: capture a
// frame, identify it, draw the overlay and hand the encoded JPEG to the
// transport.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

var (
	// ErrCameraUnavailable ends a session that could not open its camera.
	// The session still emits one placeholder frame first.
	ErrCameraUnavailable = domain.ErrCameraUnavailable

	// ErrCameraBusy is returned by Start when another session holds the device.
	ErrCameraBusy = domain.ErrCameraBusy

	// ErrCaptureFailed ends a session whose camera stopped delivering frames.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrReadTimeout is returned by Camera.Read when no frame arrives in time.
	ErrReadTimeout = errors.New("camera read timed out")
)

// Camera is an open capture device. Read blocks until the next frame, the
// read timeout or ctx expires. Close releases the device and is safe to
// call more than once.
type Camera interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens a capture device by name.
type Opener interface {
	Open(ctx context.Context, device string) (Camera, error)
}

type OpenerFunc func(ctx context.Context, device string) (Camera, error)

func (f OpenerFunc) Open(ctx context.Context, device string) (Camera, error) {
	return f(ctx, device)
}

// CameraConfig configures a capture backend.
type CameraConfig struct {
	Format      string
	ReadTimeout time.Duration
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]func(CameraConfig) Opener{}
)

func registerBackend(name string, factory func(CameraConfig) Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends lists the capture backends compiled into this binary.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewOpener returns the named capture backend. The gocv backend is only
// available when built with -tags gocv.
func NewOpener(backend string, cfg CameraConfig) (Opener, error) {
	backendsMu.RLock()
	factory, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown camera backend %q (available: %v)", backend, Backends())
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	return factory(cfg), nil
}

// deviceLocks hands out exclusive access to capture devices.
type deviceLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{held: make(map[string]struct{})}
}

// acquire returns a release func, or ErrCameraBusy if the device is held.
func (d *deviceLocks) acquire(device string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.held[device]; busy {
		return nil, ErrCameraBusy
	}
	d.held[device] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.held, device)
			d.mu.Unlock()
		})
	}, nil
}
