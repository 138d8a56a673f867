package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
)

// Frame outcomes reported to metrics.
const (
	outcomeIdentified  = "identified"
	outcomeNoMatch     = "no_match"
	outcomeIdentifyErr = "identify_error"
	outcomePlaceholder = "placeholder"
)

// Identifier runs the frame identification pipeline.
type Identifier interface {
	Identify(ctx context.Context, frame image.Image) ([]domain.IdentificationResult, error)
}

// ResultFunc receives the best known result of each frame. It is called
// from the session goroutine and must not block.
type ResultFunc func(best domain.IdentificationResult)

type Config struct {
	Device      string
	MaxFPS      int
	JPEGQuality int
}

// Producer starts stream sessions on one configured device.
type Producer struct {
	opener     Opener
	identifier Identifier
	devices    *deviceLocks
	config     Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewProducer(opener Opener, identifier Identifier, config Config, m *metrics.Metrics, logger *slog.Logger) *Producer {
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = 80
	}
	return &Producer{
		opener:     opener,
		identifier: identifier,
		devices:    newDeviceLocks(),
		config:     config,
		metrics:    m,
		logger:     logger.With("component", "stream"),
	}
}

// Session is one running stream. Frames is closed when the session ends;
// Err then reports why. A nil Err means the session was stopped.
type Session struct {
	frames chan []byte
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	err      error
}

// Frames yields encoded JPEG frames in capture order.
func (s *Session) Frames() <-chan []byte {
	return s.frames
}

// Stop asks the session to end after the current frame. It does not wait.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the camera has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is valid after Done is closed.
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Start claims the device and launches the session goroutine. It fails
// only with ErrCameraBusy; an unavailable camera is reported through the
// session after the placeholder frame.
func (p *Producer) Start(ctx context.Context, onResult ResultFunc) (*Session, error) {
	release, err := p.devices.acquire(p.config.Device)
	if err != nil {
		return nil, err
	}

	s := &Session{
		frames: make(chan []byte, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	p.metrics.StreamStarted()
	go func() {
		defer p.metrics.StreamEnded()
		defer close(s.done)
		defer release()
		defer close(s.frames)

		s.err = p.run(ctx, s, onResult)
		if s.err != nil {
			p.logger.Error("stream ended", "device", p.config.Device, "error", s.err)
		} else {
			p.logger.Info("stream stopped", "device", p.config.Device)
		}
	}()

	return s, nil
}

func (p *Producer) run(ctx context.Context, s *Session, onResult ResultFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrCaptureFailed, r)
		}
	}()

	cam, err := p.opener.Open(ctx, p.config.Device)
	if err != nil {
		p.emitPlaceholder(ctx, s)
		if errors.Is(err, ErrCameraUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	defer func() {
		if cerr := cam.Close(); cerr != nil {
			p.logger.Warn("camera close failed", "device", p.config.Device, "error", cerr)
		}
	}()

	var interval time.Duration
	if p.config.MaxFPS > 0 {
		interval = time.Second / time.Duration(p.config.MaxFPS)
	}

	for {
		if stopped(ctx, s) {
			return nil
		}

		started := time.Now()

		frame, err := cam.Read(ctx)
		if err != nil {
			if stopped(ctx, s) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		results := p.identify(ctx, frame)
		best := recognition.Best(results)
		if best != nil {
			p.metrics.RecordFrame(outcomeIdentified)
			if onResult != nil {
				onResult(*best)
			}
		} else if results != nil {
			p.metrics.RecordFrame(outcomeNoMatch)
		}

		encoded, err := extractor.EncodeJPEG(Annotate(frame, results, best), p.config.JPEGQuality)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		if !emit(ctx, s, encoded) {
			return nil
		}

		if wait := interval - time.Since(started); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.stop:
				timer.Stop()
				return nil
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
		}
	}
}

// identify never fails the session: errors and panics from the pipeline
// count as a frame without faces. The returned slice is nil in that case.
func (p *Producer) identify(ctx context.Context, frame image.Image) (results []domain.IdentificationResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("identify panicked", "panic", r)
			p.metrics.RecordFrame(outcomeIdentifyErr)
			results = nil
		}
	}()

	results, err := p.identifier.Identify(ctx, frame)
	if err != nil {
		p.logger.Warn("identify failed", "error", err)
		p.metrics.RecordFrame(outcomeIdentifyErr)
		return nil
	}
	return results
}

func (p *Producer) emitPlaceholder(ctx context.Context, s *Session) {
	encoded, err := extractor.EncodeJPEG(Placeholder(), p.config.JPEGQuality)
	if err != nil {
		p.logger.Error("encode placeholder", "error", err)
		return
	}
	if emit(ctx, s, encoded) {
		p.metrics.RecordFrame(outcomePlaceholder)
	}
}

func emit(ctx context.Context, s *Session, frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func stopped(ctx context.Context, s *Session) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
