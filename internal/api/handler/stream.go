package handler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
)

const streamBoundary = "frame"

// StreamProducer starts capture sessions on the camera.
type StreamProducer interface {
	Start(ctx context.Context, onResult stream.ResultFunc) (*stream.Session, error)
}

// ObserverFactory builds the per-frame callback for a subject's session.
type ObserverFactory func(subjectID string) stream.ResultFunc

type StreamHandler struct {
	// ctx outlives the request; fasthttp recycles the request context once
	// the handler returns, while the body writer keeps running.
	ctx      context.Context
	producer StreamProducer
	observer ObserverFactory
	logger   *slog.Logger
}

func NewStreamHandler(ctx context.Context, producer StreamProducer, observer ObserverFactory, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		ctx:      ctx,
		producer: producer,
		observer: observer,
		logger:   logger,
	}
}

// Stream handles GET /v1/stream as multipart/x-mixed-replace MJPEG. The
// session stops when the client goes away.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	subjectID, err := middleware.GetSubjectID(c)
	if err != nil {
		return err
	}

	var onResult stream.ResultFunc
	if h.observer != nil {
		onResult = h.observer(subjectID)
	}

	session, err := h.producer.Start(h.ctx, onResult)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+streamBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderConnection, "close")

	logger := h.logger.With("subject_id", subjectID)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer session.Stop()

		frames := 0
		for frame := range session.Frames() {
			if err := writePart(w, frame); err != nil {
				logger.Info("stream client disconnected", "frames", frames)
				return
			}
			frames++
		}

		if err := session.Err(); err != nil {
			logger.Warn("stream ended", "frames", frames, "error", err)
		}
	})

	return nil
}

func writePart(w *bufio.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
