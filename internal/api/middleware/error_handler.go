package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// retryAfterSeconds is sent with 503s. Camera and recognition backends
// usually recover within a few seconds.
const retryAfterSeconds = "5"

// Codes for errors raised by fiber itself rather than by a handler.
var fiberErrorCodes = map[int]string{
	fiber.StatusNotFound:              "NOT_FOUND",
	fiber.StatusMethodNotAllowed:      "METHOD_NOT_ALLOWED",
	fiber.StatusRequestEntityTooLarge: "IMAGE_TOO_LARGE",
	fiber.StatusUpgradeRequired:       "UPGRADE_REQUIRED",
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("request failed",
					slog.String("code", appErr.Code),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
					slog.String("request_id", requestID(c)),
				)
			}
			if appErr.StatusCode == fiber.StatusServiceUnavailable {
				c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
			}
			return writeError(c, appErr.StatusCode, appErr.Code, appErr.Message)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code, ok := fiberErrorCodes[fiberErr.Code]
			if !ok {
				code = "HTTP_ERROR"
			}
			return writeError(c, fiberErr.Code, code, fiberErr.Message)
		}

		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID(c)),
		)
		return writeError(c, domain.ErrInternal.StatusCode, domain.ErrInternal.Code, domain.ErrInternal.Message)
	}
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": errorBody{
			Code:      code,
			Message:   message,
			RequestID: requestID(c),
		},
	})
}
