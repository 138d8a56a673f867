package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches by code so copies produced by WithError still satisfy errors.Is
// against the pre-defined value.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Missing subject identity",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Gate outcomes. These are routine business results, callers branch on them.
	ErrAlreadyMarked = &AppError{
		Code:       "ALREADY_MARKED",
		Message:    "Attendance already marked for today",
		StatusCode: 409,
	}

	ErrIdentityMismatch = &AppError{
		Code:       "IDENTITY_MISMATCH",
		Message:    "Detected face does not match the requesting subject",
		StatusCode: 403,
	}

	ErrLowConfidence = &AppError{
		Code:       "LOW_CONFIDENCE",
		Message:    "Identification confidence below the acceptance threshold",
		StatusCode: 422,
	}

	ErrNoRecentIdentification = &AppError{
		Code:       "NO_RECENT_IDENTIFICATION",
		Message:    "No recent identification for this subject, provide an image",
		StatusCode: 422,
	}

	// Recognition / capture errors
	ErrRecognitionUnavailable = &AppError{
		Code:       "RECOGNITION_UNAVAILABLE",
		Message:    "Face recognition service unavailable",
		StatusCode: 503,
	}

	ErrRegistryUnavailable = &AppError{
		Code:       "REGISTRY_UNAVAILABLE",
		Message:    "Known faces directory could not be loaded",
		StatusCode: 503,
	}

	ErrCameraUnavailable = &AppError{
		Code:       "CAMERA_UNAVAILABLE",
		Message:    "Camera source unavailable",
		StatusCode: 503,
	}

	ErrCameraBusy = &AppError{
		Code:       "CAMERA_BUSY",
		Message:    "Camera is in use by another stream",
		StatusCode: 409,
	}
)
