package handler

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// extractAndValidateImage extracts and validates the image from the form
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	// 1. Extract file
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	// 2. Validate size
	if file.Size > maxImageSize || file.Size == 0 {
		return nil, domain.ErrInvalidImage
	}

	// 3. Validate Content-Type
	if !validImageTypes[file.Header.Get("Content-Type")] {
		return nil, domain.ErrInvalidImage
	}

	// 4. Read image bytes
	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}

// optionalImage behaves like extractAndValidateImage but returns nil bytes
// when the request carries no image part at all.
func optionalImage(c *fiber.Ctx) ([]byte, error) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["image"]) == 0 {
		return nil, nil
	}
	return extractAndValidateImage(c)
}
