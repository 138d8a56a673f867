package middleware

import (
	"errors"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

// HeaderSubjectID carries the authenticated subject, set by the upstream
// auth proxy.
const HeaderSubjectID = "X-Subject-ID"

const maxSubjectIDLength = 255

// Subject stores the X-Subject-ID header in the request locals. When
// required, requests without it are rejected with 401.
func Subject(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subjectID := strings.TrimSpace(c.Get(HeaderSubjectID))

		if subjectID == "" {
			if required {
				return domain.ErrUnauthorized
			}
			return c.Next()
		}

		if err := validateSubjectID(subjectID); err != nil {
			return domain.ErrValidationFailed.WithError(err)
		}

		c.Locals(ws.SubjectLocal, subjectID)
		return c.Next()
	}
}

// GetSubjectID retrieves the subject stored by Subject.
func GetSubjectID(c *fiber.Ctx) (string, error) {
	subjectID, ok := c.Locals(ws.SubjectLocal).(string)
	if !ok || subjectID == "" {
		return "", domain.ErrUnauthorized
	}
	return subjectID, nil
}

func validateSubjectID(id string) error {
	if len(id) > maxSubjectIDLength {
		return errors.New("subject id too long")
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 || strings.ContainsRune(id, '|') {
		return errors.New("subject id contains invalid characters")
	}
	if strings.EqualFold(id, domain.UnknownIdentity) {
		return errors.New("subject id is reserved")
	}
	return nil
}

func subjectID(c *fiber.Ctx) string {
	id, _ := c.Locals(ws.SubjectLocal).(string)
	return id
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	return id
}
