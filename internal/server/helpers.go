package server

import (
	"errors"
	"strings"
	"unicode"

	"rentonmap/internal/middleware"
	"rentonmap/internal/models"
	"rentonmap/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param), param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "conversationId" -> "conversation ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// bindJSON parses the body into req and validates it.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func bindJSON(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	if err := validation.Struct(req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, err)
		return errResponseWritten
	}
	return nil
}

// currentUserID returns the caller's id set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := middleware.UserID(c)
	return id
}

// mapServiceError picks the HTTP status for an error returned by a service.
func mapServiceError(err error) int {
	return models.StatusFor(err)
}

// respondServiceError writes err with its mapped status and logs server faults.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := mapServiceError(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(), "method", c.Method(), "error", err)
	}
	return models.RespondWithError(c, status, err)
}
