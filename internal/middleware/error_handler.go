package middleware

import (
	"errors"

	"certverify-backend/internal/domain"
	"certverify-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var statusByError = []struct {
	err  error
	code int
}{
	{domain.ErrInvalidQuery, fiber.StatusBadRequest},
	{domain.ErrInvalidCertificate, fiber.StatusBadRequest},
	{domain.ErrInvalidStatus, fiber.StatusBadRequest},
	{domain.ErrInvalidConfirmation, fiber.StatusBadRequest},
	{domain.ErrDuplicateCertificateNumber, fiber.StatusConflict},
	{domain.ErrDuplicateFingerprint, fiber.StatusConflict},
	{domain.ErrDuplicateIssuerCode, fiber.StatusConflict},
	{domain.ErrNotFound, fiber.StatusNotFound},
	{domain.ErrInvalidAPIKey, fiber.StatusUnauthorized},
	{domain.ErrStoreUnavailable, fiber.StatusServiceUnavailable},
	{domain.ErrLedgerUnavailable, fiber.StatusServiceUnavailable},
}

// StatusFor maps a service error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler is the global error handler. Returns the standard error format.
// Internal failures are logged and never leak their text to the caller.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	message := err.Error()
	if code == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("unhandled error")
		message = "Internal Server Error"
	}
	return response.Error(c, message, code, nil)
}
