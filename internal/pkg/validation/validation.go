package validation

import (
	"fmt"
	"strconv"
	"strings"

	"certverify-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// PageFromQuery reads ?page= and ?limit= (or ?page_size=). Out-of-range values are clamped by
// PageRequest.Normalize; only non-numeric input is rejected.
func PageFromQuery(c *fiber.Ctx) (domain.PageRequest, error) {
	page, err := intParam(c.Query("page"))
	if err != nil {
		return domain.PageRequest{}, fmt.Errorf("%w: page must be a number", domain.ErrInvalidQuery)
	}
	raw := c.Query("limit")
	if raw == "" {
		raw = c.Query("page_size")
	}
	size, err := intParam(raw)
	if err != nil {
		return domain.PageRequest{}, fmt.Errorf("%w: limit must be a number", domain.ErrInvalidQuery)
	}
	return domain.PageRequest{Page: page, PageSize: size}.Normalize(), nil
}

func intParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// UUIDParam parses a route parameter; a malformed id cannot exist, so it maps to ErrNotFound.
func UUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrNotFound, name)
	}
	return id, nil
}
