package health

import (
	"crypto/subtle"

	healthsvc "certverify-backend/internal/application/health"
	"certverify-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const serviceName = "certverify-api"

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Service  *healthsvc.Service
	AdminKey string
}

// Reset clears health stats in Redis. Requires query key=ADMIN_KEY.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" || h.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.AdminKey)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if err := h.Service.Reset(c.UserContext()); err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON GET /health/json. Answers 503 when a required dependency is down.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	r := h.Service.Collect(c.UserContext())
	code := fiber.StatusOK
	if r.Status != healthsvc.StatusOK {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service":      serviceName,
		"status":       r.Status,
		"runtime":      r.Runtime,
		"traffic":      r.Traffic,
		"dependencies": r.Dependencies,
	})
}

// Errors GET /health/errors returns the last 50 logged 5xx responses.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	entries, err := h.Service.RecentErrors(c.UserContext(), 50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON([]interface{}{})
	}
	return c.JSON(entries)
}
