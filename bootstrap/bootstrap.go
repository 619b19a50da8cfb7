// Package bootstrap builds the app for serverless hosts, which import it instead of internal/.
package bootstrap

import (
	"certverify-backend/internal/config"
	"certverify-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
)

// New loads config from the environment and wires the app. Connections stay open for the
// lifetime of the function instance.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, _, err := router.CreateApp(cfg)
	return app, err
}
