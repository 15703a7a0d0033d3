package rest

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type ServerConfig struct {
	Sessions Sessions

	// Metrics serves the Prometheus scrape endpoint. Nil disables /metrics.
	Metrics http.Handler
}

// NewServer builds the ops HTTP server.
func NewServer(cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))
	e.Use(middleware.Recover())

	// Attach handlers
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Welcome to CGC")
	})
	e.GET("/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	// Attach session handlers
	controller := NewSessionController(cfg.Sessions)
	e.GET("/sessions", controller.ListSessions)
	e.POST("/sessions/stop-recording", controller.StopRecording)

	return e
}
