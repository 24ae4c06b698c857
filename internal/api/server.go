package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custsync/pkg/logger"
)

// NewServer builds the HTTP control surface
func NewServer(svc Service, log logger.Logger) *echo.Echo {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithField("component", "api")

	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":      v.Method,
				"uri":         v.URI,
				"status":      v.Status,
				"duration_ms": v.Latency.Milliseconds(),
				"request_id":  v.RequestID,
			}
			if v.Error != nil {
				log.WithError(v.Error).WarnWithFields("Request failed", fields)
				return nil
			}
			log.DebugWithFields("Request served", fields)
			return nil
		},
	}))

	RegisterRoutes(server, NewHandler(svc))

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return server
}
