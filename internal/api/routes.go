package api

import "github.com/labstack/echo/v4"

func RegisterRoutes(server *echo.Echo, h *Handler) {
	v1 := server.Group("/api/v1")

	v1.POST("/collections/:collection/jobs", h.StartJob)
	v1.GET("/collections/:collection/jobs", h.History)
	v1.GET("/collections/:collection/status", h.Status)
	v1.POST("/collections/:collection/materialize", h.Materialize)
	v1.DELETE("/collections/:collection/records", h.Purge)
	v1.GET("/collections/:collection/records/:externalId", h.Record)
	v1.GET("/artifacts", h.Artifacts)

	v1.POST("/jobs/:id/resume", h.ResumeJob)
	v1.POST("/jobs/:id/cancel", h.CancelJob)
}
