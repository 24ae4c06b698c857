package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"custsync/internal/runner"
	"custsync/pkg/coordinator"
	errs "custsync/pkg/errors"
	"custsync/pkg/models"
	"custsync/pkg/storage"
)

// Service is the control plane the handlers expose
type Service interface {
	Start(ctx context.Context, collection string, opts coordinator.Options) (*models.Job, *runner.Handle, error)
	Resume(ctx context.Context, target string, opts coordinator.Options) (*models.Job, *runner.Handle, error)
	Status(ctx context.Context, collection string) (*models.Job, error)
	History(ctx context.Context, collection string, limit int) ([]models.Job, error)
	Materialize(ctx context.Context, collection string) (string, error)
	Purge(ctx context.Context, collection string) (int64, error)
	Record(ctx context.Context, collection, externalID string) (*models.Record, error)
	Artifacts() ([]storage.Artifact, error)
	Cancel(jobID string) bool
}

type Handler struct {
	svc Service
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound, errs.KindEmptyCollection:
		return http.StatusNotFound
	case errs.KindConflict, errs.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	kind := errs.KindOf(err)
	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, apiResponse{Error: &errorBody{Code: string(kind), Message: msg}})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{Code: string(errs.KindValidation), Message: msg}})
}

func options(c echo.Context) (coordinator.Options, error) {
	var opts coordinator.Options
	if v := c.QueryParam("materialize_after"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, err
		}
		opts.MaterializeAfter = b
	}
	return opts, nil
}

// StartJob handles POST /api/v1/collections/:collection/jobs
func (h *Handler) StartJob(c echo.Context) error {
	opts, err := options(c)
	if err != nil {
		return badRequest(c, "materialize_after must be a boolean")
	}

	job, _, err := h.svc.Start(c.Request().Context(), c.Param("collection"), opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: job})
}

// ResumeJob handles POST /api/v1/jobs/:id/resume. The id may also be a
// collection name, which resumes its latest unfinished job.
func (h *Handler) ResumeJob(c echo.Context) error {
	opts, err := options(c)
	if err != nil {
		return badRequest(c, "materialize_after must be a boolean")
	}

	job, _, err := h.svc.Resume(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: job})
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *Handler) CancelJob(c echo.Context) error {
	id := c.Param("id")
	if !h.svc.Cancel(id) {
		return writeError(c, errs.NotFound("api.cancel", "job %s is not running in this process", id))
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: map[string]string{"job_id": id, "status": "cancelling"}})
}

// Status handles GET /api/v1/collections/:collection/status
func (h *Handler) Status(c echo.Context) error {
	job, err := h.svc.Status(c.Request().Context(), c.Param("collection"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: job})
}

// History handles GET /api/v1/collections/:collection/jobs
func (h *Handler) History(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	jobs, err := h.svc.History(c.Request().Context(), c.Param("collection"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: jobs})
}

// Materialize handles POST /api/v1/collections/:collection/materialize
func (h *Handler) Materialize(c echo.Context) error {
	path, err := h.svc.Materialize(c.Request().Context(), c.Param("collection"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: map[string]string{"path": path}})
}

// Purge handles DELETE /api/v1/collections/:collection/records
func (h *Handler) Purge(c echo.Context) error {
	n, err := h.svc.Purge(c.Request().Context(), c.Param("collection"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: map[string]int64{"deleted": n}})
}

type recordResponse struct {
	Collection      string          `json:"collection"`
	ExternalID      string          `json:"external_id"`
	Payload         json.RawMessage `json:"payload"`
	SourceTimestamp *time.Time      `json:"source_timestamp,omitempty"`
	CachedAt        time.Time       `json:"cached_at"`
}

// Record handles GET /api/v1/collections/:collection/records/:externalId
func (h *Handler) Record(c echo.Context) error {
	rec, err := h.svc.Record(c.Request().Context(), c.Param("collection"), c.Param("externalId"))
	if err != nil {
		return writeError(c, err)
	}

	resp := recordResponse{
		Collection: rec.Collection,
		ExternalID: rec.ExternalID,
		Payload:    json.RawMessage(rec.Payload),
		CachedAt:   rec.CachedTime(),
	}
	if !rec.SourceTimestamp.IsZero() {
		ts := rec.SourceTimestamp.UTC()
		resp.SourceTimestamp = &ts
	}
	return c.JSON(http.StatusOK, apiResponse{Data: resp})
}

// Artifacts handles GET /api/v1/artifacts
func (h *Handler) Artifacts(c echo.Context) error {
	artifacts, err := h.svc.Artifacts()
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: artifacts})
}
