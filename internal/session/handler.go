package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lumeo-ai/lumeo/internal/shared"
)

const maxMetricsHours = 7 * 24

// Handler exposes session records and usage metrics over HTTP.
type Handler struct {
	store *Store
	log   *slog.Logger
}

func NewSessionHandler(store *Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/v1/sessions/:id", h.GetSession)
	e.GET("/v1/metrics", h.GetMetrics)
}

func (h *Handler) GetSession(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return shared.BadRequest("missing_session_id", "Session ID is required")
	}

	rec, err := h.store.GetRecord(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("session_not_found", "Session not found")
		}
		h.log.Error("failed to load session record", "session_id", id, "error", err)
		return shared.InternalError("session_lookup_failed", "Failed to load session")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetMetrics(c echo.Context) error {
	hours := 24
	if raw := c.QueryParam("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxMetricsHours {
			return shared.BadRequest("invalid_hours", "hours must be between 1 and 168")
		}
		hours = parsed
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.log.Error("failed to load metrics", "error", err)
		return shared.InternalError("metrics_lookup_failed", "Failed to load metrics")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"hours":   hours,
		"metrics": metrics,
	})
}
