package http

import (
	"errors"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// StatusHandler serves the last run snapshot of each report.
type StatusHandler struct {
	reader  repository.StatusReader
	reports []model.ReportIdentity
	log     logger.Logger
}

// NewStatusHandler creates a handler. reports are the configured inputs
// listed by GET /v1/status.
func NewStatusHandler(reader repository.StatusReader, reports []model.ReportIdentity, log logger.Logger) *StatusHandler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &StatusHandler{reader: reader, reports: reports, log: log.WithComponent("status-api")}
}

// RegisterRoutes mounts the handler on app.
func (h *StatusHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)
	v1 := app.Group("/v1")
	v1.Get("/status", h.ListStatus)
	v1.Get("/status/:checkpointKey", h.GetStatus)
}

// Health reports liveness.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// GetStatus returns the snapshot stored under the checkpoint key.
func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	key := c.Params("checkpointKey")
	snap, err := h.reader.GetStatus(c.UserContext(), key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "no run recorded for " + key,
		})
	}
	if err != nil {
		h.log.WithFields(map[string]interface{}{"checkpoint": key}).Errorf("failed to read status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "status_unavailable",
			"message": err.Error(),
		})
	}
	return c.JSON(snap)
}

type reportStatus struct {
	Checkpoint string                `json:"checkpoint"`
	ReportName string                `json:"report_name"`
	ReportID   string                `json:"report_id"`
	Last       *model.StatusSnapshot `json:"last_run"`
}

// ListStatus returns every configured report with its last snapshot, or
// null when the report has not run yet.
func (h *StatusHandler) ListStatus(c *fiber.Ctx) error {
	out := make([]reportStatus, 0, len(h.reports))
	for _, id := range h.reports {
		entry := reportStatus{Checkpoint: id.CheckpointKey(), ReportName: id.InputName, ReportID: id.ReportID}
		snap, err := h.reader.GetStatus(c.UserContext(), entry.Checkpoint)
		switch {
		case err == nil:
			entry.Last = snap
		case !errors.Is(err, apperrors.ErrNotFound):
			h.log.WithFields(map[string]interface{}{"checkpoint": entry.Checkpoint}).Errorf("failed to read status: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "status_unavailable",
				"message": err.Error(),
			})
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"reports": out})
}
