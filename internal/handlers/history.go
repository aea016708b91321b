package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"labelguard/internal/models"
	"labelguard/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errLoadHistory  = "failed to load history"
	errLoadStats    = "failed to load statistics"
	errClearHistory = "failed to clear history"
	errExport       = "failed to export history"
	errStateInvalid = "invalid 'state'; use approved, rejected or error"
)

var exportContentTypes = map[string]string{
	service.ExportCSV:  "text/csv; charset=utf-8",
	service.ExportJSON: "application/json",
	service.ExportYAML: "application/yaml",
}

func validHistoryState(s string) bool {
	switch models.Outcome(s) {
	case "", models.OutcomeApproved, models.OutcomeRejected, models.OutcomeError:
		return true
	}
	return false
}

// @Summary      List validation history
// @Description  Ledger entries, most recent first. At most the last 100 validations are kept.
// @Tags         history
// @Produce      json
// @Param        from   query  string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"
// @Param        to     query  string  false  "End of range. Date-only treated as end of day."
// @Param        state  query  string  false  "Outcome"  Enums(approved,rejected,error)
// @Success      200    {object}  map[string]interface{}  "count, results"
// @Failure      400    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/history [get]
func (h *Handler) getHistory(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	state := strings.ToLower(strings.TrimSpace(c.Query("state")))
	if !validHistoryState(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errStateInvalid})
		return
	}

	results, err := h.services.History.List(c.Request.Context(), service.HistoryFilter{
		From:  from,
		To:    to,
		State: state,
	})
	if err != nil {
		h.logAndJSONError(c, statusFor(err), errLoadHistory, "history_list_failed", err, "state", state)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"results": results,
	})
}

// @Summary      Validation statistics
// @Tags         history
// @Produce      json
// @Success      200  {object}  service.HistoryStats
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/history/stats [get]
func (h *Handler) getHistoryStats(c *gin.Context) {
	stats, err := h.services.Stats(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, statusFor(err), errLoadStats, "history_stats_failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Export validation history
// @Description  Downloads the full ledger as csv, json or yaml.
// @Tags         history
// @Produce      text/csv,application/json,application/yaml
// @Param        format  query  string  false  "Export format"  Enums(csv,json,yaml)  default(csv)
// @Success      200
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/history/export [get]
func (h *Handler) exportHistory(c *gin.Context) {
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", service.ExportCSV)))

	// Buffer so a failed export still gets a JSON error instead of a truncated file.
	var buf bytes.Buffer
	if err := h.services.Export(c.Request.Context(), format, &buf); err != nil {
		msg := errExport
		if statusFor(err) == http.StatusBadRequest {
			msg = err.Error()
		}
		h.logAndJSONError(c, statusFor(err), msg, "history_export_failed", err, "format", format)
		return
	}

	filename := service.ExportFilename(format, time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, exportContentTypes[format], buf.Bytes())
}

// @Summary      Clear validation history
// @Tags         history
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/history [delete]
// @Security     BearerAuth
func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.services.Clear(c.Request.Context()); err != nil {
		h.logAndJSONError(c, statusFor(err), errClearHistory, "history_clear_failed", err)
		return
	}
	if h.log != nil {
		h.log.Infow("history_cleared", "supervisor_id", supervisorID(c))
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
