package handlers

import (
	"errors"
	"net/http"
	"strings"

	"labelguard/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errScan         = "failed to process scan"
	errConfirm      = "failed to confirm"
	errReset        = "failed to reset"
	errGetState     = "failed to load state"
	errEmptyCode    = "code must not be empty"
	errInvalidBody  = "invalid body: "
	errNotAvailable = "not available without the database"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrScanningLocked),
		errors.Is(err, service.ErrNothingToConfirm):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidAutoReset),
		errors.Is(err, service.ErrUnknownExportFormat),
		service.IsInvalidRange(err):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnavailable),
		errors.Is(err, service.ErrMachineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ScanRequest is the body of POST /api/v1/scan.
type ScanRequest struct {
	// Raw scanned text, exactly as read from the scanner.
	Code string `json:"code" binding:"required" example:"SN ABC12345"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Submit a scan
// @Description  Feeds one complete scanned token. Duplicates inside the dedup window are ignored and reported with "ignored": true.
// @Tags         validation
// @Accept       json
// @Produce      json
// @Param        body  body      ScanRequest  true  "Scan payload"
// @Success      200   {object}  models.Snapshot
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]interface{}  "scanning locked, current state attached"
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/scan [post]
func (h *Handler) scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errEmptyCode})
		return
	}

	snap, err := h.services.Scan(c.Request.Context(), req.Code)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, service.ErrDuplicateScan):
		c.JSON(http.StatusOK, gin.H{"ignored": true, "reason": err.Error(), "state": snap})
	case errors.Is(err, service.ErrScanningLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": snap})
	default:
		h.logAndJSONError(c, statusFor(err), errScan, "scan_failed", err)
	}
}

// @Summary      Confirm a rejection
// @Description  Silences the alarm and blocks the station until reset.
// @Tags         validation
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      409  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/confirm [post]
func (h *Handler) confirm(c *gin.Context) {
	snap, err := h.services.Confirm(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, service.ErrNothingToConfirm):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": snap})
	default:
		h.logAndJSONError(c, statusFor(err), errConfirm, "confirm_failed", err)
	}
}

// @Summary      Reset the station
// @Tags         validation
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/reset [post]
func (h *Handler) reset(c *gin.Context) {
	snap, err := h.services.Reset(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, statusFor(err), errReset, "reset_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Current validation state
// @Tags         validation
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/state [get]
func (h *Handler) getState(c *gin.Context) {
	snap, err := h.services.State(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, statusFor(err), errGetState, "get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
