package handlers

import (
	"net/http"

	"labelguard/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	errGetConfig    = "failed to load configuration"
	errUpdateConfig = "failed to update configuration"
)

// ConfigRequest is the body of PUT /api/v1/config.
type ConfigRequest struct {
	// Seconds before an approved cycle resets itself; 1 to 10 in steps of 0.5.
	AutoResetSeconds float64 `json:"auto_reset_seconds" binding:"required" example:"3"`
	SoundEnabled     *bool   `json:"sound_enabled" binding:"required" example:"true"`
	StationID        *string `json:"station_id,omitempty" example:"ST-01"`
	LineID           *string `json:"line_id,omitempty" example:"L2"`
	ProductionLine   *string `json:"production_line,omitempty"`
	ProductModel     *string `json:"product_model,omitempty"`
	Voltage          *string `json:"voltage,omitempty" example:"220V"`
}

func (r ConfigRequest) toModel() models.ValidationConfig {
	return models.ValidationConfig{
		AutoResetSeconds: r.AutoResetSeconds,
		SoundEnabled:     *r.SoundEnabled,
		StationID:        r.StationID,
		LineID:           r.LineID,
		ProductionLine:   r.ProductionLine,
		ProductModel:     r.ProductModel,
		Voltage:          r.Voltage,
	}
}

// @Summary      Get validation configuration
// @Tags         config
// @Produce      json
// @Success      200  {object}  models.ValidationConfig
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/config [get]
func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.services.Configuration.Get(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, statusFor(err), errGetConfig, "config_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// @Summary      Update validation configuration
// @Description  Applies from the next validation on.
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        body  body      ConfigRequest  true  "Configuration"
// @Success      200   {object}  models.ValidationConfig
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/config [put]
// @Security     BearerAuth
func (h *Handler) updateConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	cfg, err := h.services.Configuration.Update(c.Request.Context(), req.toModel())
	if err != nil {
		msg := errUpdateConfig
		if statusFor(err) == http.StatusBadRequest {
			msg = err.Error()
		}
		h.logAndJSONError(c, statusFor(err), msg, "config_update_failed", err,
			"supervisor_id", supervisorID(c))
		return
	}
	c.JSON(http.StatusOK, cfg)
}
