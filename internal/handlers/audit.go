package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"labelguard/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errRange       = "'from' must be <= 'to'"
	errLoadAudit   = "failed to load audit events"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// parseRange reads the optional from/to query pair. A date-only 'to' is
// treated as the end of that day. It writes a 400 and returns false on error.
func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return time.Time{}, time.Time{}, false
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return time.Time{}, time.Time{}, false
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errRange})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// @Summary      List audit events
// @Description  Operator action trail. Filter by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         audit
// @Produce      json
// @Param        from  query   string  false  "Start of range"  example(2025-08-01)
// @Param        to    query   string  false  "End of range. Date-only treated as end of day."  example(2025-08-31)
// @Param        type       query  string  false  "Comma-separated event types, e.g. REJECTED,CONFIRMED,RESET"
// @Param        result_id  query  string  false  "Only events about this history entry"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/audit [get]
// @Security     BearerAuth
func (h *Handler) getAudit(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	f := service.LogFilter{
		From:     from,
		To:       to,
		ResultID: c.Query("result_id"),
	}
	if qs := c.Query("type"); qs != "" {
		f.Types = strings.Split(qs, ",")
	}

	events, err := h.services.AuditLog.List(c.Request.Context(), f)
	if err != nil {
		switch statusFor(err) {
		case http.StatusBadRequest:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case http.StatusServiceUnavailable:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotAvailable})
		default:
			h.logAndJSONError(c, statusFor(err), errLoadAudit, "audit_list_failed", err,
				"from", from, "to", to, "types", f.Types, "result_id", f.ResultID)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
