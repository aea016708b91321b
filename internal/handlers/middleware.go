package handlers

import (
	"errors"
	"net/http"
	"strings"

	"labelguard/internal/service"

	"github.com/gin-gonic/gin"
)

const supervisorCtxKey = "supervisorId"

func (h *Handler) supervisorMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	supervisorID, err := h.services.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(supervisorCtxKey, supervisorID)
	c.Next()
}

// signUpGate lets anyone register the first supervisor. After that only a
// signed-in supervisor may add others.
func (h *Handler) signUpGate(c *gin.Context) {
	open, err := h.services.OpenSignUp()
	if err != nil {
		if errors.Is(err, service.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errNotAvailable})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to check supervisors", "sign_up_gate_failed", err)
		c.Abort()
		return
	}
	if open {
		c.Next()
		return
	}
	h.supervisorMiddleware(c)
}

// supervisorID returns the authenticated supervisor, or 0 on open routes.
func supervisorID(c *gin.Context) int {
	return c.GetInt(supervisorCtxKey)
}
