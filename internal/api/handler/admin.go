package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

// AdminHandler exposes the circuit breaker's observation and override
// surface. All routes sit behind the admin token middleware.
type AdminHandler struct {
	breaker *circuitbreaker.CircuitBreaker
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(breaker *circuitbreaker.CircuitBreaker) *AdminHandler {
	return &AdminHandler{breaker: breaker}
}

// BreakerStatus handles GET /api/v1/admin/breaker.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) BreakerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.breaker.Snapshot())
}

// BreakerForceOpen handles POST /api/v1/admin/breaker/open. The breaker
// stays open until explicitly closed or reset.
func (h *AdminHandler) BreakerForceOpen(c *gin.Context) {
	h.breaker.ForceOpen()
	c.JSON(http.StatusOK, h.breaker.Snapshot())
}

// BreakerForceClose handles POST /api/v1/admin/breaker/close.
func (h *AdminHandler) BreakerForceClose(c *gin.Context) {
	h.breaker.ForceClose()
	c.JSON(http.StatusOK, h.breaker.Snapshot())
}

// BreakerReset handles POST /api/v1/admin/breaker/reset, returning the
// breaker to closed with cleared counters.
func (h *AdminHandler) BreakerReset(c *gin.Context) {
	h.breaker.Reset()
	c.JSON(http.StatusOK, h.breaker.Snapshot())
}
