package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

// HealthHandler reports process liveness and dependency readiness.
type HealthHandler struct {
	db      *gorm.DB
	breaker *circuitbreaker.CircuitBreaker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *gorm.DB, breaker *circuitbreaker.CircuitBreaker) *HealthHandler {
	return &HealthHandler{db: db, breaker: breaker}
}

// Health handles GET /health. The check degrades to 503 when the
// database is unreachable; an open analysis breaker is reported but
// does not fail the check, since stored reports remain servable.
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	database := "ok"

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"service":  "storyscope",
		"status":   "ok",
		"database": database,
		"breaker":  h.breaker.State(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
