package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

func adminTestRouter(breaker *circuitbreaker.CircuitBreaker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAdminHandler(breaker)
	r.GET("/breaker", h.BreakerStatus)
	r.POST("/breaker/open", h.BreakerForceOpen)
	r.POST("/breaker/close", h.BreakerForceClose)
	r.POST("/breaker/reset", h.BreakerReset)
	return r
}

func TestBreakerAdminEndpoints(t *testing.T) {
	breaker := circuitbreaker.New("generative", circuitbreaker.DefaultConfig())
	r := adminTestRouter(breaker)

	do := func(method, path string) circuitbreaker.Snapshot {
		t.Helper()
		req := httptest.NewRequest(method, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s: status = %d", method, path, w.Code)
		}
		var snapshot circuitbreaker.Snapshot
		if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return snapshot
	}

	if snapshot := do(http.MethodGet, "/breaker"); snapshot.State != circuitbreaker.StateClosed {
		t.Errorf("initial state = %s, want closed", snapshot.State)
	}

	if snapshot := do(http.MethodPost, "/breaker/open"); snapshot.State != circuitbreaker.StateOpen {
		t.Errorf("after force open: state = %s, want open", snapshot.State)
	}

	if snapshot := do(http.MethodPost, "/breaker/close"); snapshot.State != circuitbreaker.StateClosed {
		t.Errorf("after force close: state = %s, want closed", snapshot.State)
	}

	do(http.MethodPost, "/breaker/open")
	if snapshot := do(http.MethodPost, "/breaker/reset"); snapshot.State != circuitbreaker.StateClosed {
		t.Errorf("after reset: state = %s, want closed", snapshot.State)
	}
}
