package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func adminRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", AdminAuth(token), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	testCases := []struct {
		name       string
		token      string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token",
			token:      "secret",
			authHeader: "Bearer secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong token",
			token:      "secret",
			authHeader: "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing header",
			token:      "secret",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer header",
			token:      "secret",
			authHeader: "secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "admin disabled without token",
			token:      "",
			authHeader: "Bearer anything",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := adminRouter(tc.token)
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RateLimit(1, 2), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests = %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
}
