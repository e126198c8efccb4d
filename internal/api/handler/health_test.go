package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
)

func healthTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	breaker := circuitbreaker.New("generative", circuitbreaker.DefaultConfig())
	r := gin.New()
	r.GET("/health", NewHealthHandler(db, breaker).Health)
	return r, db
}

func TestHealthReportsServiceAndDependencies(t *testing.T) {
	r, _ := healthTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["service"] != "storyscope" || body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if body["database"] != "ok" {
		t.Errorf("database = %v, want ok", body["database"])
	}
	if body["breaker"] != string(circuitbreaker.StateClosed) {
		t.Errorf("breaker = %v, want closed", body["breaker"])
	}
}

func TestHealthDegradesWhenDatabaseUnreachable(t *testing.T) {
	r, db := healthTestRouter(t)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "degraded" || body["database"] != "unavailable" {
		t.Errorf("body = %v", body)
	}
}
