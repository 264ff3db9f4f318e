package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	database "github.com/arvik-health/medgate/internal"
)

func newHealthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Healthz)
	r.GET("/readyz", Readyz)
	return r
}

func setupPingableDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	old := database.DB
	database.DB = sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() {
		database.DB.Close()
		database.DB = old
	})
	return mock
}

func TestHealthz(t *testing.T) {
	r := newHealthRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReadyzReady(t *testing.T) {
	mock := setupPingableDB(t)
	mock.ExpectPing()

	r := newHealthRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReadyzDatabaseDown(t *testing.T) {
	mock := setupPingableDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	r := newHealthRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}
