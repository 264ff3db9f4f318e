package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arvik-health/medgate/internal/agent"
	"github.com/arvik-health/medgate/internal/monitor"
)

func newSessionsRouter(t *testing.T, userID uuid.UUID, mon *monitor.Monitor) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	oldDeps := deps
	Configure(Deps{Monitor: mon})
	t.Cleanup(func() { deps = oldDeps })

	r := gin.New()
	g := r.Group("/api", asUser(userID))
	g.POST("/sessions", StartSession)
	g.GET("/sessions", ListSessions)
	g.POST("/sessions/:id/end", EndSession)
	return r
}

func healthyMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	mon := monitor.New(func(ctx context.Context) (agent.HealthResponse, time.Duration, error) {
		return agent.HealthResponse{Status: "healthy", ModelLoaded: true}, time.Millisecond, nil
	}, time.Hour)
	mon.Refresh(context.Background())
	return mon
}

func TestStartSession(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newSessionsRouter(t, userID, healthyMonitor(t))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM agent_sessions")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{"agent":"txagent"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"active"`) {
		t.Fatalf("expected active session, got %s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}

func TestStartSessionUnknownAgent(t *testing.T) {
	r := newSessionsRouter(t, uuid.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{"agent":"llama"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStartSessionAgentDown(t *testing.T) {
	mon := monitor.New(func(ctx context.Context) (agent.HealthResponse, time.Duration, error) {
		return agent.HealthResponse{}, 0, errors.New("connection refused")
	}, time.Hour)
	mon.Refresh(context.Background())
	r := newSessionsRouter(t, uuid.New(), mon)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while agent is down, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStartSessionAlreadyActive(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newSessionsRouter(t, userID, healthyMonitor(t))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM agent_sessions")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 with an active session, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already exists") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	sessID := uuid.New()
	r := newSessionsRouter(t, userID, nil)

	started := time.Now().Add(-time.Minute)
	ended := time.Now()

	// the session was already ended: the UPDATE touches nothing, the
	// SELECT still finds it, the handler still answers 200
	mock.ExpectExec(regexp.QuoteMeta("UPDATE agent_sessions SET status='ended'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM agent_sessions WHERE id=$1 AND user_id=$2")).
		WithArgs(sessID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "agent", "status", "started_at", "ended_at"}).
			AddRow(sessID, userID, "txagent", "ended", started, ended))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessID.String()+"/end", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"ended"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestEndSessionNotFound(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	sessID := uuid.New()
	r := newSessionsRouter(t, userID, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE agent_sessions SET status='ended'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM agent_sessions WHERE id=$1 AND user_id=$2")).
		WithArgs(sessID, userID).
		WillReturnError(errors.New("sql: no rows in result set"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessID.String()+"/end", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
