package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
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
	"github.com/arvik-health/medgate/internal/agentclient"
	"github.com/arvik-health/medgate/internal/cache"
)

// newChatRouter stands up a real agent service behind httptest and points
// the gateway's client at it, with request signing on both ends.
func newChatRouter(t *testing.T, userID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	const secret = "gateway-agent-secret"
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("AGENT_HMAC_SECRET", secret)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := agent.NewServiceFromEnv(log)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)

	oldDeps := deps
	Configure(Deps{
		Agents: agentclient.New(srv.URL, secret, cache.NewEmbedCache(nil, time.Hour), log),
	})
	t.Cleanup(func() { deps = oldDeps })

	r := gin.New()
	g := r.Group("/api", asUser(userID))
	g.POST("/chat", Chat)
	g.POST("/medical-consultation", MedicalConsultation)
	return r
}

func TestChatEndToEnd(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	docID := uuid.New()
	r := newChatRouter(t, userID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM document_chunks c")).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "filename", "content", "similarity"}).
			AddRow(docID, "visit.pdf", "Prescribed metformin 500mg twice daily.", 0.81))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"query":"what medication was prescribed?"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp agent.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Response, "visit.pdf") || !strings.Contains(resp.Response, "metformin") {
		t.Fatalf("answer not grounded in the retrieved chunk: %q", resp.Response)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != docID.String() {
		t.Fatalf("sources not propagated: %+v", resp.Sources)
	}
}

func TestChatRetrievalFailureStillAnswers(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newChatRouter(t, userID)

	// retrieval failing softly must not fail the chat
	mock.ExpectQuery(regexp.QuoteMeta("FROM document_chunks c")).
		WillReturnError(io.ErrUnexpectedEOF)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"query":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp agent.ChatResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp.Response, "could not find anything") {
		t.Fatalf("expected the no-sources answer, got %q", resp.Response)
	}
}

func TestChatRequiresQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/chat", asUser(uuid.New()), Chat)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestChatAgentDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// a server that is already gone
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oldDeps := deps
	Configure(Deps{
		Agents: agentclient.New(srv.URL, "", cache.NewEmbedCache(nil, time.Hour), log),
	})
	t.Cleanup(func() { deps = oldDeps })

	r := gin.New()
	r.POST("/api/chat", asUser(uuid.New()), Chat)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"query":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "agent unavailable") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestConsultationEndToEnd(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newChatRouter(t, userID)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO consultations")).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/medical-consultation",
		bytes.NewBufferString(`{"query":"sudden chest pain and dizziness"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp agent.ConsultationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Safety.EmergencyDetected || resp.Recommendations.SuggestedAction != "seek_emergency_care" {
		t.Fatalf("emergency not escalated: %+v", resp)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}
