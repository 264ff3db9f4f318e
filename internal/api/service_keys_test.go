package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arvik-health/medgate/internal/utils"
)

func newKeysRouter(t *testing.T, userID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api", asUser(userID))
	g.POST("/keys", CreateServiceKey)
	g.GET("/keys", ListServiceKeys)
	g.DELETE("/keys/:id", RevokeServiceKey)
	return r
}

func TestCreateServiceKey(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newKeysRouter(t, userID)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO service_keys")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/keys", bytes.NewBufferString(`{"name":"ci uploader"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Key       string `json:"key"`
		KeyPrefix string `json:"key_prefix"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !utils.LooksLikeServiceKey(resp.Key) {
		t.Fatalf("plaintext key has the wrong shape: %q", resp.Key)
	}
	if !strings.HasPrefix(resp.Key, resp.KeyPrefix) {
		t.Fatalf("prefix %q does not match key %q", resp.KeyPrefix, resp.Key)
	}
	if resp.Name != "ci uploader" {
		t.Fatalf("unexpected name %q", resp.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}

func TestCreateServiceKeyRequiresName(t *testing.T) {
	r := newKeysRouter(t, uuid.New())

	for _, body := range []string{`{}`, `{"name":"   "}`, ``} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/keys", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: expected 422, got %d", body, w.Code)
		}
	}
}

func TestRevokeServiceKey(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	keyID := uuid.New()
	r := newKeysRouter(t, userID)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_keys SET revoked_at=$1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/keys/"+keyID.String(), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRevokeServiceKeyTwice(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	keyID := uuid.New()
	r := newKeysRouter(t, userID)

	// revoked_at IS NULL no longer matches, so the second revoke is a 404
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_keys SET revoked_at=$1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/keys/"+keyID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
