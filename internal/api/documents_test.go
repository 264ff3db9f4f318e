package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/storage"
)

func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
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

func asUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		setPrincipal(c, Principal{ID: id, Email: "u@example.com", Role: "authenticated"})
		c.Next()
	}
}

func newDocumentsRouter(t *testing.T, userID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	oldDeps := deps
	Configure(Deps{Store: st})
	t.Cleanup(func() { deps = oldDeps })

	r := gin.New()
	g := r.Group("/api", asUser(userID))
	g.POST("/documents", UploadDocument)
	g.GET("/documents", ListDocuments)
	g.GET("/documents/:id", GetDocument)
	g.GET("/documents/:id/status", GetDocumentStatus)
	g.DELETE("/documents/:id", DeleteDocument)
	return r
}

func multipartFile(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadRejectsExecutableRegardlessOfContentType(t *testing.T) {
	r := newDocumentsRouter(t, uuid.New())

	// declared MIME is on the allow-list; the extension gate still wins
	body, ct := multipartFile(t, "file", "notes.exe", "application/pdf", []byte("MZ..."))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "unsupported file extension") {
		t.Fatalf("expected extension rejection, got %s", w.Body.String())
	}
}

func TestUploadRejectsUnknownContentType(t *testing.T) {
	r := newDocumentsRouter(t, uuid.New())

	body, ct := multipartFile(t, "file", "notes.pdf", "application/octet-stream", []byte("%PDF-1.4"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "unsupported file type") {
		t.Fatalf("expected type rejection, got %s", w.Body.String())
	}
}

func TestUploadRejectsOversizeBody(t *testing.T) {
	t.Setenv("MEDGATE_MAX_UPLOAD_BYTES", "1024")
	r := newDocumentsRouter(t, uuid.New())

	body, ct := multipartFile(t, "file", "big.pdf", "application/pdf", bytes.Repeat([]byte("a"), 4096))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadMissingFileField(t *testing.T) {
	r := newDocumentsRouter(t, uuid.New())

	body, ct := multipartFile(t, "attachment", "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadAccepted(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newDocumentsRouter(t, userID)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	content := []byte("%PDF-1.4 hello")
	body, ct := multipartFile(t, "file", "visit summary.pdf", "application/pdf", content)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("expected pending status, got %q", resp.Status)
	}
	if resp.ContentLength != int64(len(content)) {
		t.Fatalf("expected %d bytes recorded, got %d", len(content), resp.ContentLength)
	}
	if _, err := uuid.Parse(resp.DocumentID); err != nil {
		t.Fatalf("document_id is not a uuid: %q", resp.DocumentID)
	}

	// the original must be on disk under the document's directory
	path := filepath.Join(deps.Store.Root(), resp.DocumentID, resp.Filename)
	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Fatal("stored file does not match the upload")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}

func TestGetDocumentStatus(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	docID := uuid.New()
	r := newDocumentsRouter(t, userID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, chunk_count, failure_reason FROM documents")).
		WithArgs(docID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "chunk_count", "failure_reason"}).
			AddRow("processing", 0, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/"+docID.String()+"/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		Chunks int    `json:"chunks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "processing" || resp.Chunks != 0 {
		t.Fatalf("unexpected status body: %s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db expectations: %v", err)
	}
}

func TestGetDocumentStatusBadID(t *testing.T) {
	r := newDocumentsRouter(t, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/not-a-uuid/status", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", w.Code)
	}
}

func TestListDocuments(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	r := newDocumentsRouter(t, userID)

	rows := sqlmock.NewRows([]string{"id", "filename", "content_type", "size_bytes", "status", "chunk_count", "created_at"}).
		AddRow(uuid.New(), "a.pdf", "application/pdf", 100, "completed", 3, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE user_id=$1 ORDER BY created_at DESC")).
		WithArgs(userID).
		WillReturnRows(rows)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"a.pdf"`) {
		t.Fatalf("expected listed document, got %s", w.Body.String())
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	docID := uuid.New()
	r := newDocumentsRouter(t, userID)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id=$1 AND user_id=$2")).
		WithArgs(docID, userID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
