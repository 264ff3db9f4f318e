package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/mesh"
)

// Upload acceptance is two independent allow-lists; a file must pass
// BOTH. The extension list is the hard gate: a .exe stays out no matter
// what content type the client declares.
var allowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
	"text/markdown":   {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".txt":  {},
	".md":   {},
	".docx": {},
}

func uploadLimit() int64 {
	return int64(parseEnvInt("MEDGATE_MAX_UPLOAD_BYTES", 50<<20))
}

type uploadResponse struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ContentLength int64  `json:"content_length"`
	Status        string `json:"status"`
}

// UploadDocument accepts one multipart file, screens it, stores it and
// queues processing. The size cap is enforced by MaxBytesReader before
// any of the content is looked at.
func UploadDocument(c *gin.Context) {
	principal, ok := CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	limit := uploadLimit()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RecordUpload("rejected_size")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("file exceeds the %d MiB limit", limit>>20),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form must include a 'file' field"})
		return
	}
	defer file.Close()

	if header.Size > limit {
		RecordUpload("rejected_size")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %d MiB limit", limit>>20),
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		RecordUpload("rejected_extension")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported file extension %q", ext),
		})
		return
	}

	declared := header.Header.Get("Content-Type")
	mediaType := declared
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		mediaType = parsed
	}
	if _, ok := allowedMimeTypes[mediaType]; !ok {
		RecordUpload("rejected_type")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported file type %q", mediaType),
		})
		return
	}

	docID := uuid.New()
	relPath, size, checksum, err := deps.Store.Save(docID.String(), header.Filename, file)
	if err != nil {
		RecordUpload("failed")
		logger().Error("store upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store the file"})
		return
	}

	metadata, _ := json.Marshal(map[string]string{
		"original_name": header.Filename,
		"declared_type": declared,
	})
	now := time.Now()
	_, err = database.DB.ExecContext(c.Request.Context(),
		`INSERT INTO documents (id, user_id, filename, content_type, size_bytes, checksum, storage_path, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $9)`,
		docID, principal.ID, filepath.Base(relPath), mediaType, size, checksum, relPath, metadata, now)
	if err != nil {
		RecordUpload("failed")
		logger().Error("insert document failed", "error", err)
		_ = deps.Store.Delete(docID.String())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record the document"})
		return
	}

	job := DocumentJob{
		DocumentID:  docID.String(),
		UserID:      principal.ID.String(),
		Filename:    filepath.Base(relPath),
		StoragePath: relPath,
	}
	if err := EnqueueDocument(c.Request.Context(), job); err != nil {
		logger().Error("enqueue document failed", "document_id", docID, "error", err)
	}
	if deps.Bus != nil {
		_ = mesh.PublishJSON(c.Request.Context(), deps.Bus, mesh.TopicDocumentReceived, map[string]any{
			"document_id": docID.String(),
			"user_id":     principal.ID.String(),
			"filename":    job.Filename,
			"size_bytes":  size,
		})
	}

	RecordUpload("accepted")
	c.JSON(http.StatusAccepted, uploadResponse{
		DocumentID:    docID.String(),
		Filename:      job.Filename,
		ContentLength: size,
		Status:        "pending",
	})
}

type documentSummary struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Filename    string    `db:"filename" json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Status      string    `db:"status" json:"status"`
	ChunkCount  int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ListDocuments returns the caller's documents, newest first.
func ListDocuments(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	docs := []documentSummary{}
	err := database.DB.SelectContext(c.Request.Context(), &docs,
		`SELECT id, filename, content_type, size_bytes, status, chunk_count, created_at
		 FROM documents WHERE user_id=$1 ORDER BY created_at DESC`, principal.ID)
	if err != nil {
		logger().Error("list documents failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GetDocument returns one document with its processing state. Lookups are
// owner-scoped; someone else's id is indistinguishable from a missing one.
func GetDocument(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	var doc database.Document
	err = database.DB.GetContext(c.Request.Context(), &doc,
		`SELECT id, user_id, filename, content_type, size_bytes, checksum, storage_path, status, failure_reason, metadata, chunk_count, created_at, updated_at
		 FROM documents WHERE id=$1 AND user_id=$2`, id, principal.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             doc.ID,
		"filename":       doc.Filename,
		"content_type":   doc.ContentType,
		"size_bytes":     doc.SizeBytes,
		"checksum":       doc.Checksum,
		"status":         doc.Status,
		"failure_reason": doc.FailureReason,
		"chunk_count":    doc.ChunkCount,
		"created_at":     doc.CreatedAt,
		"updated_at":     doc.UpdatedAt,
	})
}

// GetDocumentStatus is the lightweight poll target for upload progress.
func GetDocumentStatus(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	var row struct {
		Status        string  `db:"status"`
		ChunkCount    int     `db:"chunk_count"`
		FailureReason *string `db:"failure_reason"`
	}
	err = database.DB.GetContext(c.Request.Context(), &row,
		`SELECT status, chunk_count, failure_reason FROM documents WHERE id=$1 AND user_id=$2`,
		id, principal.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": row.Status,
		"chunks": row.ChunkCount,
		"error":  row.FailureReason,
	})
}

// DeleteDocument removes the row (chunks cascade) and the stored file.
func DeleteDocument(c *gin.Context) {
	principal, _ := CurrentPrincipal(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	res, err := database.DB.ExecContext(c.Request.Context(),
		`DELETE FROM documents WHERE id=$1 AND user_id=$2`, id, principal.ID)
	if err != nil {
		logger().Error("delete document failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete document"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if err := deps.Store.Delete(id.String()); err != nil {
		logger().Warn("stored file cleanup failed", "document_id", id, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}
