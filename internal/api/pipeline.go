package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/agentclient"
	"github.com/arvik-health/medgate/internal/extract"
	"github.com/arvik-health/medgate/internal/mesh"
	"github.com/arvik-health/medgate/internal/storage"
)

// Pipeline turns a stored upload into searchable chunks: extract text,
// split, embed through the agent, persist vectors.
type Pipeline struct {
	store  *storage.Store
	agents *agentclient.Client
	bus    mesh.Bus
}

func NewPipeline(store *storage.Store, agents *agentclient.Client, bus mesh.Bus) *Pipeline {
	return &Pipeline{store: store, agents: agents, bus: bus}
}

// Process is the queue's JobProcessor. Permanent failures (unreadable or
// unsupported content) mark the document failed and return nil so the job
// acks; transient failures (agent down) return the error so the message
// stays pending for redelivery.
func (p *Pipeline) Process(ctx context.Context, job DocumentJob) error {
	start := time.Now()
	now := time.Now()
	_, _ = database.DB.ExecContext(ctx,
		`UPDATE documents SET status='processing', updated_at=$1 WHERE id=$2`, now, job.DocumentID)

	docID, err := uuid.Parse(job.DocumentID)
	if err != nil {
		return p.fail(ctx, job, start, "invalid document id")
	}

	f, err := p.store.Open(job.StoragePath)
	if err != nil {
		return p.fail(ctx, job, start, "stored file missing")
	}
	text, err := extract.Text(job.Filename, f)
	f.Close()
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) {
			return p.fail(ctx, job, start, "unsupported document type")
		}
		return p.fail(ctx, job, start, fmt.Sprintf("could not read document: %v", err))
	}

	chunks := extract.Chunk(text, extract.DefaultChunkSize, extract.DefaultChunkOverlap)
	if len(chunks) == 0 {
		return p.fail(ctx, job, start, "document contains no extractable text")
	}

	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := p.agents.Embed(ctx, chunk, true)
		if err != nil {
			RecordJob("retried", time.Since(start))
			return fmt.Errorf("embed chunk %d of %s: %w", i, job.DocumentID, err)
		}
		embeddings[i] = vec
	}

	tx, err := database.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id=$1`, job.DocumentID); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}
	for i, chunk := range chunks {
		row := database.DocumentChunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    chunk,
			Embedding:  database.VectorLiteral(embeddings[i]),
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
			 VALUES (:document_id, :chunk_index, :content, CAST(:embedding AS vector))`, row); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status='completed', chunk_count=$1, failure_reason=NULL, updated_at=$2 WHERE id=$3`,
		len(chunks), time.Now(), job.DocumentID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	RecordJob("completed", time.Since(start))
	logger().Info("document processed",
		"document_id", job.DocumentID, "chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())
	if p.bus != nil {
		_ = mesh.PublishJSON(ctx, p.bus, mesh.TopicDocumentProcessed, map[string]any{
			"document_id": job.DocumentID,
			"user_id":     job.UserID,
			"chunks":      len(chunks),
		})
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, job DocumentJob, start time.Time, reason string) error {
	_, _ = database.DB.ExecContext(ctx,
		`UPDATE documents SET status='failed', failure_reason=$1, updated_at=$2 WHERE id=$3`,
		reason, time.Now(), job.DocumentID)
	RecordJob("failed", time.Since(start))
	logger().Warn("document processing failed", "document_id", job.DocumentID, "reason", reason)
	if p.bus != nil {
		_ = mesh.PublishJSON(ctx, p.bus, mesh.TopicDocumentFailed, map[string]any{
			"document_id": job.DocumentID,
			"user_id":     job.UserID,
			"reason":      reason,
		})
	}
	return nil
}
