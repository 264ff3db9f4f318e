package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document represents the 'documents' table. Content holds the extracted
// text once processing finishes; StoragePath points at the original file.
type Document struct {
	ID            uuid.UUID       `db:"id"`
	UserID        uuid.UUID       `db:"user_id"`
	Filename      string          `db:"filename"`
	ContentType   string          `db:"content_type"`
	SizeBytes     int64           `db:"size_bytes"`
	Checksum      string          `db:"checksum"`
	StoragePath   string          `db:"storage_path"`
	Status        string          `db:"status"` // pending, processing, completed, failed
	FailureReason *string         `db:"failure_reason"`
	Metadata      json.RawMessage `db:"metadata"`
	ChunkCount    int             `db:"chunk_count"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// DocumentChunk represents the 'document_chunks' table. Embedding is the
// pgvector column rendered as its text literal ("[0.1,0.2,...]").
type DocumentChunk struct {
	ID         uuid.UUID `db:"id"`
	DocumentID uuid.UUID `db:"document_id"`
	ChunkIndex int       `db:"chunk_index"`
	Content    string    `db:"content"`
	Embedding  string    `db:"embedding"`
	CreatedAt  time.Time `db:"created_at"`
}

// ChunkMatch is a similarity-search hit joined back to its document.
type ChunkMatch struct {
	DocumentID uuid.UUID `db:"document_id"`
	Filename   string    `db:"filename"`
	Content    string    `db:"content"`
	Similarity float64   `db:"similarity"`
}

// AgentSession represents the 'agent_sessions' table.
type AgentSession struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	Agent     string     `db:"agent"` // txagent or openai
	Status    string     `db:"status"`
	StartedAt time.Time  `db:"started_at"`
	EndedAt   *time.Time `db:"ended_at"`
}

// Consultation is the audit row persisted for every medical consultation.
type Consultation struct {
	ID                int64      `db:"id"` // bigserial
	UserID            uuid.UUID  `db:"user_id"`
	SessionID         *uuid.UUID `db:"session_id"`
	AgentID           string     `db:"agent_id"`
	EmergencyDetected bool       `db:"emergency_detected"`
	LatencyMs         int64      `db:"latency_ms"`
	CreatedAt         time.Time  `db:"created_at"`
}

// ServiceKey represents the 'service_keys' table. Only the bcrypt hash is
// stored; the plaintext key is shown once at creation.
type ServiceKey struct {
	ID         uuid.UUID  `db:"id"`
	UserID     uuid.UUID  `db:"user_id"`
	Name       string     `db:"name"`
	KeyPrefix  string     `db:"key_prefix"`
	KeyHash    string     `db:"key_hash"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}
