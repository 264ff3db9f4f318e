package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	database "github.com/arvik-health/medgate/internal"
)

const (
	documentStream    = "medgate:jobs:documents"
	documentGroup     = "medgate-workers"
	documentDLQStream = "medgate:jobs:documents:dead"
)

// DocumentJob is the queue payload for one uploaded document.
type DocumentJob struct {
	DocumentID  string `json:"document_id"`
	UserID      string `json:"user_id"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	EnqueuedAt  int64  `json:"enqueued_at"`
}

// JobProcessor runs the extract-embed-store pipeline for a job. A nil
// error acks the message; an error leaves it pending so the reclaimer
// redelivers it. Permanent failures are the processor's job to persist
// (document marked failed) before returning nil.
type JobProcessor func(ctx context.Context, job DocumentJob) error

var (
	queueRedis   *redis.Client
	docProcessor JobProcessor
)

// StartDocumentWorkers wires the queue. With Redis available it starts
// the consumer-group worker pool plus a reclaimer; without it (local
// dev) EnqueueDocument degrades to spawning the processor directly.
func StartDocumentWorkers(ctx context.Context, rc *redis.Client, processor JobProcessor) {
	queueRedis = rc
	docProcessor = processor
	if rc == nil {
		logger().Warn("redis not configured, processing documents in-process")
		return
	}

	_ = rc.XGroupCreateMkStream(ctx, documentStream, documentGroup, "$").Err()
	if p, err := rc.XPending(ctx, documentStream, documentGroup).Result(); err == nil && p != nil {
		logger().Info("document workers online", "pending", p.Count)
	}

	workers := parseEnvInt("MEDGATE_WORKERS", 4)
	readCount := parseEnvInt("MEDGATE_QUEUE_READ_COUNT", 4)

	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), i)
		go func(consumerName string) {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				streams, err := rc.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    documentGroup,
					Consumer: consumerName,
					Streams:  []string{documentStream, ">"},
					Count:    int64(readCount),
					Block:    5 * time.Second,
				}).Result()
				if err != nil && err != redis.Nil {
					select {
					case <-ctx.Done():
						return
					case <-time.After(500 * time.Millisecond):
					}
					continue
				}
				for _, s := range streams {
					for _, msg := range s.Messages {
						if processDocumentMessage(ctx, msg) {
							_, _ = rc.XAck(ctx, documentStream, documentGroup, msg.ID).Result()
						}
					}
				}
			}
		}(consumer)
	}

	go runReclaimer(ctx, rc)
}

// runReclaimer redelivers stale pending messages and dead-letters jobs
// that exceeded the delivery budget.
func runReclaimer(ctx context.Context, rc *redis.Client) {
	minIdle := time.Duration(parseEnvInt("MEDGATE_QUEUE_PENDING_IDLE_MS", 30000)) * time.Millisecond
	maxDeliveries := parseEnvInt("MEDGATE_JOB_MAX_DELIVERIES", 5)
	scanEvery := time.Duration(parseEnvInt("MEDGATE_QUEUE_RECLAIM_INTERVAL_MS", 10000)) * time.Millisecond
	batch := parseEnvInt("MEDGATE_QUEUE_AUTOCLAIM_BATCH", 10)
	reclaimer := fmt.Sprintf("reclaimer-%d", time.Now().UnixNano())

	ticker := time.NewTicker(scanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p, err := rc.XPending(ctx, documentStream, documentGroup).Result(); err == nil && p != nil {
			SetQueuePending("documents", p.Count)
		}

		pendings, err := rc.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: documentStream,
			Group:  documentGroup,
			Start:  "-",
			End:    "+",
			Count:  int64(batch),
		}).Result()
		if err != nil || len(pendings) == 0 {
			continue
		}
		for _, p := range pendings {
			if p.Idle < minIdle {
				continue
			}
			if int(p.RetryCount) >= maxDeliveries {
				deadLetter(ctx, rc, p)
				continue
			}
			claimed, err := rc.XClaim(ctx, &redis.XClaimArgs{
				Stream:   documentStream,
				Group:    documentGroup,
				Consumer: reclaimer,
				MinIdle:  minIdle,
				Messages: []string{p.ID},
			}).Result()
			if err != nil || len(claimed) == 0 {
				continue
			}
			for _, msg := range claimed {
				if processDocumentMessage(ctx, msg) {
					_, _ = rc.XAck(ctx, documentStream, documentGroup, msg.ID).Result()
				}
			}
		}
	}
}

func deadLetter(ctx context.Context, rc *redis.Client, p redis.XPendingExt) {
	var payload any = "missing"
	if msgs, _ := rc.XRange(ctx, documentStream, p.ID, p.ID).Result(); len(msgs) == 1 {
		payload = msgs[0].Values["payload"]
	}
	_, _ = rc.XAdd(ctx, &redis.XAddArgs{
		Stream: documentDLQStream,
		Values: map[string]any{
			"payload":    payload,
			"reason":     "max deliveries exceeded",
			"deliveries": p.RetryCount,
			"at":         time.Now().Unix(),
		},
	}).Result()
	RecordDLQInsert("documents", "max_deliveries_exceeded")
	if xlen, err := rc.XLen(ctx, documentDLQStream).Result(); err == nil {
		SetDLQDepth("documents", xlen)
	}
	_, _ = rc.XAck(ctx, documentStream, documentGroup, p.ID).Result()

	// the document is stuck; surface that instead of leaving it pending forever
	if payloadStr, ok := payload.(string); ok {
		var job DocumentJob
		if json.Unmarshal([]byte(payloadStr), &job) == nil && job.DocumentID != "" {
			_, _ = database.DB.Exec(
				`UPDATE documents SET status='failed', failure_reason=$1, updated_at=$2 WHERE id=$3 AND status <> 'completed'`,
				"processing retries exhausted", time.Now(), job.DocumentID)
		}
	}
}

// EnqueueDocument puts a job on the stream, or processes it in-process
// when Redis is absent.
func EnqueueDocument(ctx context.Context, job DocumentJob) error {
	job.EnqueuedAt = time.Now().Unix()
	if queueRedis == nil {
		if docProcessor == nil {
			return fmt.Errorf("document pipeline not started")
		}
		go func() {
			if err := docProcessor(context.Background(), job); err != nil {
				logger().Error("in-process document job failed", "document_id", job.DocumentID, "error", err)
			}
		}()
		return nil
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return queueRedis.XAdd(ctx, &redis.XAddArgs{
		Stream: documentStream,
		Values: map[string]any{"payload": string(b)},
	}).Err()
}

// processDocumentMessage parses the payload, skips work that is already
// done, and runs the processor. True means ack.
func processDocumentMessage(ctx context.Context, msg redis.XMessage) bool {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return true // malformed, drop
	}
	var job DocumentJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil || job.DocumentID == "" {
		return true
	}

	// idempotence: deleted or already-completed documents need no work
	var status string
	err := database.DB.GetContext(ctx, &status, `SELECT status FROM documents WHERE id=$1`, job.DocumentID)
	if err != nil {
		return true
	}
	if status == "completed" {
		return true
	}

	if docProcessor == nil {
		return false
	}
	if err := docProcessor(ctx, job); err != nil {
		logger().Warn("document job failed, leaving for retry",
			"document_id", job.DocumentID, "error", err)
		return false
	}
	return true
}

// queueEnabled reports whether jobs go through Redis (used by readiness).
func queueEnabled() bool { return queueRedis != nil }
