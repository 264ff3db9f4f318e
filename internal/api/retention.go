package api

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/storage"
)

var (
	retentionOnce sync.Once
	retentionCron *cron.Cron
)

// StartRetentionScheduler runs the nightly cleanup: failed documents past
// their retention window are purged, and stored files whose database row
// is gone are swept off disk. MEDGATE_RETENTION_CRON overrides the
// schedule, MEDGATE_FAILED_RETENTION the window (default 30 days).
func StartRetentionScheduler(store *storage.Store) {
	retentionOnce.Do(func() {
		spec := os.Getenv("MEDGATE_RETENTION_CRON")
		if spec == "" {
			spec = "17 3 * * *"
		}
		retentionCron = cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
		if _, err := retentionCron.AddFunc(spec, func() { RunRetention(store) }); err != nil {
			logger().Error("retention schedule invalid", "spec", spec, "error", err)
			return
		}
		retentionCron.Start()
		logger().Info("retention scheduler started", "spec", spec)
	})
}

// StopRetentionScheduler halts the cron loop; a job already running is
// left to finish.
func StopRetentionScheduler() {
	if retentionCron != nil {
		retentionCron.Stop()
	}
}

// RunRetention executes one cleanup pass immediately.
func RunRetention(store *storage.Store) {
	window := 30 * 24 * time.Hour
	if raw := os.Getenv("MEDGATE_FAILED_RETENTION"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			window = d
		}
	}
	purgeFailedDocuments(store, time.Now().Add(-window))
	sweepOrphanedFiles(store)
}

func purgeFailedDocuments(store *storage.Store, cutoff time.Time) {
	var ids []uuid.UUID
	err := database.DB.Select(&ids,
		`SELECT id FROM documents WHERE status='failed' AND updated_at < $1`, cutoff)
	if err != nil {
		logger().Error("retention: list failed documents", "error", err)
		return
	}
	for _, id := range ids {
		if _, err := database.DB.Exec(`DELETE FROM documents WHERE id=$1`, id); err != nil {
			logger().Warn("retention: delete document row", "document_id", id, "error", err)
			continue
		}
		if err := store.Delete(id.String()); err != nil {
			logger().Warn("retention: delete stored file", "document_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		logger().Info("retention: purged failed documents", "count", len(ids))
	}
}

// sweepOrphanedFiles removes on-disk document directories with no matching
// row, which happens when a delete succeeded in the database but the file
// cleanup afterwards did not.
func sweepOrphanedFiles(store *storage.Store) {
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue // not a document directory
		}
		var exists bool
		if err := database.DB.Get(&exists,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id=$1)`, id); err != nil {
			continue
		}
		if exists {
			continue
		}
		if info, err := os.Stat(filepath.Join(store.Root(), e.Name())); err == nil {
			// give an in-flight upload time to land its row
			if time.Since(info.ModTime()) < time.Hour {
				continue
			}
		}
		if err := store.Delete(e.Name()); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logger().Info("retention: removed orphaned files", "count", removed)
	}
}
