package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/pipeline"
	"github.com/deutschtag/germanday/utils"
)

// OrphanQueue records remote files left behind by failed commits and lets a
// background sweeper retry their deletion. Implements pipeline.OrphanSink.
type OrphanQueue struct {
	db          *gorm.DB
	maxAttempts int
}

// NewOrphanQueue creates an OrphanQueue. maxAttempts bounds delete retries
// per file before the row is dropped and left to manual cleanup.
func NewOrphanQueue(db *gorm.DB, maxAttempts int) *OrphanQueue {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &OrphanQueue{db: db, maxAttempts: maxAttempts}
}

// MarkOrphaned queues a remote file for deletion. Best-effort: a failed
// insert only loses the cleanup hint, never the submission outcome.
func (q *OrphanQueue) MarkOrphaned(ctx context.Context, fileID, reason string) {
	if fileID == "" {
		return
	}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}},
		DoNothing: true,
	}).Create(&models.OrphanedFile{FileID: fileID, Reason: reason}).Error
	if err != nil {
		utils.Sugar.Warnf("orphan queue insert failed for %s: %v", fileID, err)
	}
}

// StartSweeper launches a background goroutine that periodically deletes
// queued remote files through the storage client. It is best-effort and
// logs failures.
func (q *OrphanQueue) StartSweeper(d pipeline.Deleter, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			q.sweepOnce(d)
		}
	}()
}

func (q *OrphanQueue) sweepOnce(d pipeline.Deleter) {
	var items []models.OrphanedFile
	if err := q.db.Order("created_at").Limit(100).Find(&items).Error; err != nil {
		utils.Sugar.Warnf("orphan sweeper query failed: %v", err)
		return
	}
	for _, it := range items {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := d.Delete(ctx, it.FileID)
		cancel()
		if err == nil {
			if err := q.db.Delete(&models.OrphanedFile{}, it.ID).Error; err != nil {
				utils.Sugar.Warnf("orphan sweeper delete row failed: %v", err)
			}
			continue
		}
		if it.Attempts+1 >= q.maxAttempts {
			utils.Sugar.Warnf("orphan %s exceeded %d delete attempts, dropping: %v", it.FileID, q.maxAttempts, err)
			_ = q.db.Delete(&models.OrphanedFile{}, it.ID).Error
			continue
		}
		_ = q.db.Model(&models.OrphanedFile{}).Where("id = ?", it.ID).
			Update("attempts", gorm.Expr("attempts + 1")).Error
	}
}

// List returns queued orphans for admin visibility.
func (q *OrphanQueue) List(ctx context.Context, limit int) ([]models.OrphanedFile, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []models.OrphanedFile
	err := q.db.WithContext(ctx).Order("created_at").Limit(limit).Find(&items).Error
	return items, err
}
