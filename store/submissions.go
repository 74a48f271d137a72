// Package store holds the gorm-backed implementations of the pipeline's
// persistence interfaces.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/pipeline"
)

// SubmissionStore persists finalized submissions. It implements
// pipeline.Recorder: exactly one write per submission, combining the draft
// with the upload result, with the timestamp assigned at persistence time.
type SubmissionStore struct {
	db *gorm.DB
}

// NewSubmissionStore creates a SubmissionStore.
func NewSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// Record writes the submission and returns its public reference.
func (s *SubmissionStore) Record(ctx context.Context, d pipeline.Draft, up pipeline.UploadResult) (string, error) {
	sub := models.Submission{
		Competition:  d.Competition,
		Name:         d.Name,
		Email:        d.Email,
		School:       d.School,
		Category:     d.Category,
		Title:        d.Title,
		Description:  d.Description,
		FileName:     d.File.Name,
		FileSize:     d.File.Size,
		MIMEType:     d.File.MIME,
		FileID:       up.FileID,
		DownloadPage: up.DownloadPage,
		DirectURL:    up.DirectURL,
		UploadStatus: models.UploadCompleted,
		UploadedAt:   up.UploadedAt,
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return "", err
	}
	return sub.Reference, nil
}
