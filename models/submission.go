package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Upload status of a submission's file. A record only ever exists with a
// completed upload; the other values cover administrative bookkeeping of
// historical imports.
const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
	UploadFailed    = "failed"
)

// Moderation status set by admins reviewing entries.
const (
	ReviewSubmitted = "submitted"
	ReviewApproved  = "approved"
	ReviewRejected  = "rejected"
)

// Submission is a persisted competition entry: participant metadata plus the
// reference to the uploaded file. It is written exactly once by the upload
// pipeline and afterwards only read, moderated or deleted by the admin view.
type Submission struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Reference string `gorm:"size:36;uniqueIndex;not null" json:"reference"`

	Competition string `gorm:"size:32;index;not null" json:"competition"`
	Name        string `gorm:"size:128;not null" json:"name"`
	Email       string `gorm:"size:255;not null" json:"email"`
	School      string `gorm:"size:255;index" json:"school"`
	Category    string `gorm:"size:64;index" json:"category"`
	Title       string `gorm:"size:255" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	FileName string `gorm:"size:512;not null" json:"file_name"`
	FileSize int64  `gorm:"not null" json:"file_size"`
	MIMEType string `gorm:"size:128" json:"mime_type"`

	FileID       string `gorm:"size:128;not null" json:"file_id"`
	DownloadPage string `gorm:"size:1024;not null" json:"download_page"`
	DirectURL    string `gorm:"size:1024" json:"direct_url"`

	UploadStatus string    `gorm:"size:16;default:'completed'" json:"upload_status"`
	UploadedAt   time.Time `json:"uploaded_at"`
	// Set once at creation, never mutated afterwards.
	SubmittedAt time.Time `gorm:"index;not null" json:"submitted_at"`

	ReviewStatus string     `gorm:"size:16;index;default:'submitted'" json:"review_status"`
	ReviewedBy   string     `gorm:"size:128" json:"reviewed_by"`
	ReviewedAt   *time.Time `json:"reviewed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns the public reference and freezes SubmittedAt.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.Reference == "" {
		s.Reference = uuid.NewString()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now()
	}
	if s.UploadStatus == "" {
		s.UploadStatus = UploadCompleted
	}
	if s.ReviewStatus == "" {
		s.ReviewStatus = ReviewSubmitted
	}
	return nil
}
