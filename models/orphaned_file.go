package models

import "time"

// OrphanedFile records a remote file whose metadata commit failed, queued
// for deletion by the background sweeper.
type OrphanedFile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FileID    string    `gorm:"size:128;uniqueIndex;not null" json:"file_id"`
	Reason    string    `gorm:"size:512" json:"reason"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
