package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUploadServerTimeout(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Duration
		want     time.Duration
	}{
		{"default upload budget", 2 * time.Minute, 4 * time.Minute},
		{"video-sized budget", 5 * time.Minute, 7 * time.Minute},
		{"unset budget falls back", 0, 4 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UploadServerTimeout(tt.deadline)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, tt.deadline, "server deadlines must outlast the upload budget")
		})
	}
}

func TestNewServerAppliesTimeouts(t *testing.T) {
	srv := NewServer(":0", nil, 4*time.Minute, 4*time.Minute)
	assert.Equal(t, 4*time.Minute, srv.ReadTimeout)
	assert.Equal(t, 4*time.Minute, srv.WriteTimeout)
}
