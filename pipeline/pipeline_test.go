package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var posterConstraints = ConstraintSet{
	MaxBytes:         10 << 20,
	AllowedMIMETypes: []string{"image/png", "image/jpeg", "application/pdf"},
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		file    FileInfo
		cs      ConstraintSet
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "valid png within limit",
			file: FileInfo{Name: "poster.png", Size: 2 << 20, MIME: "image/png"},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "missing file",
			file: FileInfo{},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissing)
			},
		},
		{
			name: "zero size counts as missing",
			file: FileInfo{Name: "poster.png", Size: 0, MIME: "image/png"},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissing)
			},
		},
		{
			name: "15MB against a 10MB limit",
			file: FileInfo{Name: "poster.png", Size: 15 << 20, MIME: "image/png"},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				var tl *TooLargeError
				require.ErrorAs(t, err, &tl)
				assert.Equal(t, int64(15<<20), tl.Size)
				assert.Equal(t, int64(10<<20), tl.MaxBytes)
			},
		},
		{
			name: "exactly at the limit passes",
			file: FileInfo{Name: "poster.png", Size: 10 << 20, MIME: "image/png"},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "unsupported type",
			file: FileInfo{Name: "poster.gif", Size: 1 << 20, MIME: "image/gif"},
			cs:   posterConstraints,
			wantErr: func(t *testing.T, err error) {
				var ut *UnsupportedTypeError
				require.ErrorAs(t, err, &ut)
				assert.Equal(t, "image/gif", ut.MIME)
			},
		},
		{
			name: "empty allowed set accepts anything",
			file: FileInfo{Name: "clip.mp4", Size: 1 << 20, MIME: "video/mp4"},
			cs:   ConstraintSet{MaxBytes: 100 << 20},
			wantErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wantErr(t, Validate(tt.file, tt.cs))
		})
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	f := FileInfo{Name: "a.pdf", Size: 15 << 20, MIME: "application/pdf"}
	first := Validate(f, posterConstraints)
	second := Validate(f, posterConstraints)
	var tl1, tl2 *TooLargeError
	require.ErrorAs(t, first, &tl1)
	require.ErrorAs(t, second, &tl2)
	assert.Equal(t, tl1.Size, tl2.Size)
	assert.Equal(t, tl1.MaxBytes, tl2.MaxBytes)
}

// fakeUploader scripts one upload outcome and records how it was called.
type fakeUploader struct {
	result    UploadResult
	err       error
	calls     int
	reportPct []int
}

func (f *fakeUploader) Upload(ctx context.Context, name string, size int64, r io.Reader, progress ProgressFunc) (UploadResult, error) {
	f.calls++
	for _, pct := range f.reportPct {
		progress(pct)
	}
	if f.err != nil {
		return UploadResult{}, f.err
	}
	return f.result, nil
}

type fakeRecorder struct {
	ref    string
	err    error
	calls  int
	gotUp  UploadResult
	gotDrf Draft
}

func (f *fakeRecorder) Record(ctx context.Context, d Draft, up UploadResult) (string, error) {
	f.calls++
	f.gotDrf = d
	f.gotUp = up
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

type fakeDeleter struct {
	err     error
	deleted []string
}

func (f *fakeDeleter) Delete(ctx context.Context, fileID string) error {
	f.deleted = append(f.deleted, fileID)
	return f.err
}

type fakeOrphans struct {
	mu      sync.Mutex
	fileIDs []string
	reasons []string
}

func (f *fakeOrphans) MarkOrphaned(ctx context.Context, fileID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileIDs = append(f.fileIDs, fileID)
	f.reasons = append(f.reasons, reason)
}

func newDraft() Draft {
	return Draft{
		Competition: "poster",
		Name:        "Anika Rao",
		Email:       "anika@example.org",
		School:      "Goethe School Mumbai",
		Category:    "DSD Partner School",
		Title:       "Berlin bei Nacht",
		File:        FileInfo{Name: "poster.png", Size: 2 << 20, MIME: "image/png"},
	}
}

func TestRunSuccess(t *testing.T) {
	up := &fakeUploader{
		result:    UploadResult{FileID: "f-123", DownloadPage: "https://gofile.io/d/abc", UploadedAt: time.Now()},
		reportPct: []int{10, 40, 80},
	}
	rec := &fakeRecorder{ref: "ref-001"}
	p := &Pipeline{Uploader: up, Recorder: rec}

	s := NewSession(newDraft())
	ref, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "ref-001", ref)
	assert.Equal(t, StateSuccess, s.State())
	assert.Equal(t, 100, s.Progress())
	assert.Equal(t, "f-123", s.UploadedFileID())
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "f-123", rec.gotUp.FileID)
	assert.Equal(t, "poster", rec.gotDrf.Competition)
}

func TestRunValidationFailureStaysIdle(t *testing.T) {
	up := &fakeUploader{}
	rec := &fakeRecorder{}
	p := &Pipeline{Uploader: up, Recorder: rec}

	d := newDraft()
	d.File.Size = 15 << 20
	s := NewSession(d)

	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	var tl *TooLargeError
	require.ErrorAs(t, err, &tl)
	assert.Equal(t, StateIdle, s.State(), "validation failure must not leave idle")
	assert.Zero(t, up.calls, "no upload may be issued for an invalid file")
	assert.Zero(t, rec.calls)
}

func TestRunUploadFailure(t *testing.T) {
	up := &fakeUploader{err: &UploadError{Kind: UploadTimeout, Err: context.DeadlineExceeded}}
	rec := &fakeRecorder{}
	p := &Pipeline{Uploader: up, Recorder: rec}

	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, UploadTimeout, ue.Kind)
	assert.Equal(t, StateFailed, s.State())
	assert.Zero(t, rec.calls, "commit must never run without a completed upload")
}

func TestRunWrapsUnclassifiedUploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("connection reset")}
	p := &Pipeline{Uploader: up, Recorder: &fakeRecorder{}}

	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, UploadNetwork, ue.Kind)
}

func TestRunEmptyFileIDIsUploadFailure(t *testing.T) {
	up := &fakeUploader{result: UploadResult{FileID: ""}}
	rec := &fakeRecorder{}
	p := &Pipeline{Uploader: up, Recorder: rec}

	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, UploadMissingFileID, ue.Kind)
	assert.Equal(t, StateFailed, s.State())
	assert.Zero(t, rec.calls)
}

func TestRunCommitFailureCompensates(t *testing.T) {
	up := &fakeUploader{result: UploadResult{FileID: "f-55"}}
	rec := &fakeRecorder{err: errors.New("db gone")}
	del := &fakeDeleter{}
	orp := &fakeOrphans{}
	p := &Pipeline{Uploader: up, Recorder: rec, Deleter: del, Orphans: orp, Compensate: true}

	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []string{"f-55"}, del.deleted, "compensating delete should run once")
	assert.Empty(t, orp.fileIDs, "delete succeeded, nothing to queue")
	assert.Equal(t, "f-55", s.UploadedFileID(), "file id stays for manual reconciliation")
}

func TestRunCommitFailureQueuesOrphanWhenDeleteFails(t *testing.T) {
	up := &fakeUploader{result: UploadResult{FileID: "f-77"}}
	rec := &fakeRecorder{err: errors.New("db gone")}
	del := &fakeDeleter{err: errors.New("storage 503")}
	orp := &fakeOrphans{}
	p := &Pipeline{Uploader: up, Recorder: rec, Deleter: del, Orphans: orp, Compensate: true}

	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"f-77"}, orp.fileIDs)
}

func TestRunCommitFailureWithoutCompensationQueuesDirectly(t *testing.T) {
	up := &fakeUploader{result: UploadResult{FileID: "f-88"}}
	rec := &fakeRecorder{err: errors.New("db gone")}
	del := &fakeDeleter{}
	orp := &fakeOrphans{}
	p := &Pipeline{Uploader: up, Recorder: rec, Deleter: del, Orphans: orp, Compensate: false}

	s := NewSession(newDraft())
	_, _ = p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))

	assert.Empty(t, del.deleted)
	assert.Equal(t, []string{"f-88"}, orp.fileIDs)
}

// disconnectingUploader cancels the request context before returning, the
// way a client that gave up mid-submission does.
type disconnectingUploader struct {
	cancel context.CancelFunc
	result UploadResult
}

func (u *disconnectingUploader) Upload(ctx context.Context, name string, size int64, r io.Reader, progress ProgressFunc) (UploadResult, error) {
	u.cancel()
	return u.result, nil
}

// ctxHonoringDeleter refuses canceled contexts, matching how an HTTP-backed
// deleter behaves.
type ctxHonoringDeleter struct {
	deleted []string
}

func (d *ctxHonoringDeleter) Delete(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.deleted = append(d.deleted, fileID)
	return nil
}

// ctxHonoringOrphans drops writes on canceled contexts, matching how a
// database-backed queue behaves.
type ctxHonoringOrphans struct {
	fileIDs []string
}

func (o *ctxHonoringOrphans) MarkOrphaned(ctx context.Context, fileID, reason string) {
	if ctx.Err() != nil {
		return
	}
	o.fileIDs = append(o.fileIDs, fileID)
}

func TestRunCompensatingDeleteSurvivesClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := &disconnectingUploader{cancel: cancel, result: UploadResult{FileID: "f-66"}}
	rec := &fakeRecorder{err: context.Canceled}
	del := &ctxHonoringDeleter{}
	orp := &ctxHonoringOrphans{}
	p := &Pipeline{Uploader: up, Recorder: rec, Deleter: del, Orphans: orp, Compensate: true}

	s := NewSession(newDraft())
	_, err := p.Run(ctx, s, posterConstraints, strings.NewReader("data"))

	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"f-66"}, del.deleted, "compensating delete must not inherit the canceled request context")
	assert.Empty(t, orp.fileIDs)
}

func TestRunOrphanQueueSurvivesClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := &disconnectingUploader{cancel: cancel, result: UploadResult{FileID: "f-67"}}
	orp := &ctxHonoringOrphans{}
	p := &Pipeline{Uploader: up, Recorder: &fakeRecorder{err: context.Canceled}, Orphans: orp, Compensate: false}

	s := NewSession(newDraft())
	_, err := p.Run(ctx, s, posterConstraints, strings.NewReader("data"))

	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"f-67"}, orp.fileIDs, "orphan queueing must not inherit the canceled request context")
}

func TestRunRejectsNonIdleSession(t *testing.T) {
	p := &Pipeline{Uploader: &fakeUploader{result: UploadResult{FileID: "x"}}, Recorder: &fakeRecorder{ref: "r"}}
	s := NewSession(newDraft())
	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrNotIdle)
}

func TestSessionProgressMonotonicAndClamped(t *testing.T) {
	s := NewSession(newDraft())
	s.setProgress(30)
	s.setProgress(10) // must not go backwards
	assert.Equal(t, 30, s.Progress())
	s.setProgress(150)
	assert.Equal(t, 100, s.Progress())
	s.setProgress(-5)
	assert.Equal(t, 100, s.Progress())
}

func TestSessionRetryOnlyFromFailed(t *testing.T) {
	up := &fakeUploader{err: &UploadError{Kind: UploadNetwork}}
	p := &Pipeline{Uploader: up, Recorder: &fakeRecorder{}}

	d := newDraft()
	s := NewSession(d)
	assert.False(t, s.Retry(), "idle session has nothing to retry")

	_, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	require.Error(t, err)
	require.Equal(t, StateFailed, s.State())

	assert.True(t, s.Retry())
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Progress())
	assert.NoError(t, s.Err())
	assert.Equal(t, d.Name, s.Draft().Name, "retry preserves the typed draft")

	// A retried session can run again end to end.
	up.err = nil
	up.result = UploadResult{FileID: "f-2"}
	p.Recorder = &fakeRecorder{ref: "ref-2"}
	ref, err := p.Run(context.Background(), s, posterConstraints, strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "ref-2", ref)
}
