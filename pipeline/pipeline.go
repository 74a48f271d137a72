// Package pipeline implements the submission upload flow: validate the
// selected file, upload it to remote storage with progress reporting, then
// commit the submission metadata in a single write. The flow is modelled as
// an explicit state machine per form session so it can be exercised without
// an HTTP request in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// FileInfo describes the user-selected file as known before upload.
type FileInfo struct {
	Name string
	Size int64
	MIME string
}

// ConstraintSet governs validation for one competition/file kind.
type ConstraintSet struct {
	MaxBytes         int64    `json:"max_bytes"`
	AllowedMIMETypes []string `json:"allowed_mime_types"`
}

// ErrMissing is returned by Validate when no file was supplied.
var ErrMissing = errors.New("no file supplied")

// TooLargeError reports a file exceeding the configured maximum size.
type TooLargeError struct {
	Size     int64
	MaxBytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit %d", e.Size, e.MaxBytes)
}

// UnsupportedTypeError reports a MIME type outside the allowed set.
type UnsupportedTypeError struct {
	MIME string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q", e.MIME)
}

// Validate checks a file against a constraint set. Pure function, no side effects.
func Validate(f FileInfo, cs ConstraintSet) error {
	if f.Name == "" || f.Size <= 0 {
		return ErrMissing
	}
	if cs.MaxBytes > 0 && f.Size > cs.MaxBytes {
		return &TooLargeError{Size: f.Size, MaxBytes: cs.MaxBytes}
	}
	if len(cs.AllowedMIMETypes) > 0 {
		allowed := false
		for _, m := range cs.AllowedMIMETypes {
			if m == f.MIME {
				allowed = true
				break
			}
		}
		if !allowed {
			return &UnsupportedTypeError{MIME: f.MIME}
		}
	}
	return nil
}

// UploadResult is what a completed upload yields. FileID is guaranteed
// non-empty; an empty id from the transport counts as a failed upload.
type UploadResult struct {
	FileID       string
	DownloadPage string
	DirectURL    string
	UploadedAt   time.Time
}

// UploadErrorKind classifies upload failures for user-facing messages.
type UploadErrorKind uint8

const (
	// UploadNetwork is a transport-level failure, no response from the server.
	UploadNetwork UploadErrorKind = iota
	// UploadTimeout means the hard upload deadline elapsed without a response.
	UploadTimeout
	// UploadServerRejected means the server answered with a non-success
	// status or an error payload.
	UploadServerRejected
	// UploadMissingFileID means the server reported success but the response
	// carried no usable file identifier.
	UploadMissingFileID
)

func (k UploadErrorKind) String() string {
	switch k {
	case UploadNetwork:
		return "network"
	case UploadTimeout:
		return "timeout"
	case UploadServerRejected:
		return "server_rejected"
	case UploadMissingFileID:
		return "missing_file_id"
	default:
		return "unknown"
	}
}

// UploadError wraps a transport error with its classification.
type UploadError struct {
	Kind UploadErrorKind
	Err  error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return "upload failed: " + e.Kind.String()
	}
	return fmt.Sprintf("upload failed (%s): %v", e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// CommitError reports a failed metadata write after a completed upload.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit failed: %v", e.Err) }

func (e *CommitError) Unwrap() error { return e.Err }

// ProgressFunc receives whole percentages in [0,100]. Within one upload the
// reported values are monotonically non-decreasing and end at 100 on success.
type ProgressFunc func(pct int)

// Uploader performs a single multipart upload to remote storage. It must
// honor ctx, enforce its own hard deadline, classify failures as
// *UploadError and never retry on its own.
type Uploader interface {
	Upload(ctx context.Context, name string, size int64, r io.Reader, progress ProgressFunc) (UploadResult, error)
}

// Deleter removes a remote file, used for compensating deletes after a
// failed commit and by the orphan sweeper.
type Deleter interface {
	Delete(ctx context.Context, fileID string) error
}

// Recorder persists a finalized submission. Implementations perform exactly
// one write combining the draft with the upload result and return the public
// reference of the new record.
type Recorder interface {
	Record(ctx context.Context, d Draft, up UploadResult) (string, error)
}

// OrphanSink records remote files that could not be cleaned up immediately
// so a background sweeper can retry the delete later.
type OrphanSink interface {
	MarkOrphaned(ctx context.Context, fileID, reason string)
}

// Draft is the in-memory, not-yet-persisted submission form state. It is
// owned by the single session that created it.
type Draft struct {
	Competition string
	Name        string
	Email       string
	School      string
	Category    string
	Title       string
	Description string
	File        FileInfo
}

// State of one submission form session.
type State uint8

const (
	StateIdle State = iota
	StateUploading
	StateSaving
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateSaving:
		return "saving"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session tracks one submission attempt: its draft, state, progress and the
// uploaded file id. A failed session keeps its draft so the user retries
// without retyping; the retained file id allows manual reconciliation when
// the commit failed after a completed upload.
type Session struct {
	mu       sync.Mutex
	state    State
	progress int
	draft    Draft
	fileID   string
	lastErr  error
}

// NewSession creates an idle session owning the given draft.
func NewSession(d Draft) *Session {
	return &Session{state: StateIdle, draft: d}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the last reported upload percentage.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Draft returns a copy of the session's draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// UploadedFileID returns the remote file id of a completed upload. It stays
// set when the subsequent commit fails.
func (s *Session) UploadedFileID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileID
}

// Retry moves a failed session back to Idle, preserving the draft. Returns
// false when the session is not in Failed.
func (s *Session) Retry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return false
	}
	s.state = StateIdle
	s.progress = 0
	s.fileID = ""
	s.lastErr = nil
	return true
}

// setProgress clamps to [0,100] and never goes backwards within a session.
func (s *Session) setProgress(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > s.progress {
		s.progress = pct
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) setFileID(id string) {
	s.mu.Lock()
	s.fileID = id
	s.mu.Unlock()
}

// Pipeline sequences validate → upload → commit for submission sessions.
// The metadata commit is never attempted unless the upload returned a
// result with a non-empty file id.
type Pipeline struct {
	Uploader Uploader
	Recorder Recorder
	// Deleter and Orphans control cleanup of a remote file whose commit
	// failed: with Compensate set the delete is attempted immediately and
	// the file is queued as orphaned only when that delete also fails;
	// otherwise it is queued right away.
	Deleter    Deleter
	Orphans    OrphanSink
	Compensate bool
}

// ErrNotIdle is returned when Run is called on a session that is not Idle.
var ErrNotIdle = errors.New("session is not idle")

// Run executes one submission attempt. Validation failures leave the session
// in Idle with no network call issued; upload and commit failures move it to
// Failed. On success the session reaches Success and the public reference of
// the persisted submission is returned. Run never retries anything: a failed
// attempt requires an explicit user-driven retry.
func (p *Pipeline) Run(ctx context.Context, s *Session, cs ConstraintSet, file io.Reader) (string, error) {
	if s.State() != StateIdle {
		return "", ErrNotIdle
	}

	draft := s.Draft()
	if err := Validate(draft.File, cs); err != nil {
		return "", err
	}

	s.transition(StateUploading)
	s.setProgress(0)

	res, err := p.Uploader.Upload(ctx, draft.File.Name, draft.File.Size, file, s.setProgress)
	if err != nil {
		var ue *UploadError
		if !errors.As(err, &ue) {
			err = &UploadError{Kind: UploadNetwork, Err: err}
		}
		s.fail(err)
		return "", err
	}
	if res.FileID == "" {
		// HTTP success with no identifier is still a failed upload.
		err := &UploadError{Kind: UploadMissingFileID}
		s.fail(err)
		return "", err
	}

	s.setFileID(res.FileID)
	s.setProgress(100)
	s.transition(StateSaving)

	ref, err := p.Recorder.Record(ctx, draft, res)
	if err != nil {
		ce := &CommitError{Err: err}
		p.cleanupAfterFailedCommit(ctx, res.FileID)
		s.fail(ce)
		return "", ce
	}

	s.transition(StateSuccess)
	return ref, nil
}

// cleanupAfterFailedCommit handles the remote file left behind when the
// metadata write fails. Best effort on every path; the submission error is
// what reaches the user either way.
func (p *Pipeline) cleanupAfterFailedCommit(ctx context.Context, fileID string) {
	// The request context is often already canceled here (the client gave
	// up mid-submission); cleanup still has to reach storage and the queue,
	// so it runs detached with its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if p.Compensate && p.Deleter != nil {
		if err := p.Deleter.Delete(ctx, fileID); err == nil {
			return
		} else if p.Orphans != nil {
			p.Orphans.MarkOrphaned(ctx, fileID, "compensating delete failed: "+err.Error())
			return
		}
		return
	}
	if p.Orphans != nil {
		p.Orphans.MarkOrphaned(ctx, fileID, "commit failed")
	}
}
