// Package notify provides the notification service the application root
// constructs once and passes by reference to any component that needs to
// raise a user- or operator-facing notice. It replaces the shared mutable
// alert container the frontend used with an injectable interface.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service delivers notices by severity. The duration is a display hint for
// sinks that render transient messages; log-backed sinks ignore it.
type Service interface {
	Success(message string, duration time.Duration)
	Error(message string, duration time.Duration)
	Warning(message string, duration time.Duration)
	Info(message string, duration time.Duration)
}

// logService writes notices to the structured log.
type logService struct {
	log *zap.SugaredLogger
}

// NewLogService returns a Service backed by the given logger.
func NewLogService(log *zap.SugaredLogger) Service {
	return &logService{log: log}
}

func (s *logService) Success(message string, _ time.Duration) {
	s.log.Infow(message, "notice", "success")
}

func (s *logService) Error(message string, _ time.Duration) {
	s.log.Errorw(message, "notice", "error")
}

func (s *logService) Warning(message string, _ time.Duration) {
	s.log.Warnw(message, "notice", "warning")
}

func (s *logService) Info(message string, _ time.Duration) {
	s.log.Infow(message, "notice", "info")
}

// MailFunc sends one mail; wired to the SMTP mailer in main.
type MailFunc func(to, subject, body string) error

// mailService forwards success notices to the organizer mailbox in addition
// to the wrapped sink. Mail failures are reported through the wrapped sink
// instead of surfacing to the caller.
type mailService struct {
	next Service
	send MailFunc
	to   string
}

// NewMailService decorates next with organizer mail on Success notices.
func NewMailService(next Service, send MailFunc, to string) Service {
	return &mailService{next: next, send: send, to: to}
}

func (s *mailService) Success(message string, d time.Duration) {
	s.next.Success(message, d)
	if s.to == "" || s.send == nil {
		return
	}
	if err := s.send(s.to, "German Day: new submission", message); err != nil {
		s.next.Warning("organizer mail failed: "+err.Error(), 0)
	}
}

func (s *mailService) Error(message string, d time.Duration)   { s.next.Error(message, d) }
func (s *mailService) Warning(message string, d time.Duration) { s.next.Warning(message, d) }
func (s *mailService) Info(message string, d time.Duration)    { s.next.Info(message, d) }

// Notice is one recorded notification, used by the recording sink.
type Notice struct {
	Level    string
	Message  string
	Duration time.Duration
}

// Recorder is a Service that captures notices in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
}

func (r *Recorder) add(level, message string, d time.Duration) {
	r.mu.Lock()
	r.Notices = append(r.Notices, Notice{Level: level, Message: message, Duration: d})
	r.mu.Unlock()
}

func (r *Recorder) Success(message string, d time.Duration) { r.add("success", message, d) }
func (r *Recorder) Error(message string, d time.Duration)   { r.add("error", message, d) }
func (r *Recorder) Warning(message string, d time.Duration) { r.add("warning", message, d) }
func (r *Recorder) Info(message string, d time.Duration)    { r.add("info", message, d) }
