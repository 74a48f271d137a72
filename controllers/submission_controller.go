package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/notify"
	"github.com/deutschtag/germanday/pipeline"
	"github.com/deutschtag/germanday/utils"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "germanday_submissions_total",
		Help: "Submission attempts by competition and outcome.",
	}, []string{"competition", "outcome"})

	uploadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "germanday_upload_failures_total",
		Help: "Upload failures by kind.",
	}, []string{"kind"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "germanday_upload_duration_seconds",
		Help:    "Time spent in the storage upload per submission.",
		Buckets: []float64{1, 5, 15, 30, 60, 90, 120},
	})
)

// SubmissionController handles the public competition endpoints: the
// catalogue, the captcha, category preview and the submission form itself.
type SubmissionController struct {
	db       *gorm.DB
	event    *config.EventConfig
	pipe     *pipeline.Pipeline
	notifier notify.Service
	maxBody  int64
}

// NewSubmissionController creates a SubmissionController.
func NewSubmissionController(db *gorm.DB, event *config.EventConfig, pipe *pipeline.Pipeline, notifier notify.Service) *SubmissionController {
	return &SubmissionController{db: db, event: event, pipe: pipe, notifier: notifier, maxBody: maxRequestBytes(event)}
}

// maxRequestBytes bounds the whole multipart body: the largest per-file limit
// in the catalogue plus room for the text fields and part headers. The
// per-competition limit is enforced separately once the form is read.
func maxRequestBytes(event *config.EventConfig) int64 {
	var largest int64
	for _, c := range event.Competitions {
		if c.Constraints.MaxBytes > largest {
			largest = c.Constraints.MaxBytes
		}
	}
	return largest + 1<<20
}

// ListCompetitions returns the catalogue with per-competition constraints so
// the form can validate before any network call.
func (s *SubmissionController) ListCompetitions(ctx *gin.Context) {
	items := make([]gin.H, 0, len(s.event.Competitions))
	for _, c := range s.event.Competitions {
		item := gin.H{
			"tag":              c.Tag,
			"name":             c.Name,
			"description":      c.Description,
			"requires_file":    c.RequiresFile,
			"derived_category": c.DerivedCategory,
		}
		if c.RequiresFile {
			item["constraints"] = c.Constraints
		}
		if !c.DerivedCategory {
			item["categories"] = c.Categories
		}
		items = append(items, item)
	}
	utils.Success(ctx, gin.H{"items": items})
}

// GetConstraints returns the constraint set of one competition.
func (s *SubmissionController) GetConstraints(ctx *gin.Context) {
	comp, ok := s.event.Find(ctx.Param("tag"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40420, "unknown competition")
		return
	}
	utils.Success(ctx, gin.H{"tag": comp.Tag, "requires_file": comp.RequiresFile, "constraints": comp.Constraints})
}

// PreviewCategory resolves the category for a school name, called by the
// form on blur instead of a debounced watcher.
func (s *SubmissionController) PreviewCategory(ctx *gin.Context) {
	school := strings.TrimSpace(ctx.Query("school"))
	utils.Success(ctx, gin.H{"school": school, "category": s.event.Categories.CategoryFor(school)})
}

// Captcha issues a captcha for the submission form.
func (s *SubmissionController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "captcha_image": b64})
}

// CaptchaVerify pre-checks a captcha answer without consuming it, so the
// form can surface a wrong answer before the upload starts.
func (s *SubmissionController) CaptchaVerify(ctx *gin.Context) {
	var req struct {
		CaptchaID string `json:"captcha_id"`
		Answer    string `json:"answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40013, "invalid request payload")
		return
	}
	utils.Success(ctx, gin.H{"valid": utils.CheckCaptcha(req.CaptchaID, req.Answer)})
}

// Create accepts a multipart submission and drives the upload pipeline.
// Every failure maps to a category-specific message and leaves no partial
// submission behind; retrying is always an explicit new request.
func (s *SubmissionController) Create(ctx *gin.Context) {
	// Cap the body before the multipart parser spools an oversized POST to
	// disk. MaxBytesReader cuts the connection at the limit.
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.maxBody)
	if err := ctx.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			submissionsTotal.WithLabelValues("unknown", "validation").Inc()
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 40034,
				fmt.Sprintf("request body exceeds the %dMB limit", tooBig.Limit>>20))
			return
		}
		utils.Error(ctx, http.StatusBadRequest, 40031, "malformed multipart form")
		return
	}

	comp, ok := s.event.Find(ctx.PostForm("competition"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40010, "unknown competition")
		return
	}
	if !comp.RequiresFile {
		utils.Error(ctx, http.StatusBadRequest, 40011, "this competition takes on-site registrations only")
		return
	}

	name := strings.TrimSpace(ctx.PostForm("name"))
	email := strings.TrimSpace(ctx.PostForm("email"))
	school := strings.TrimSpace(ctx.PostForm("school"))
	if name == "" || email == "" {
		utils.Error(ctx, http.StatusBadRequest, 40012, "name and email are required")
		return
	}

	if config.Get().SubmitCaptchaEnabled {
		if !utils.VerifyCaptcha(ctx.PostForm("captcha_id"), ctx.PostForm("captcha_answer")) {
			utils.Error(ctx, http.StatusBadRequest, 40014, "captcha verification failed")
			return
		}
	}

	category, ok := comp.ResolveCategory(school, ctx.PostForm("category"), s.event.Categories)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40015, "invalid category for this school and competition")
		return
	}

	// Accept common field name 'file' or fallback to 'f'
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		file, header, err = ctx.Request.FormFile("f")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
			return
		}
	}
	defer file.Close()

	draft := pipeline.Draft{
		Competition: comp.Tag,
		Name:        name,
		Email:       email,
		School:      school,
		Category:    category,
		Title:       utils.Sanitize(strings.TrimSpace(ctx.PostForm("title"))),
		Description: utils.Sanitize(ctx.PostForm("description")),
		File: pipeline.FileInfo{
			Name: header.Filename,
			Size: header.Size,
			MIME: header.Header.Get("Content-Type"),
		},
	}

	session := pipeline.NewSession(draft)
	started := time.Now()
	ref, err := s.pipe.Run(ctx.Request.Context(), session, comp.Constraints, file)
	if err != nil {
		s.respondPipelineError(ctx, comp.Tag, session, err)
		return
	}
	uploadDuration.Observe(time.Since(started).Seconds())
	submissionsTotal.WithLabelValues(comp.Tag, "success").Inc()

	s.notifier.Success(fmt.Sprintf("new %s submission %s from %s (%s)", comp.Tag, ref, name, school), 0)
	utils.InvalidateByPrefix("cache:stats:")

	utils.Success(ctx, gin.H{
		"reference": ref,
		"state":     session.State().String(),
		"progress":  session.Progress(),
	})
}

// respondPipelineError translates pipeline errors into the uniform envelope
// with category-appropriate wording. Raw transport or database errors never
// reach the response.
func (s *SubmissionController) respondPipelineError(ctx *gin.Context, competition string, session *pipeline.Session, err error) {
	var tooLarge *pipeline.TooLargeError
	var badType *pipeline.UnsupportedTypeError
	var upErr *pipeline.UploadError
	var commitErr *pipeline.CommitError

	switch {
	case errors.Is(err, pipeline.ErrMissing):
		submissionsTotal.WithLabelValues(competition, "validation").Inc()
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
	case errors.As(err, &tooLarge):
		submissionsTotal.WithLabelValues(competition, "validation").Inc()
		utils.Error(ctx, http.StatusBadRequest, 40032,
			fmt.Sprintf("file is too large: limit is %dMB", tooLarge.MaxBytes>>20))
	case errors.As(err, &badType):
		submissionsTotal.WithLabelValues(competition, "validation").Inc()
		utils.Error(ctx, http.StatusBadRequest, 40033, "this file type is not accepted for the competition")
	case errors.As(err, &upErr):
		submissionsTotal.WithLabelValues(competition, "upload_failed").Inc()
		uploadFailuresTotal.WithLabelValues(upErr.Kind.String()).Inc()
		switch upErr.Kind {
		case pipeline.UploadTimeout:
			utils.Error(ctx, http.StatusGatewayTimeout, 50441, "upload timed out, please try again")
		case pipeline.UploadServerRejected:
			utils.Error(ctx, http.StatusBadGateway, 50242, "the file host rejected the upload, please try again")
		case pipeline.UploadMissingFileID:
			utils.Error(ctx, http.StatusBadGateway, 50243, "the file host returned an unusable response, please try again")
		default:
			utils.Error(ctx, http.StatusBadGateway, 50241, "upload failed, check your connection and try again")
		}
	case errors.As(err, &commitErr):
		submissionsTotal.WithLabelValues(competition, "commit_failed").Inc()
		// The upload itself went through; keep the file id visible for
		// manual reconciliation.
		s.notifier.Warning(fmt.Sprintf("submission commit failed, uploaded file %s retained", session.UploadedFileID()), 0)
		utils.Error(ctx, http.StatusInternalServerError, 50030, "could not save your submission, please try again")
	default:
		submissionsTotal.WithLabelValues(competition, "error").Inc()
		utils.Error(ctx, http.StatusInternalServerError, 50031, "submission failed, please try again")
	}
}

// GetStatus is the public status lookup by reference. It exposes no contact
// details, only what the submitter needs to confirm their entry.
func (s *SubmissionController) GetStatus(ctx *gin.Context) {
	ref := strings.TrimSpace(ctx.Param("reference"))
	if ref == "" {
		utils.Error(ctx, http.StatusBadRequest, 40040, "missing reference")
		return
	}
	var sub models.Submission
	if err := s.db.Where("reference = ?", ref).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40440, "submission not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load submission")
		return
	}
	utils.Success(ctx, gin.H{
		"reference":     sub.Reference,
		"competition":   sub.Competition,
		"category":      sub.Category,
		"file_name":     sub.FileName,
		"upload_status": sub.UploadStatus,
		"review_status": sub.ReviewStatus,
		"submitted_at":  sub.SubmittedAt,
	})
}
