package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/deutschtag/germanday/middleware"
	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/pipeline"
	"github.com/deutschtag/germanday/store"
	"github.com/deutschtag/germanday/utils"
)

// AdminController exposes the review endpoints: listing, moderating and
// deleting submissions, plus visibility into the orphaned-file queue.
type AdminController struct {
	db      *gorm.DB
	deleter pipeline.Deleter
	orphans *store.OrphanQueue
}

// NewAdminController creates an AdminController.
func NewAdminController(db *gorm.DB, deleter pipeline.Deleter, orphans *store.OrphanQueue) *AdminController {
	return &AdminController{db: db, deleter: deleter, orphans: orphans}
}

var sortableColumns = map[string]string{
	"submitted_at": "submitted_at",
	"school":       "school",
	"category":     "category",
	"file_size":    "file_size",
	"name":         "name",
}

// ListSubmissions returns paginated submissions with filtering and sorting.
func (a *AdminController) ListSubmissions(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := a.db.Model(&models.Submission{})
	if v := strings.TrimSpace(ctx.Query("competition")); v != "" {
		query = query.Where("competition = ?", v)
	}
	if v := strings.TrimSpace(ctx.Query("category")); v != "" {
		query = query.Where("category = ?", v)
	}
	if v := strings.TrimSpace(ctx.Query("school")); v != "" {
		query = query.Where("school = ?", v)
	}
	if v := strings.TrimSpace(ctx.Query("review_status")); v != "" {
		query = query.Where("review_status = ?", v)
	}
	if v := strings.TrimSpace(ctx.Query("search")); v != "" {
		like := "%" + v + "%"
		query = query.Where("name LIKE ? OR email LIKE ? OR title LIKE ?", like, like, like)
	}

	order := "submitted_at DESC"
	if col, ok := sortableColumns[strings.TrimSpace(ctx.Query("sort"))]; ok {
		dir := "ASC"
		if strings.EqualFold(ctx.Query("dir"), "desc") {
			dir = "DESC"
		}
		order = col + " " + dir
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to count submissions")
		return
	}

	var subs []models.Submission
	if err := query.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&subs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to list submissions")
		return
	}

	utils.Success(ctx, gin.H{
		"items": subs,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// GetSubmission returns one submission with all fields.
func (a *AdminController) GetSubmission(ctx *gin.Context) {
	var sub models.Submission
	if err := a.db.Where("reference = ?", ctx.Param("reference")).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "submission not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to load submission")
		return
	}
	utils.Success(ctx, gin.H{"submission": sub})
}

// UpdateStatus moderates a submission: approve or reject.
func (a *AdminController) UpdateStatus(ctx *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != models.ReviewApproved && status != models.ReviewRejected {
		utils.Error(ctx, http.StatusBadRequest, 40061, "status must be approved or rejected")
		return
	}

	var sub models.Submission
	if err := a.db.Where("reference = ?", ctx.Param("reference")).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "submission not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to load submission")
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"review_status": status,
		"reviewed_by":   ctx.GetString(middleware.ContextUsernameKey),
		"reviewed_at":   &now,
	}
	if err := a.db.Model(&sub).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50063, "failed to update submission")
		return
	}

	utils.InvalidateByPrefix("cache:stats:")
	utils.Success(ctx, gin.H{"reference": sub.Reference, "review_status": status})
}

// DeleteSubmission removes a submission record together with its remote
// file. A failed remote delete queues the file as orphaned instead of
// failing the request.
func (a *AdminController) DeleteSubmission(ctx *gin.Context) {
	var sub models.Submission
	if err := a.db.Where("reference = ?", ctx.Param("reference")).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40460, "submission not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to load submission")
		return
	}

	if err := a.db.Delete(&sub).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50064, "failed to delete submission")
		return
	}

	if sub.FileID != "" && a.deleter != nil {
		dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.deleter.Delete(dctx, sub.FileID); err != nil && a.orphans != nil {
			a.orphans.MarkOrphaned(dctx, sub.FileID, "admin delete: "+err.Error())
		}
	}

	utils.InvalidateByPrefix("cache:stats:")
	utils.Success(ctx, gin.H{"deleted": sub.Reference})
}

// ListOrphans shows the queue of remote files awaiting cleanup.
func (a *AdminController) ListOrphans(ctx *gin.Context) {
	limit := 100
	if v := strings.TrimSpace(ctx.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := a.orphans.List(ctx.Request.Context(), limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50065, "failed to list orphaned files")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// parsePagination normalizes page/page_size query values.
func parsePagination(pageStr, sizeStr string) (int, int) {
	page, pageSize := 1, 20
	if v := strings.TrimSpace(pageStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(sizeStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}
