package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/utils"
)

const (
	statsCacheKey = "cache:stats:public"
	statsCacheTTL = 2 * time.Minute
)

// StatsController exposes the public counters shown on the landing page:
// submissions per competition and recent visit numbers.
type StatsController struct {
	db *gorm.DB
}

func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

type publicStats struct {
	Total          int64            `json:"total"`
	ByCompetition  map[string]int64 `json:"by_competition"`
	ByReviewStatus map[string]int64 `json:"by_review_status"`
	VisitsToday    int64            `json:"visits_today"`
	Visits7d       int64            `json:"visits_7d"`
}

// GetStats returns submission and visit counters, served from Redis for a
// couple of minutes between recomputes.
func (s *StatsController) GetStats(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(statsCacheKey); ok {
		var cached publicStats
		if json.Unmarshal(b, &cached) == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	stats, err := s.compute()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to compute stats")
		return
	}
	utils.CacheSetJSON(statsCacheKey, stats, statsCacheTTL)
	utils.Success(ctx, stats)
}

func (s *StatsController) compute() (publicStats, error) {
	out := publicStats{
		ByCompetition:  map[string]int64{},
		ByReviewStatus: map[string]int64{},
	}

	if err := s.db.Model(&models.Submission{}).
		Where("upload_status = ?", models.UploadCompleted).
		Count(&out.Total).Error; err != nil {
		return out, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byComp []bucket
	if err := s.db.Model(&models.Submission{}).
		Select("competition AS `key`, COUNT(*) AS count").
		Where("upload_status = ?", models.UploadCompleted).
		Group("competition").Scan(&byComp).Error; err != nil {
		return out, err
	}
	// List every configured competition, zeros included.
	for _, tag := range config.Event().Tags() {
		out.ByCompetition[tag] = 0
	}
	for _, b := range byComp {
		out.ByCompetition[b.Key] = b.Count
	}

	var byReview []bucket
	if err := s.db.Model(&models.Submission{}).
		Select("review_status AS `key`, COUNT(*) AS count").
		Where("upload_status = ?", models.UploadCompleted).
		Group("review_status").Scan(&byReview).Error; err != nil {
		return out, err
	}
	for _, b := range byReview {
		out.ByReviewStatus[b.Key] = b.Count
	}

	today := time.Now().Format("2006-01-02")
	weekAgo := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Select("COALESCE(SUM(count), 0)").
		Where("date = ?", today).Scan(&out.VisitsToday).Error; err != nil {
		return out, err
	}
	if err := s.db.Model(&models.PageView{}).
		Select("COALESCE(SUM(count), 0)").
		Where("date >= ?", weekAgo).Scan(&out.Visits7d).Error; err != nil {
		return out, err
	}

	return out, nil
}
