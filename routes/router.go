package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/controllers"
	"github.com/deutschtag/germanday/middleware"
	"github.com/deutschtag/germanday/notify"
	"github.com/deutschtag/germanday/pipeline"
	"github.com/deutschtag/germanday/store"
	"github.com/deutschtag/germanday/utils"
)

// Deps carries the wired services the controllers need.
type Deps struct {
	DB       *gorm.DB
	Event    *config.EventConfig
	Pipeline *pipeline.Pipeline
	Deleter  pipeline.Deleter
	Orphans  *store.OrphanQueue
	Notifier notify.Service
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.Metrics())
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(deps.DB))

	r.Static("/static", "./static")

	r.GET("/", func(c *gin.Context) {
		c.File("./static/index.html")
	})
	r.GET("/submit", func(c *gin.Context) {
		c.File("./static/submit.html")
	})
	r.GET("/schedule", func(c *gin.Context) {
		c.File("./static/schedule.html")
	})
	r.GET("/admin", func(c *gin.Context) {
		c.File("./static/admin.html")
	})

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submissionController := controllers.NewSubmissionController(deps.DB, deps.Event, deps.Pipeline, deps.Notifier)
	adminController := controllers.NewAdminController(deps.DB, deps.Deleter, deps.Orphans)
	authController := controllers.NewAuthController(deps.DB)
	statsController := controllers.NewStatsController(deps.DB)
	configController := controllers.NewConfigController()

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/google/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/google/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	// Public competition catalogue and submission flow
	api.GET("/competitions", submissionController.ListCompetitions)
	api.GET("/competitions/:tag/constraints", submissionController.GetConstraints)
	api.GET("/category", submissionController.PreviewCategory)
	api.GET("/captcha", submissionController.Captcha)
	api.POST("/captcha/verify", submissionController.CaptchaVerify)

	submitGroup := api.Group("/submissions")
	submitGroup.Use(middleware.RateLimitMiddleware())
	submitGroup.POST("", submissionController.Create)
	api.GET("/submissions/:reference", submissionController.GetStatus)

	// Public stats and page content
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/schedule", configController.GetSchedule)
	api.GET("/config/notice", configController.GetNotice)
	api.GET("/config/footer", configController.GetFooter)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	admin.GET("/submissions", adminController.ListSubmissions)
	admin.GET("/submissions/:reference", adminController.GetSubmission)
	admin.PATCH("/submissions/:reference/status", adminController.UpdateStatus)
	admin.DELETE("/submissions/:reference", adminController.DeleteSubmission)
	admin.GET("/orphans", adminController.ListOrphans)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// everything else falls back to the SPA entry
		ctx.Status(http.StatusOK)
		ctx.File("./static/index.html")
	})

	return r
}
