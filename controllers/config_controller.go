package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/utils"
)

// ConfigController serves the static event content the public pages render:
// the day schedule, the announcement banner and footer links.
type ConfigController struct{}

func NewConfigController() *ConfigController {
	return &ConfigController{}
}

// GetSchedule returns the event-day programme.
func (c *ConfigController) GetSchedule(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"schedule": config.Event().Schedule})
}

// GetNotice returns the announcement banner content.
func (c *ConfigController) GetNotice(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"title": cfg.NoticeTitle,
		"html":  utils.Sanitize(cfg.NoticeHTML),
	})
}

// GetFooter returns the contact block shown on every page.
func (c *ConfigController) GetFooter(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"contact":   cfg.FooterContact,
		"instagram": cfg.FooterInstagram,
		"email":     cfg.FooterEmailLink,
	})
}
