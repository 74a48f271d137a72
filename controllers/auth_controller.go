package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/middleware"
	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/utils"
)

const tokenLifetime = 12 * time.Hour

// AuthController handles admin authentication: local password login and
// Google sign-in restricted to the configured admin mailbox list.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// Login authenticates a provisioned admin account with username/password.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	var admin models.AdminUser
	if err := a.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&admin).Error; err != nil {
		// Same answer for unknown user and wrong password.
		utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid credentials")
		return
	}
	if admin.PasswordHash == "" || !utils.CheckPassword(admin.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid credentials")
		return
	}

	token, err := utils.GenerateToken(admin.ID, admin.Username, admin.Email, tokenLifetime)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to issue token")
		return
	}

	now := time.Now()
	_ = a.db.Model(&admin).Update("last_login_at", &now).Error

	utils.Success(ctx, gin.H{
		"token":    token,
		"username": admin.Username,
		"email":    admin.Email,
	})
}

// Logout revokes the presented token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "missing bearer token")
		return
	}
	tokenStr := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(tokenStr)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}
	utils.BlacklistToken(tokenStr, claims.ExpiresAt.Time)
	utils.Success(ctx, gin.H{"logged_out": true})
}

// Me returns the authenticated admin identity.
func (a *AuthController) Me(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"admin_id": ctx.GetUint(middleware.ContextAdminIDKey),
		"username": ctx.GetString(middleware.ContextUsernameKey),
		"email":    ctx.GetString(middleware.ContextEmailKey),
	})
}

func googleOAuthConfig(cfg config.AppConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.SiteBaseURL + "/api/v1/auth/oauth/google/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// OAuthRedirect starts the Google sign-in flow with a single-use state token.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg := config.Get()
	if cfg.GoogleClientID == "" {
		utils.Error(ctx, http.StatusNotFound, 40470, "google sign-in not configured")
		return
	}
	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)
	ctx.Redirect(http.StatusFound, googleOAuthConfig(cfg).AuthCodeURL(state))
}

// OAuthCallback exchanges the code, verifies the account is a configured
// admin and issues a session token.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	cfg := config.Get()
	if !utils.ConsumeState(ctx.Query("state")) {
		utils.Error(ctx, http.StatusUnauthorized, 40121, "invalid oauth state")
		return
	}

	octx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	tok, err := googleOAuthConfig(cfg).Exchange(octx, ctx.Query("code"))
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40122, "oauth exchange failed")
		return
	}

	email, name, err := fetchGoogleProfile(octx, cfg, tok)
	if err != nil || email == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40123, "failed to read google profile")
		return
	}

	if !isAdminEmail(cfg, email) {
		utils.Error(ctx, http.StatusForbidden, 40370, "account is not an event admin")
		return
	}

	admin, err := a.upsertGoogleAdmin(email, name)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to record admin account")
		return
	}

	token, err := utils.GenerateToken(admin.ID, admin.Username, admin.Email, tokenLifetime)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to issue token")
		return
	}

	// Hand the token to the admin SPA via URL fragment so it never hits logs.
	ctx.Redirect(http.StatusFound, cfg.SiteBaseURL+"/admin#token="+token)
}

func fetchGoogleProfile(ctx context.Context, cfg config.AppConfig, tok *oauth2.Token) (email, name string, err error) {
	client := googleOAuthConfig(cfg).Client(ctx, tok)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	var info struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", "", err
	}
	return strings.ToLower(strings.TrimSpace(info.Email)), info.Name, nil
}

func isAdminEmail(cfg config.AppConfig, email string) bool {
	for _, e := range cfg.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

func (a *AuthController) upsertGoogleAdmin(email, name string) (models.AdminUser, error) {
	var admin models.AdminUser
	err := a.db.Where("email = ?", email).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		username := name
		if username == "" {
			username = strings.SplitN(email, "@", 2)[0]
		}
		admin = models.AdminUser{Username: username, Email: email, Provider: "google"}
		if err := a.db.Create(&admin).Error; err != nil {
			return admin, err
		}
	} else if err != nil {
		return admin, err
	}
	now := time.Now()
	_ = a.db.Model(&admin).Update("last_login_at", &now).Error
	return admin, nil
}
