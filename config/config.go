package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort   string
	JWTSecret string
	// Public site base URL, used for OAuth redirects
	SiteBaseURL string

	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for caching/captcha/token state
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Remote file storage (GoFile-style upload API)
	StorageBaseURL       string
	StorageAPIToken      string
	StorageFolderID      string
	StorageUploadTimeout int // seconds, hard deadline per upload

	// Orphaned remote files: sweep interval and max delete attempts
	OrphanSweepMinutes  int
	OrphanMaxAttempts   int
	CompensateOnFailure bool

	// Admin accounts
	AdminEmails        []string
	GoogleClientID     string
	GoogleClientSecret string

	// Public form protection
	SubmitCaptchaEnabled bool
	RateLimitPerMinute   int

	AllowedOrigins []string

	// Gin framework configuration
	GinMode string
	GinPath string

	// Organizer notification mail
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMTPFromName  string
	SMTPTLS       bool
	OrganizerMail string

	// Marketing content served to the frontend
	NoticeTitle     string
	NoticeHTML      string
	FooterContact   string
	FooterInstagram string
	FooterEmailLink string

	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration from config/config.json and environment variables. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}
	if cfg.StorageAPIToken == "" {
		log.Fatal("STORAGE_API_TOKEN must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(section, key string) string {
		if s, ok := raw[section][key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(section, key string) int {
		switch t := raw[section][key].(type) {
		case float64:
			return int(t)
		case int:
			return t
		case json.Number:
			i, _ := t.Int64()
			return int(i)
		}
		return 0
	}
	getBool := func(section, key string) bool {
		if b, ok := raw[section][key].(bool); ok {
			return b
		}
		return false
	}
	getStringSlice := func(section, key string) []string {
		arr, ok := raw[section][key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	setString := func(dst *string, section, key string) {
		if v := getString(section, key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, section, key string) {
		if v := getInt(section, key); v != 0 {
			*dst = v
		}
	}

	setString(&out.AppPort, "app", "AppPort")
	setString(&out.JWTSecret, "app", "JWTSecret")
	setString(&out.SiteBaseURL, "app", "SiteBaseURL")
	setInt(&out.RateLimitPerMinute, "app", "RateLimitPerMinute")
	if list := getStringSlice("app", "AllowedOrigins"); len(list) > 0 {
		out.AllowedOrigins = list
	}

	setString(&out.DatabaseURI, "database", "DatabaseURI")
	setString(&out.DBHost, "database", "DBHost")
	setString(&out.DBPort, "database", "DBPort")
	setString(&out.DBUser, "database", "DBUser")
	setString(&out.DBPassword, "database", "DBPassword")
	setString(&out.DBName, "database", "DBName")

	setString(&out.RedisHost, "redis", "RedisHost")
	setInt(&out.RedisPort, "redis", "RedisPort")
	setInt(&out.RedisDB, "redis", "RedisDB")
	setString(&out.RedisPassword, "redis", "RedisPassword")

	setString(&out.StorageBaseURL, "storage", "BaseURL")
	setString(&out.StorageAPIToken, "storage", "APIToken")
	setString(&out.StorageFolderID, "storage", "FolderID")
	setInt(&out.StorageUploadTimeout, "storage", "UploadTimeoutSec")
	setInt(&out.OrphanSweepMinutes, "storage", "OrphanSweepMinutes")
	setInt(&out.OrphanMaxAttempts, "storage", "OrphanMaxAttempts")
	if _, ok := raw["storage"]["CompensateOnFailure"]; ok {
		out.CompensateOnFailure = getBool("storage", "CompensateOnFailure")
	}

	if list := getStringSlice("admin", "Emails"); len(list) > 0 {
		out.AdminEmails = list
	}
	setString(&out.GoogleClientID, "oauth", "GoogleClientID")
	setString(&out.GoogleClientSecret, "oauth", "GoogleClientSecret")

	if _, ok := raw["submit"]["CaptchaEnabled"]; ok {
		out.SubmitCaptchaEnabled = getBool("submit", "CaptchaEnabled")
	}

	setString(&out.SMTPHost, "smtp", "SMTPHost")
	setInt(&out.SMTPPort, "smtp", "SMTPPort")
	setString(&out.SMTPUsername, "smtp", "SMTPUsername")
	setString(&out.SMTPPassword, "smtp", "SMTPPassword")
	setString(&out.SMTPFrom, "smtp", "SMTPFrom")
	setString(&out.SMTPFromName, "smtp", "SMTPFromName")
	if _, ok := raw["smtp"]["SMTPTLS"]; ok {
		out.SMTPTLS = getBool("smtp", "SMTPTLS")
	}
	setString(&out.OrganizerMail, "smtp", "OrganizerMail")

	setString(&out.NoticeTitle, "notice", "Title")
	setString(&out.NoticeHTML, "notice", "HTML")
	setString(&out.FooterContact, "footer", "Contact")
	setString(&out.FooterInstagram, "footer", "Instagram")
	setString(&out.FooterEmailLink, "footer", "EmailLink")

	setString(&out.LogLevel, "log", "Level")
	setString(&out.LogPath, "log", "Path")
	setString(&out.GinMode, "log", "GinMode")
	setString(&out.GinPath, "log", "GinPath")
	setInt(&out.LogMaxSizeMB, "log", "MaxSizeMB")
	setInt(&out.LogMaxBackups, "log", "MaxBackups")
	setInt(&out.LogMaxAgeDays, "log", "MaxAgeDays")
	if _, ok := raw["log"]["Compress"]; ok {
		out.LogCompress = getBool("log", "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.SiteBaseURL == "" {
		c.SiteBaseURL = "http://localhost:8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "germanday"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.StorageBaseURL == "" {
		c.StorageBaseURL = "https://store1.gofile.io"
	}
	if c.StorageUploadTimeout == 0 {
		c.StorageUploadTimeout = 120
	}
	if c.OrphanSweepMinutes == 0 {
		c.OrphanSweepMinutes = 5
	}
	if c.OrphanMaxAttempts == 0 {
		c.OrphanMaxAttempts = 10
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.NoticeTitle == "" {
		c.NoticeTitle = "Announcements"
	}
	if c.NoticeHTML == "" {
		c.NoticeHTML = "Willkommen! German Day submissions are open."
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("SITE_BASE_URL", ""); v != "" {
		c.SiteBaseURL = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("STORAGE_BASE_URL", ""); v != "" {
		c.StorageBaseURL = v
	}
	if v := getEnv("STORAGE_API_TOKEN", ""); v != "" {
		c.StorageAPIToken = v
	}
	if v := getEnv("STORAGE_FOLDER_ID", ""); v != "" {
		c.StorageFolderID = v
	}
	if v := getEnv("STORAGE_UPLOAD_TIMEOUT_SEC", ""); v != "" {
		c.StorageUploadTimeout = mustParseInt(v)
	}
	if v := getEnv("ORPHAN_SWEEP_MINUTES", ""); v != "" {
		c.OrphanSweepMinutes = mustParseInt(v)
	}
	if v := getEnv("ORPHAN_MAX_ATTEMPTS", ""); v != "" {
		c.OrphanMaxAttempts = mustParseInt(v)
	}
	if v := getEnv("COMPENSATE_ON_FAILURE", ""); v != "" {
		c.CompensateOnFailure = v == "true"
	}
	if v := getEnv("ADMIN_EMAILS", ""); v != "" {
		c.AdminEmails = splitAndTrim(v)
	}
	if v := getEnv("GOOGLE_CLIENT_ID", ""); v != "" {
		c.GoogleClientID = v
	}
	if v := getEnv("GOOGLE_CLIENT_SECRET", ""); v != "" {
		c.GoogleClientSecret = v
	}
	if v := getEnv("SUBMIT_CAPTCHA_ENABLED", ""); v != "" {
		c.SubmitCaptchaEnabled = v == "true"
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		c.SMTPPort = mustParseInt(v)
	}
	if v := getEnv("SMTP_USERNAME", ""); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("SMTP_PASSWORD", ""); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("SMTP_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("SMTP_FROM_NAME", ""); v != "" {
		c.SMTPFromName = v
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "true"
	}
	if v := getEnv("ORGANIZER_MAIL", ""); v != "" {
		c.OrganizerMail = v
	}
	if v := getEnv("NOTICE_TITLE", ""); v != "" {
		c.NoticeTitle = v
	}
	if v := getEnv("NOTICE_HTML", ""); v != "" {
		c.NoticeHTML = v
	}
	if v := getEnv("FOOTER_CONTACT", ""); v != "" {
		c.FooterContact = v
	}
	if v := getEnv("FOOTER_INSTAGRAM", ""); v != "" {
		c.FooterInstagram = v
	}
	if v := getEnv("FOOTER_EMAIL_LINK", ""); v != "" {
		c.FooterEmailLink = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
