package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// unreachableDB opens a gorm handle whose pool only dials on first use, so
// every query fails with a connection error.
func unreachableDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "stats:stats@tcp(127.0.0.1:1)/germanday?charset=utf8mb4&parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestGetStatsSurfacesQueryErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_API_TOKEN", "test-token")
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/api/v1/stats", NewStatsController(unreachableDB(t)).GetStats)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50080, decodeEnvelope(t, w).Code)
}
