package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/utils"
)

const visitorTTL = 5 * time.Minute

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

var (
	visitors    = map[string]*visitor{}
	visitorsMu  sync.Mutex
	lastCleanup time.Time
)

// RateLimitMiddleware throttles per client IP with a token bucket sized from
// configuration. Submission uploads are large single requests, so a small
// burst is enough headroom for normal form use.
func RateLimitMiddleware() gin.HandlerFunc {
	perMinute := config.Get().RateLimitPerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	burst := perMinute / 2
	if burst < 1 {
		burst = 1
	}

	return func(ctx *gin.Context) {
		if !visitorFor(ctx.ClientIP(), limit, burst).bucket.Allow() {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func visitorFor(ip string, limit rate.Limit, burst int) *visitor {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	now := time.Now()
	if now.Sub(lastCleanup) > visitorTTL {
		for key, v := range visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(visitors, key)
			}
		}
		lastCleanup = now
	}

	v, ok := visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(limit, burst)}
		visitors[ip] = v
	}
	v.lastSeen = now
	return v
}
