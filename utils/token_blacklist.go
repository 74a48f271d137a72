package utils

import (
	"context"
	"sync"
	"time"
)

const revokedTokenPrefix = "germanday:jwt:revoked:"

var (
	revokedTokens   = map[string]time.Time{}
	revokedTokensMu sync.RWMutex
)

// BlacklistToken revokes a token until its natural expiration, so that an
// admin logout takes effect immediately. The Redis key carries the remaining
// lifetime as its TTL and disappears when the token would have expired anyway.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rc.Set(ctx, revokedTokenPrefix+token, "1", ttl).Err() == nil {
			return
		}
	}
	revokedTokensMu.Lock()
	revokedTokens[token] = expiresAt
	revokedTokensMu.Unlock()
}

// IsTokenBlacklisted reports whether a token was revoked. A Redis error
// fails open: a transient outage must not lock every admin out.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, revokedTokenPrefix+token).Result(); err == nil {
			return n > 0
		}
		return false
	}

	revokedTokensMu.RLock()
	expiresAt, ok := revokedTokens[token]
	revokedTokensMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		revokedTokensMu.Lock()
		delete(revokedTokens, token)
		revokedTokensMu.Unlock()
		return false
	}
	return true
}
