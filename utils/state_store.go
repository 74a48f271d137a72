package utils

import (
	"context"
	"sync"
	"time"
)

const oauthStatePrefix = "germanday:oauth:state:"

var (
	localStates   = map[string]time.Time{}
	localStatesMu sync.Mutex
)

// SaveState records a single-use OAuth state token. Redis keeps the state
// shared across instances; without Redis a per-process map is used, which is
// fine for a single-instance deployment.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rc.Set(ctx, oauthStatePrefix+state, "1", ttl).Err() == nil {
			return
		}
	}
	localStatesMu.Lock()
	localStates[state] = time.Now().Add(ttl)
	localStatesMu.Unlock()
}

// ConsumeState checks a state token and removes it so it cannot be replayed.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, oauthStatePrefix+state).Result(); err == nil {
			return v != ""
		}
	}
	localStatesMu.Lock()
	deadline, ok := localStates[state]
	if ok {
		delete(localStates, state)
	}
	localStatesMu.Unlock()
	return ok && time.Now().Before(deadline)
}
