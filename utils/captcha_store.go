package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaPrefix = "germanday:captcha:"

// redisCaptchaStore implements base64Captcha.Store on Redis so the captcha
// issued by one instance can be answered on another.
type redisCaptchaStore struct {
	ttl time.Duration
}

// NewRedisCaptchaStore returns a captcha store with the given answer TTL.
func NewRedisCaptchaStore(ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisCaptchaStore{ttl: ttl}
}

func (s *redisCaptchaStore) Set(id string, value string) error {
	rc := GetRedis()
	if rc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.Set(ctx, captchaPrefix+id, value, s.ttl).Err()
}

func (s *redisCaptchaStore) Get(id string, clear bool) string {
	rc := GetRedis()
	if rc == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := captchaPrefix + id
	if clear {
		v, err := rc.GetDel(ctx, key).Result()
		if err != nil {
			return ""
		}
		return v
	}
	v, err := rc.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return v
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
