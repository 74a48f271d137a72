package utils

import (
	"time"

	"github.com/mojocn/base64Captcha"
)

// Redis-backed store so captcha verification works behind load balancers.
var captchaStore = NewRedisCaptchaStore(10 * time.Minute)

// GenerateCaptcha creates a captcha and returns (id, dataURI) for the
// submission form to display.
func GenerateCaptcha() (string, string, error) {
	// Digit captcha: width 120, height 40, length 5
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, captchaStore)
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer; it consumes the captcha on success.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}

// CheckCaptcha verifies without consuming, for the form's pre-submit check.
func CheckCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, false)
}
