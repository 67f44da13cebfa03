package fetcher

import "strings"

// CAPTCHAType identifies the type of CAPTCHA.
type CAPTCHAType string

const (
	CAPTCHAReCaptchaV2 CAPTCHAType = "recaptcha_v2"
	CAPTCHAReCaptchaV3 CAPTCHAType = "recaptcha_v3"
	CAPTCHAHCaptcha    CAPTCHAType = "hcaptcha"
	CAPTCHATurnstile   CAPTCHAType = "turnstile"
)

// DefaultBlockedMarkers are page-source fragments that identify an
// anti-bot interstitial instead of a product page.
var DefaultBlockedMarkers = []string{
	"Robot Check",
	"Enter the characters you see below",
	"/errors/validateCaptcha",
	"Are you a human?",
}

// DetectBlocked reports whether html is a robot check or CAPTCHA page and
// returns the marker that matched. extra markers are checked first.
func DetectBlocked(html string, extra ...string) (string, bool) {
	for _, m := range extra {
		if m != "" && strings.Contains(html, m) {
			return m, true
		}
	}
	for _, m := range DefaultBlockedMarkers {
		if strings.Contains(html, m) {
			return m, true
		}
	}
	if kind, _ := DetectCAPTCHA(html); kind != "" {
		return string(kind), true
	}
	return "", false
}

// DetectCAPTCHA checks a page for common CAPTCHA indicators.
func DetectCAPTCHA(html string) (CAPTCHAType, string) {
	htmlLower := strings.ToLower(html)

	// reCAPTCHA v2/v3
	if strings.Contains(htmlLower, "recaptcha") || strings.Contains(html, "g-recaptcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			if strings.Contains(htmlLower, "recaptcha/api.js?render=") {
				return CAPTCHAReCaptchaV3, siteKey
			}
			return CAPTCHAReCaptchaV2, siteKey
		}
	}

	// hCaptcha
	if strings.Contains(htmlLower, "hcaptcha") || strings.Contains(html, "h-captcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHAHCaptcha, siteKey
		}
	}

	// Cloudflare Turnstile
	if strings.Contains(htmlLower, "turnstile") || strings.Contains(html, "cf-turnstile") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return CAPTCHATurnstile, siteKey
		}
	}

	return "", ""
}

// extractBetween extracts a substring between two delimiters.
func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
