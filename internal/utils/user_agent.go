package utils

import "strings"

const defaultMobileUserAgent = "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

// DefaultMobileUserAgent 返回默认的 Android Chrome UA（Telegram WebApp 内置浏览器）。
func DefaultMobileUserAgent() string {
	return defaultMobileUserAgent
}

// NormalizeMobileUserAgent 把 UA 规范为“手机端”风格；当入参为空或不像手机 UA 时，返回默认 UA。
func NormalizeMobileUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultMobileUserAgent
	}
	if looksLikeMobileUA(v) {
		return v
	}
	return defaultMobileUserAgent
}

// SecChUaPlatform returns the Sec-Ch-Ua-Platform value matching ua.
func SecChUaPlatform(ua string) string {
	s := strings.ToLower(ua)
	switch {
	case strings.Contains(s, "iphone") || strings.Contains(s, "ipad"):
		return `"iOS"`
	default:
		return `"Android"`
	}
}

func looksLikeMobileUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "telegram") {
		return true
	}
	if strings.Contains(s, "mobile") {
		return true
	}
	if strings.Contains(s, "iphone") || strings.Contains(s, "android") || strings.Contains(s, "ipad") {
		return true
	}
	return false
}
