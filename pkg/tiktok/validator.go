package tiktok

import (
	"regexp"
	"strings"
)

// urlPatterns は、サポートするTikTok URLの4つの形式です。
// 正規URL (@user/video/<id>)、短縮パス (/t/<code>)、および2つの短縮ドメイン。
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https?://(www\.)?tiktok\.com/@[^/]+/video/\d+`),
	regexp.MustCompile(`https?://(www\.)?tiktok\.com/t/[a-zA-Z0-9]+`),
	regexp.MustCompile(`https?://vm\.tiktok\.com/[a-zA-Z0-9]+`),
	regexp.MustCompile(`https?://vt\.tiktok\.com/[a-zA-Z0-9]+`),
}

// IsValidURL は、文字列がサポート対象のTikTok URL形式のいずれかに一致するかを判定します。
// ネットワークアクセスは行いません。
func IsValidURL(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	for _, p := range urlPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}
