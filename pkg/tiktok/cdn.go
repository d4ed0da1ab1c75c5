package tiktok

import "strings"

const (
	// CDNMarker は、抽出したURLが本物の動画配信ホストであることを確認するためのホスト名の目印です。
	CDNMarker = "tiktokcdn"
	// MP4Marker は、汎用JSON探索で動画ファイルと見なすための拡張子の目印です。
	MP4Marker = ".mp4"
	// BaseURL は、ルート相対URLを補完する際のTikTok本体のホストです。
	BaseURL = "https://www.tiktok.com"
)

// escapeReplacer は、ページ内のJSON文字列に残るエスケープを元に戻します。
var escapeReplacer = strings.NewReplacer(
	`\u0026`, "&",
	`\u002F`, "/",
	`\u002f`, "/",
	`\/`, "/",
)

// Unescape は、埋め込みJSONからそのまま切り出したURLのエスケープ文字を復元します。
func Unescape(s string) string {
	return escapeReplacer.Replace(s)
}

// IsCDNURL は、URLがCDNマーカーを含むかを判定します。
func IsCDNURL(s string) bool {
	return strings.Contains(s, CDNMarker)
}

// IsCDNVideo は、URLがCDNマーカーと .mp4 マーカーの両方を含むかを判定します。
func IsCDNVideo(s string) bool {
	return IsCDNURL(s) && strings.Contains(s, MP4Marker)
}
