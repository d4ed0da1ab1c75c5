package jsonsearch

import (
	"github.com/tidwall/gjson"

	"github.com/shouni/go-tiktok-exact/pkg/tiktok"
)

// FindVideoURLInJSON は生のJSON文字列からCDN上の動画URLを探索します。
// 不正なJSONの場合は見つからなかったものとして扱います。
func FindVideoURLInJSON(raw string) (string, bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	return FindVideoURL(gjson.Parse(raw))
}

// FindVideoURL はJSON値を文書順に再帰的に走査し、最初に見つかった動画URLを返します。
// 文字列が "tiktokcdn" と ".mp4" の両方を含む場合に一致とみなします。
// 二重エスケープで残ったエスケープ文字は復元して返します。
func FindVideoURL(value gjson.Result) (string, bool) {
	var found string

	var walk func(v gjson.Result) bool
	walk = func(v gjson.Result) bool {
		switch {
		case v.Type == gjson.String:
			if tiktok.IsCDNVideo(v.Str) {
				found = tiktok.Unescape(v.Str)
				return true
			}
		case v.IsObject(), v.IsArray():
			v.ForEach(func(_, child gjson.Result) bool {
				// 一致したら走査を打ち切る
				return !walk(child)
			})
			return found != ""
		}
		return false
	}

	if walk(value) {
		return found, true
	}
	return "", false
}
