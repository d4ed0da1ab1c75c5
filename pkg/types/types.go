package types

import (
	"encoding/json"
	"net/url"
	"strings"
)

// 抽出メソッド名。Result.Method に格納され、どの戦略が結果を生成したかを示します。
const (
	MethodDirectScrape = "direct_scrape"
	MethodJSONParse    = "json_parse"
	MethodMetaTags     = "meta_tags"
	MethodExternalAPI  = "external_api"
	MethodOpenAPI      = "open_api"
)

const (
	// DefaultTitle は、タイトルが取得できなかった場合のプレースホルダーです。
	DefaultTitle = "TikTok Video"
	// DefaultAuthor は、投稿者が取得できなかった場合のプレースホルダーです。
	DefaultAuthor = "Unknown"
)

// Result は、いずれかの抽出戦略が成功した際に返される共通の出力形式です。
// 一度生成された後は変更されず、リクエスト/レスポンスの1サイクルのみ存在します。
type Result struct {
	DownloadURL string `json:"downloadURL"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	OriginalURL string `json:"originalURL"`
	Method      string `json:"method"`

	// 以下は一部の外部APIのみが返す補足情報
	Duration int             `json:"duration,omitempty"`
	Cover    string          `json:"cover,omitempty"`
	Music    json.RawMessage `json:"music,omitempty"`
}

// URLResult は、特定のURLから抽出された結果、またはその処理中に発生したエラーを保持します。
// これは、並列スクレイパーの出力として利用されます。
type URLResult struct {
	URL    string  // 処理対象のURL
	Result *Result // 抽出結果 (失敗時は nil)
	Error  error   // 処理中に発生したエラー
}

// NewResult は、各戦略の生の値から正規化済みの Result を生成します。
// downloadURL は NormalizeURL で絶対URLに変換され、空のタイトル・投稿者はプレースホルダーに置き換えられます。
func NewResult(downloadURL, title, author, originalURL, method, baseHost string) *Result {
	return &Result{
		DownloadURL: NormalizeURL(downloadURL, baseHost),
		Title:       orDefault(title, DefaultTitle),
		Author:      orDefault(author, DefaultAuthor),
		OriginalURL: originalURL,
		Method:      method,
	}
}

// NormalizeURL は、プロトコル相対URL (//host/...) を https に、
// ルート相対URL (/path) を baseHost 付きの絶対URLに変換します。
// baseHost が空の場合、ルート相対URLはそのまま返されます。
func NormalizeURL(raw, baseHost string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case baseHost == "":
		return raw
	case strings.HasPrefix(raw, "/"):
		return strings.TrimRight(baseHost, "/") + raw
	default:
		return strings.TrimRight(baseHost, "/") + "/" + raw
	}
}

// IsAbsoluteHTTP は、URLがホスト付きの http(s) の絶対URLであるかを判定します。
// 正規化後もこれを満たさない動画URLは結果として採用しません。
func IsAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
