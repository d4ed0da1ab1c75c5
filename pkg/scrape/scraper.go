package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	textUtils "github.com/shouni/go-utils/text"
	"github.com/tidwall/gjson"

	"github.com/shouni/go-tiktok-exact/pkg/httpclient"
	"github.com/shouni/go-tiktok-exact/pkg/jsonsearch"
	"github.com/shouni/go-tiktok-exact/pkg/tiktok"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DI)
// ----------------------------------------------------------------------

// Fetcher は、ページ本文を取得する機能のインターフェースを定義します。
type Fetcher interface {
	FetchBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
}

// Scraper は、TikTokのページを直接取得して動画URLを探す抽出戦略です。
type Scraper struct {
	fetcher Fetcher
	timeout time.Duration
}

// New は、新しいScraperのインスタンスを生成します。
func New(fetcher Fetcher, timeout time.Duration) (*Scraper, error) {
	if fetcher == nil {
		return nil, errors.New("fetcherはnilであってはなりません")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scraper{
		fetcher: fetcher,
		timeout: timeout,
	}, nil
}

// ----------------------------------------------------------------------
// 定数定義
// ----------------------------------------------------------------------

const (
	// StrategyName は、ログに出力される戦略名です。
	StrategyName   = "direct"
	DefaultTimeout = 15 * time.Second

	twitterStreamSelector = `meta[name="twitter:player:stream"], meta[property="twitter:player:stream"]`
)

// scriptPatterns は、スクリプト本文から動画URLを拾うパターンです。順番に試行します。
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"downloadAddr":"([^"]+)"`),
	regexp.MustCompile(`"playAddr":"([^"]+)"`),
	regexp.MustCompile(`"video":\{"url":"([^"]+)"`),
	regexp.MustCompile(`"contentUrl":"([^"]+)"`),
}

// authorPattern は og:description 内の "@ユーザー名" を拾います。
var authorPattern = regexp.MustCompile(`@(\S+)`)

// 埋め込みJSONからタイトルと投稿者を読むためのパス。先に見つかったものを採用します。
var (
	jsonTitlePaths = []string{
		`__DEFAULT_SCOPE__.webapp\.video-detail.itemInfo.itemStruct.desc`,
		"itemInfo.itemStruct.desc",
		"desc",
	}
	jsonAuthorPaths = []string{
		`__DEFAULT_SCOPE__.webapp\.video-detail.itemInfo.itemStruct.author.uniqueId`,
		"itemInfo.itemStruct.author.uniqueId",
		"author.uniqueId",
	}
)

// ----------------------------------------------------------------------
// メイン関数
// ----------------------------------------------------------------------

// Name は戦略名を返します。
func (s *Scraper) Name() string {
	return StrategyName
}

// Attempt はページを取得し、埋め込みスクリプト、埋め込みJSON、メタタグの順に動画URLを探します。
// 見つからなかった場合は (nil, nil) を返します。
func (s *Scraper) Attempt(ctx context.Context, rawURL string) (*types.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.fetcher.FetchBytes(ctx, rawURL, httpclient.BrowserHeaders())
	if err != nil {
		return nil, fmt.Errorf("TikTokページの取得に失敗しました: %w", err)
	}

	return ExtractFromHTML(body, rawURL)
}

// ExtractFromHTML は取得済みのHTMLから動画URLとメタデータを抽出します。
func ExtractFromHTML(body []byte, originalURL string) (*types.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("メタタグの解析に失敗しました: %w", err)
	}

	title := pageTitle(doc, og)
	author := pageAuthor(og)

	// 1. スクリプト内のパターンと埋め込みJSON
	var result *types.Result
	doc.Find("script").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		script := sel.Text()

		if videoURL, ok := findInScript(script); ok {
			result = types.NewResult(videoURL, title, author, originalURL, types.MethodDirectScrape, tiktok.BaseURL)
			return false
		}

		if strings.Contains(script, `"video"`) {
			if videoURL, jsonTitle, jsonAuthor, ok := findInEmbeddedJSON(script); ok {
				result = types.NewResult(videoURL, firstNonEmpty(jsonTitle, title), firstNonEmpty(jsonAuthor, author), originalURL, types.MethodJSONParse, tiktok.BaseURL)
				return false
			}
		}
		return true
	})
	if result != nil {
		return result, nil
	}

	// 2. メタタグ
	if videoURL, ok := findInMeta(doc, og); ok {
		return types.NewResult(videoURL, title, author, originalURL, types.MethodMetaTags, tiktok.BaseURL), nil
	}

	return nil, nil
}

// ----------------------------------------------------------------------
// ヘルパー関数
// ----------------------------------------------------------------------

// findInScript は各パターンの最初のキャプチャを復元し、CDNのURLであれば返します。
func findInScript(script string) (string, bool) {
	for _, re := range scriptPatterns {
		m := re.FindStringSubmatch(script)
		if m == nil {
			continue
		}
		candidate := tiktok.Unescape(m[1])
		if tiktok.IsCDNURL(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// findInEmbeddedJSON は最初の '{' から最後の '}' までをJSONとして解釈し、汎用探索を行います。
func findInEmbeddedJSON(script string) (videoURL, title, author string, ok bool) {
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end <= start {
		return "", "", "", false
	}

	raw := script[start : end+1]
	if !gjson.Valid(raw) {
		return "", "", "", false
	}

	parsed := gjson.Parse(raw)
	videoURL, ok = jsonsearch.FindVideoURL(parsed)
	if !ok {
		return "", "", "", false
	}
	return videoURL, firstPath(parsed, jsonTitlePaths), firstPath(parsed, jsonAuthorPaths), true
}

// findInMeta は og:video / og:video:url、続いて twitter:player:stream を確認します。
func findInMeta(doc *goquery.Document, og *opengraph.OpenGraph) (string, bool) {
	for _, v := range og.Videos {
		if v != nil && tiktok.IsCDNURL(v.URL) {
			return v.URL, true
		}
	}

	var found string
	doc.Find(twitterStreamSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		content, _ := sel.Attr("content")
		if tiktok.IsCDNURL(content) {
			found = content
			return false
		}
		return true
	})
	return found, found != ""
}

// pageTitle は og:title、<title> の順にタイトルを決定します。
func pageTitle(doc *goquery.Document, og *opengraph.OpenGraph) string {
	title := textUtils.NormalizeText(og.Title)
	if title == "" {
		title = textUtils.NormalizeText(doc.Find("title").First().Text())
	}
	if title == "" {
		return types.DefaultTitle
	}
	return title
}

// pageAuthor は og:description の "@" に続くトークンを投稿者名とします。
func pageAuthor(og *opengraph.OpenGraph) string {
	if m := authorPattern.FindStringSubmatch(og.Description); m != nil {
		return m[1]
	}
	return types.DefaultAuthor
}

func firstPath(parsed gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(parsed.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
