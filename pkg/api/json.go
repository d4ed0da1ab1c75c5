package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shouni/go-tiktok-exact/pkg/httpclient"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// レスポンスの各項目を探すgjsonパス。先頭から順に試し、最初の空でない値を採用します。
var (
	externalVideoPaths = []string{"data.play", "video.noWatermark", "video.withWatermark", "play"}
	openVideoPaths     = []string{"video_url", "download_url"}

	titlePaths    = []string{"data.title", "title"}
	authorPaths   = []string{"data.author.nickname", "author.nickname", "author"}
	durationPaths = []string{"data.duration", "duration"}
	coverPaths    = []string{"data.cover", "cover"}
	musicPaths    = []string{"data.music_info", "data.music", "music"}
)

// JSONStrategy は、JSONを返すサードパーティAPIを1件呼び出す抽出戦略です。
type JSONStrategy struct {
	client     Client
	service    Service
	method     string
	videoPaths []string
	timeout    time.Duration
}

// NewExternal は、外部APIレコード (external_api) の戦略を生成します。
func NewExternal(client Client, service Service) (*JSONStrategy, error) {
	return newJSONStrategy(client, service, types.MethodExternalAPI, externalVideoPaths, DefaultExternalTimeout)
}

// NewOpen は、簡易APIレコード (open_api) の戦略を生成します。
func NewOpen(client Client, service Service) (*JSONStrategy, error) {
	return newJSONStrategy(client, service, types.MethodOpenAPI, openVideoPaths, DefaultOpenTimeout)
}

func newJSONStrategy(client Client, service Service, method string, paths []string, def time.Duration) (*JSONStrategy, error) {
	if client == nil {
		return nil, errors.New("clientはnilであってはなりません")
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if len(service.VideoPaths) > 0 {
		paths = service.VideoPaths
	}
	return &JSONStrategy{
		client:     client,
		service:    service,
		method:     method,
		videoPaths: paths,
		timeout:    service.timeout(def),
	}, nil
}

// Name は "external:tikwm" のような戦略名を返します。
func (s *JSONStrategy) Name() string {
	prefix := "external"
	if s.method == types.MethodOpenAPI {
		prefix = "open"
	}
	return prefix + ":" + s.service.Name
}

// Attempt はサービスを呼び出し、レスポンスを共通の結果形式に変換します。
func (s *JSONStrategy) Attempt(ctx context.Context, rawURL string) (*types.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.call(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%sの呼び出しに失敗しました: %w", s.service.Name, err)
	}

	result, err := ParseResponse(body, s.videoPaths, rawURL, s.method, s.service.baseHost())
	if err != nil {
		return nil, fmt.Errorf("%sのレスポンスが不正です: %w", s.service.Name, err)
	}
	return result, nil
}

func (s *JSONStrategy) call(ctx context.Context, rawURL string) ([]byte, error) {
	header := httpclient.APIHeaders(s.service.Referer)

	if s.service.method() == http.MethodPost {
		return s.client.PostJSON(ctx, s.service.Endpoint, map[string]string{"url": rawURL}, header)
	}

	reqURL, err := s.service.requestURL(rawURL)
	if err != nil {
		return nil, err
	}
	return s.client.FetchBytes(ctx, reqURL, header)
}

// ParseResponse は、サードパーティAPIのJSONレスポンスを types.Result に変換します。
// "code" フィールドが存在し0以外の場合は失敗として扱います。
// baseHost で補完しても http(s) の絶対URLにならない動画URLは ErrNoVideoURL になります。
func ParseResponse(body []byte, videoPaths []string, originalURL, method, baseHost string) (*types.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("JSONとして解析できません")
	}
	r := gjson.ParseBytes(body)

	if code := r.Get("code"); code.Exists() && code.Int() != 0 {
		return nil, fmt.Errorf("サービスがエラーを返しました (code=%d): %s", code.Int(), r.Get("msg").String())
	}

	videoURL := firstString(r, videoPaths)
	if videoURL == "" {
		return nil, ErrNoVideoURL
	}

	result := types.NewResult(videoURL, firstString(r, titlePaths), firstString(r, authorPaths), originalURL, method, baseHost)
	if !types.IsAbsoluteHTTP(result.DownloadURL) {
		return nil, fmt.Errorf("%w: 絶対URLに変換できません (%s)", ErrNoVideoURL, result.DownloadURL)
	}
	result.Duration = int(firstNumber(r, durationPaths))
	result.Cover = types.NormalizeURL(firstString(r, coverPaths), baseHost)
	result.Music = firstRaw(r, musicPaths)
	return result, nil
}

// firstString は文字列型の値のみを対象に、最初に見つかった空でない値を返します。
func firstString(r gjson.Result, paths []string) string {
	for _, p := range paths {
		v := r.Get(p)
		if v.Type == gjson.String {
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstNumber(r gjson.Result, paths []string) float64 {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.Number {
			return v.Num
		}
	}
	return 0
}

func firstRaw(r gjson.Result, paths []string) json.RawMessage {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if v.Type == gjson.String && v.Str == "" {
			continue
		}
		return json.RawMessage(v.Raw)
	}
	return nil
}
