package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// サービスの種類
const (
	KindJSON   = "json"   // JSONを返すダウンロードAPI
	KindSsstik = "ssstik" // トークン取得とフォーム送信を行うHTMLサービス
	KindOpen   = "open"   // video_url / download_url を返す簡易API
)

const (
	DefaultExternalTimeout = 15 * time.Second
	DefaultOpenTimeout     = 10 * time.Second
	DefaultQueryParam      = "url"
)

// ErrNoVideoURL は、レスポンスに動画URLが含まれていなかったことを示します。
var ErrNoVideoURL = errors.New("レスポンスに動画URLが含まれていません")

// Client は、各サービス呼び出しで利用するHTTPクライアントのインターフェースを定義します。
// *httpclient.Client がこれを満たします。
type Client interface {
	FetchBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
	PostJSON(ctx context.Context, rawURL string, data any, header http.Header) ([]byte, error)
	PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error)
}

// Service は、サードパーティのダウンロードサービス1件分の宣言的な設定です。
// 設定ファイル (services.yml) から読み込まれ、差し替え可能です。
type Service struct {
	Name       string        `yaml:"name"`
	Kind       string        `yaml:"kind"`
	Method     string        `yaml:"method"`
	Endpoint   string        `yaml:"endpoint"`
	QueryParam string        `yaml:"query_param"`
	BaseHost   string        `yaml:"base_host"`
	Referer    string        `yaml:"referer"`
	Timeout    time.Duration `yaml:"timeout"`
	// VideoPaths は動画URLを探すgjsonパスです。空の場合は種類ごとの既定値を使います。
	VideoPaths []string `yaml:"video_paths"`
}

// Validate はサービス設定の必須項目を検証します。
func (s Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("サービス名が設定されていません")
	}
	if _, err := url.ParseRequestURI(s.Endpoint); err != nil {
		return fmt.Errorf("サービス(%s)のエンドポイントが不正です: %w", s.Name, err)
	}
	switch s.Kind {
	case "", KindJSON, KindSsstik, KindOpen:
	default:
		return fmt.Errorf("サービス(%s)の種類が不正です: %s", s.Name, s.Kind)
	}
	switch strings.ToUpper(s.Method) {
	case "", http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("サービス(%s)のHTTPメソッドが不正です: %s", s.Name, s.Method)
	}
	return nil
}

func (s Service) timeout(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return def
}

func (s Service) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}

// baseHost は相対URLを補完するためのホストを返します。
// BaseHost が未設定の場合は、エンドポイントのスキームとホストを使います。
func (s Service) baseHost() string {
	if s.BaseHost != "" {
		return s.BaseHost
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// requestURL は、エンドポイントにクエリパラメータとして対象URLを付与します。
func (s Service) requestURL(target string) (string, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", fmt.Errorf("エンドポイントの解析に失敗しました: %w", err)
	}
	param := s.QueryParam
	if param == "" {
		param = DefaultQueryParam
	}
	q := u.Query()
	q.Set(param, target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DefaultExternalServices は、設定ファイルがない場合に使う外部APIの既定の並びです。
func DefaultExternalServices() []Service {
	return []Service{
		{
			Name:     "tiklydown",
			Kind:     KindJSON,
			Method:   http.MethodPost,
			Endpoint: "https://api.tiklydown.eu.org/api/download",
			Timeout:  DefaultExternalTimeout,
		},
		{
			Name:       "tikwm",
			Kind:       KindJSON,
			Method:     http.MethodGet,
			Endpoint:   "https://www.tikwm.com/api/",
			QueryParam: DefaultQueryParam,
			BaseHost:   "https://www.tikwm.com",
			Referer:    "https://www.tikwm.com/",
			Timeout:    DefaultExternalTimeout,
		},
		{
			Name:     "ssstik",
			Kind:     KindSsstik,
			Endpoint: "https://ssstik.io",
			BaseHost: "https://ssstik.io",
			Referer:  "https://ssstik.io/",
			Timeout:  DefaultExternalTimeout,
		},
	}
}

// DefaultOpenServices は、設定ファイルがない場合に使う簡易APIの既定の並びです。
func DefaultOpenServices() []Service {
	return []Service{
		{
			Name:       "vreden",
			Kind:       KindOpen,
			Method:     http.MethodGet,
			Endpoint:   "https://api.vreden.my.id/api/tiktok",
			QueryParam: DefaultQueryParam,
			VideoPaths: []string{"video_url", "download_url", "result.play", "result.nowm", "result.video"},
			Timeout:    DefaultOpenTimeout,
		},
	}
}

// DefaultSnaptikService は /snaptik エンドポイントが呼び出すサービスです。
func DefaultSnaptikService() Service {
	return DefaultExternalServices()[0]
}
