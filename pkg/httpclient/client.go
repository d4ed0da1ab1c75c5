package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/net/publicsuffix"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 15 * time.Second

	// DefaultMaxRetries は、抽出戦略ごとのリトライ回数の既定値です。
	// 戦略チェーン自体がフォールバックを担うため、既定ではリトライしません。
	DefaultMaxRetries = 0
	// バックオフのカスタム設定
	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Doer は、標準の *http.Client.Do()と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client は、すべての抽出戦略で共有されるHTTPクライアントです。
// httpkit.Client をラップし、ヘッダーセットの指定とフォーム送信を追加します。
// プロセス起動時に一度だけ生成され、リクエストごとの可変状態はCookie Jar以外に持ちません。
type Client struct {
	kit  *httpkit.Client
	base *http.Client // WithHTTPClient で差し替えられるまで使われる標準クライアント
}

// Option はClientの設定を行うための関数型です。
// 内部の httpkit.Client のオプションを適用するためのラッパーです。
type Option func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		httpkit.WithHTTPClient(&rewindDoer{next: doer})(c.kit)
	}
}

// WithMaxRetries は最大リトライ回数を設定します。
func WithMaxRetries(max uint64) Option {
	return func(c *Client) {
		httpkit.WithMaxRetries(max)(c.kit)
	}
}

// WithBackoff はリトライの初期間隔と最大間隔を設定します。
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		httpkit.WithInitialInterval(initial)(c.kit)
		httpkit.WithMaxInterval(max)(c.kit)
	}
}

// New は、新しいClientを生成します。
// timeout は個々のリクエストの上限で、各戦略はさらに短いタイムアウトをコンテキストで指定します。
func New(timeout time.Duration, options ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	// 1. 短縮URLのリダイレクトをまたいでCookieを維持する標準クライアント
	// (cookiejar.New は現状エラーを返さない)
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	base := &http.Client{
		Timeout: timeout,
		Jar:     jar,
	}

	// 2. httpkit.Client を初期化
	c := &Client{
		kit: httpkit.New(
			timeout,
			httpkit.WithHTTPClient(&rewindDoer{next: base}),
			httpkit.WithMaxRetries(DefaultMaxRetries),
			httpkit.WithInitialInterval(InitialBackoffInterval),
			httpkit.WithMaxInterval(MaxBackoffInterval),
		),
		base: base,
	}

	// 3. Option で設定を上書き
	for _, opt := range options {
		opt(c)
	}
	return c
}

// rewindDoer は、送信のたびにリクエストボディを GetBody から作り直します。
// httpkit.Client.DoRequest はリトライ時に同じ *http.Request を再送するため、
// これがないと2回目以降のPOSTは空のボディで送信されます。
type rewindDoer struct {
	next Doer
}

func (d *rewindDoer) Do(req *http.Request) (*http.Response, error) {
	if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("リクエストボディの再生成に失敗しました: %w", err)
		}
		req.Body = body
	}
	return d.next.Do(req)
}

// BrowserHeaders は、TikTokのページ取得に使うブラウザ風のヘッダーセットを返します。
// Accept-Encoding は net/http の自動gzip展開に任せるため設定しません。
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// APIHeaders は、外部APIの呼び出しに使うヘッダーセットを返します。
func APIHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// FetchBytes はURLをGETし、レスポンスボディをバイト配列として返します。
func (c *Client) FetchBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, header)
}

// PostJSON は指定されたデータをJSONとしてPOSTし、レスポンスボディをバイト配列として返します。
func (c *Client) PostJSON(ctx context.Context, rawURL string, data any, header http.Header) ([]byte, error) {
	requestBody, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("JSONデータのシリアライズに失敗しました: %w", err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPost, rawURL, requestBody, h)
}

// PostForm はフォームデータを application/x-www-form-urlencoded でPOSTします。
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), h)
}

// do はリクエストを組み立て、リトライとステータス判定を httpkit.Client.DoRequest に任せます。
// 4xx は httpkit.NonRetryableHTTPError として即座に返され、5xx とネットワークエラーはリトライ対象です。
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%sリクエスト作成に失敗しました: %w", method, err)
	}

	req.Header.Set("User-Agent", UserAgent)
	for key, values := range header.Clone() {
		req.Header[key] = values
	}
	return c.kit.DoRequest(req)
}
