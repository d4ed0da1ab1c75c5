package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-tiktok-exact/internal/config"
	"github.com/shouni/go-tiktok-exact/pkg/api"
	"github.com/shouni/go-tiktok-exact/pkg/extract"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixedClient は常に同じボディかエラーを返す api.Client です。
type fixedClient struct {
	body string
	err  error
}

func (f *fixedClient) respond() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func (f *fixedClient) FetchBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return f.respond()
}

func (f *fixedClient) PostJSON(ctx context.Context, rawURL string, data any, header http.Header) ([]byte, error) {
	return f.respond()
}

func (f *fixedClient) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	return f.respond()
}

// stubStrategy は固定の結果を返す extract.Strategy です。
type stubStrategy struct {
	name     string
	err      error
	panicVal any
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, rawURL string) (*types.Result, error) {
	if s.panicVal != nil {
		panic(s.panicVal)
	}
	return nil, s.err
}

type stubSnaptik struct {
	result *api.SnaptikResult
	err    error
}

func (s *stubSnaptik) Fetch(ctx context.Context, rawURL string) (*api.SnaptikResult, error) {
	return s.result, s.err
}

func openService(name string) api.Service {
	return api.Service{Name: name, Kind: api.KindOpen, Endpoint: "https://" + name + ".example/api"}
}

// newChain は、直接取得と外部APIが失敗し、2番目の簡易APIだけが成功するチェーンを組み立てます。
func newChain(t *testing.T) *extract.Extractor {
	t.Helper()
	serviceA, err := api.NewOpen(&fixedClient{err: errors.New("connection refused")}, openService("a"))
	require.NoError(t, err)
	serviceB, err := api.NewOpen(&fixedClient{body: `{"video_url":"https://cdn/z.mp4"}`}, openService("b"))
	require.NoError(t, err)

	e, err := extract.NewExtractor(
		&stubStrategy{name: "direct", err: errors.New("403")},
		&stubStrategy{name: "external:a", err: errors.New("timeout")},
		serviceA,
		serviceB,
	)
	require.NoError(t, err)
	return e
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestDownloadEndToEnd(t *testing.T) {
	s := New(config.Default().Server, newChain(t), &stubSnaptik{})

	for _, path := range []string{"/download", "/api/download"} {
		rec := serve(t, s, http.MethodGet, path+"?url="+url.QueryEscape("https://vm.tiktok.com/ZM1"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.JSONEq(t, `{
			"success": true,
			"data": {
				"downloadURL": "https://cdn/z.mp4",
				"title": "TikTok Video",
				"author": "Unknown",
				"originalURL": "https://vm.tiktok.com/ZM1",
				"method": "open_api"
			}
		}`, rec.Body.String())
	}
}

func TestDownloadIsIdempotent(t *testing.T) {
	s := New(config.Default().Server, newChain(t), &stubSnaptik{})
	target := "/download?url=" + url.QueryEscape("https://vm.tiktok.com/ZM1")

	first := serve(t, s, http.MethodGet, target)
	second := serve(t, s, http.MethodGet, target)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestDownloadErrors(t *testing.T) {
	notFound, err := extract.NewExtractor(&stubStrategy{name: "direct"})
	require.NoError(t, err)
	panicking, err := extract.NewExtractor(&stubStrategy{name: "direct", panicVal: "boom"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		extractor *extract.Extractor
		method    string
		target    string
		status    int
		errorText string
	}{
		{"URLなし", notFound, http.MethodGet, "/download", http.StatusBadRequest, "TikTok URL is required"},
		{"無効なURL", notFound, http.MethodGet, "/download?url=https://youtube.com/watch", http.StatusBadRequest, "Invalid TikTok URL"},
		{"見つからない", notFound, http.MethodGet, "/download?url=https://vt.tiktok.com/ZS1", http.StatusNotFound, "Video not found or unavailable"},
		{"panic", panicking, http.MethodGet, "/download?url=https://vt.tiktok.com/ZS1", http.StatusInternalServerError, "Failed to fetch video"},
		{"POSTは不可", notFound, http.MethodPost, "/download?url=https://vt.tiktok.com/ZS1", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(config.Default().Server, tt.extractor, &stubSnaptik{})
			rec := serve(t, s, tt.method, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.errorText, decode(t, rec)["error"])
		})
	}

	t.Run("usage付きの400", func(t *testing.T) {
		s := New(config.Default().Server, notFound, &stubSnaptik{})
		body := decode(t, serve(t, s, http.MethodGet, "/api/download"))
		assert.Equal(t, usage, body["usage"])
	})

	t.Run("500にはmessageを含む", func(t *testing.T) {
		s := New(config.Default().Server, panicking, &stubSnaptik{})
		body := decode(t, serve(t, s, http.MethodGet, "/download?url=https://vt.tiktok.com/ZS1"))
		assert.Contains(t, body["message"], "boom")
	})
}

func TestPreflight(t *testing.T) {
	s := New(config.Default().Server, newChain(t), &stubSnaptik{})
	for _, path := range []string{"/download", "/api/snaptik"} {
		rec := serve(t, s, http.MethodOptions, path)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String(), "プリフライトはボディを返さないべきです")
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestSnaptik(t *testing.T) {
	ok := &api.SnaptikResult{Success: true, Author: "dancer", Title: "Dance", DownloadURL: "https://cdn/x.mp4", Music: json.RawMessage("null")}

	tests := []struct {
		name    string
		snaptik *stubSnaptik
		target  string
		status  int
	}{
		{"成功", &stubSnaptik{result: ok}, "/snaptik?url=https://vm.tiktok.com/ZM1", http.StatusOK},
		{"URLなし", &stubSnaptik{result: ok}, "/api/snaptik", http.StatusBadRequest},
		{"動画なし", &stubSnaptik{err: api.ErrNoVideoURL}, "/snaptik?url=https://vm.tiktok.com/ZM1", http.StatusNotFound},
		{"上流エラー", &stubSnaptik{err: errors.New("502")}, "/snaptik?url=https://vm.tiktok.com/ZM1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(config.Default().Server, newChain(t), tt.snaptik)
			rec := serve(t, s, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"success":true,"author":"dancer","title":"Dance","downloadUrl":"https://cdn/x.mp4","music":null}`, rec.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := New(config.Default().Server, newChain(t), &stubSnaptik{})
	rec := serve(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := New(config.Default().Server, newChain(t), &stubSnaptik{})
	req := httptest.NewRequest(http.MethodGet, "/health", strings.NewReader(""))
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
