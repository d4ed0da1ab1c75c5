package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	// モック側で *http.Response 型のnilを返すこと
	return args.Get(0).(*http.Response), args.Error(1)
}

// recordingDoer は受け取ったリクエストボディを記録し、statuses の順にレスポンスを返します。
type recordingDoer struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
	headers  []http.Header
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = string(b)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodies = append(d.bodies, body)
	d.headers = append(d.headers, req.Header.Clone())
	status := http.StatusOK
	if n := len(d.bodies) - 1; n < len(d.statuses) {
		status = d.statuses[n]
	}
	return newResponse(status, "ok"), nil
}

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fastRetries はテスト用に間隔を短くしたリトライ設定を返します。
func fastRetries(max uint64) []Option {
	return []Option{WithMaxRetries(max), WithBackoff(time.Millisecond, time.Millisecond)}
}

func TestNew(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		client := New(0)
		assert.Equal(t, DefaultHTTPTimeout, client.base.Timeout)
		assert.NotNil(t, client.base.Jar)
		assert.Equal(t, uint64(DefaultMaxRetries), client.kit.RetryConfig.MaxRetries)
		assert.Equal(t, InitialBackoffInterval, client.kit.RetryConfig.InitialInterval)
		assert.Equal(t, MaxBackoffInterval, client.kit.RetryConfig.MaxInterval)
	})
	t.Run("custom timeout", func(t *testing.T) {
		timeout := 30 * time.Second
		client := New(timeout)
		assert.Equal(t, timeout, client.base.Timeout)
	})
	t.Run("with options", func(t *testing.T) {
		client := New(10*time.Second, WithHTTPClient(new(MockHTTPClient)), WithMaxRetries(5))
		assert.Equal(t, uint64(5), client.kit.RetryConfig.MaxRetries)
	})
}

func TestFetchBytes(t *testing.T) {
	t.Run("successful fetch sends browser headers", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
			return req.Method == http.MethodGet &&
				req.Header.Get("User-Agent") == UserAgent &&
				req.Header.Get("Accept-Language") == "en-US,en;q=0.5"
		})).Return(newResponse(http.StatusOK, "<html></html>"), nil)

		client := New(time.Second, WithHTTPClient(mockClient))
		body, err := client.FetchBytes(context.Background(), "https://example.com", BrowserHeaders())
		require.NoError(t, err)
		assert.Equal(t, "<html></html>", string(body))
		mockClient.AssertExpectations(t)
	})
	t.Run("network error", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		var resp *http.Response
		mockClient.On("Do", mock.Anything).Return(resp, errors.New("network error"))

		client := New(time.Second, WithHTTPClient(mockClient))
		body, err := client.FetchBytes(context.Background(), "https://example.com", nil)
		assert.Error(t, err)
		assert.Nil(t, body)
		mockClient.AssertNumberOfCalls(t, "Do", 1)
	})
	t.Run("non-retryable error", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(newResponse(http.StatusForbidden, "blocked"), nil)

		client := New(time.Second, append(fastRetries(3), WithHTTPClient(mockClient))...)
		body, err := client.FetchBytes(context.Background(), "https://example.com", nil)
		require.Error(t, err)
		assert.Nil(t, body)
		assert.True(t, httpkit.IsNonRetryableError(err))
		mockClient.AssertNumberOfCalls(t, "Do", 1)
	})
	t.Run("server error is retried", func(t *testing.T) {
		mockClient := new(MockHTTPClient)
		mockClient.On("Do", mock.Anything).Return(newResponse(http.StatusBadGateway, "oops"), nil).Once()
		mockClient.On("Do", mock.Anything).Return(newResponse(http.StatusOK, "ok"), nil).Once()

		client := New(time.Second, append(fastRetries(2), WithHTTPClient(mockClient))...)
		body, err := client.FetchBytes(context.Background(), "https://example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		mockClient.AssertNumberOfCalls(t, "Do", 2)
	})
	t.Run("caller header is not modified", func(t *testing.T) {
		doer := &recordingDoer{}
		client := New(time.Second, WithHTTPClient(doer))
		h := APIHeaders("https://www.tikwm.com/")
		_, err := client.FetchBytes(context.Background(), "https://example.com", h)
		require.NoError(t, err)
		assert.Equal(t, APIHeaders("https://www.tikwm.com/"), h)
		assert.Equal(t, "https://www.tikwm.com/", doer.headers[0].Get("Referer"))
	})
}

func TestPostJSON(t *testing.T) {
	t.Run("successful post", func(t *testing.T) {
		doer := &recordingDoer{}
		client := New(time.Second, WithHTTPClient(doer))
		body, err := client.PostJSON(context.Background(), "https://example.com", map[string]string{"url": "https://vm.tiktok.com/ZM1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		require.Len(t, doer.bodies, 1)
		assert.Equal(t, `{"url":"https://vm.tiktok.com/ZM1"}`, doer.bodies[0])
		assert.Equal(t, "application/json", doer.headers[0].Get("Content-Type"))
	})
	t.Run("retry resends the same body", func(t *testing.T) {
		doer := &recordingDoer{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusOK}}
		client := New(time.Second, append(fastRetries(3), WithHTTPClient(doer))...)
		_, err := client.PostJSON(context.Background(), "https://example.com", map[string]string{"url": "https://vm.tiktok.com/ZM1"}, nil)
		require.NoError(t, err)
		require.Len(t, doer.bodies, 3)
		for i, b := range doer.bodies {
			assert.Equal(t, `{"url":"https://vm.tiktok.com/ZM1"}`, b, "%d回目の送信でボディが失われています", i+1)
		}
	})
	t.Run("json serialization error", func(t *testing.T) {
		client := New(time.Second, WithHTTPClient(&recordingDoer{}))
		body, err := client.PostJSON(context.Background(), "https://example.com", make(chan int), nil)
		assert.Error(t, err)
		assert.Nil(t, body)
	})
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://ssstik.io/", r.Header.Get("Referer"))
		_, _ = w.Write([]byte("id=" + r.PostForm.Get("id")))
	}))
	defer srv.Close()

	client := New(5 * time.Second)
	h := http.Header{}
	h.Set("Referer", "https://ssstik.io/")
	body, err := client.PostForm(context.Background(), srv.URL, url.Values{"id": {"abc"}}, h)
	require.NoError(t, err)
	assert.Equal(t, "id=abc", string(body))
}

func TestPostFormRetryOverNetwork(t *testing.T) {
	var mu sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		received = append(received, r.PostForm.Get("token"))
		first := len(received) == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	client := New(5*time.Second, fastRetries(1)...)
	body, err := client.PostForm(context.Background(), srv.URL, url.Values{"token": {"t1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, []string{"t1", "t1"}, received)
}
