package extract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-tiktok-exact/pkg/extract"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// ======================================================================
// モック (Mock) の定義
// ======================================================================

// stubStrategy はテスト用の extract.Strategy の実装です。
type stubStrategy struct {
	name     string
	result   *types.Result
	err      error
	panicVal any
	calls    int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, rawURL string) (*types.Result, error) {
	s.calls++
	if s.panicVal != nil {
		panic(s.panicVal)
	}
	if s.result != nil {
		r := *s.result
		r.OriginalURL = rawURL
		return &r, nil
	}
	return nil, s.err
}

const validURL = "https://vm.tiktok.com/ZM1"

// ======================================================================
// テスト関数
// ======================================================================

func TestNewExtractor(t *testing.T) {
	t.Run("success_with_strategies", func(t *testing.T) {
		e, err := extract.NewExtractor(&stubStrategy{name: "a"}, &stubStrategy{name: "b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, e.Strategies())
	})

	t.Run("error_without_strategies", func(t *testing.T) {
		e, err := extract.NewExtractor()
		assert.Error(t, err)
		assert.Nil(t, e)
	})

	t.Run("error_with_nil_strategy", func(t *testing.T) {
		e, err := extract.NewExtractor(&stubStrategy{name: "a"}, nil)
		assert.Error(t, err)
		assert.Nil(t, e)
	})
}

func TestExtract(t *testing.T) {
	found := &types.Result{DownloadURL: "https://cdn/a.mp4", Title: "T", Author: "A", Method: types.MethodExternalAPI}

	t.Run("invalid_url_skips_all_strategies", func(t *testing.T) {
		s := &stubStrategy{name: "direct", result: found}
		e, err := extract.NewExtractor(s)
		require.NoError(t, err)

		for _, in := range []string{"", "https://youtube.com/watch?v=x", "tiktok.com/@u/video/1"} {
			result, err := e.Extract(context.Background(), in)
			assert.ErrorIs(t, err, extract.ErrInvalidURL, "入力: %q", in)
			assert.Nil(t, result)
		}
		assert.Equal(t, 0, s.calls, "無効なURLでは戦略が呼ばれてはいけません")
	})

	t.Run("first_success_wins", func(t *testing.T) {
		first := &stubStrategy{name: "direct", err: errors.New("blocked")}
		second := &stubStrategy{name: "external:a", result: found}
		third := &stubStrategy{name: "external:b", result: &types.Result{DownloadURL: "https://cdn/b.mp4"}}
		e, err := extract.NewExtractor(first, second, third)
		require.NoError(t, err)

		result, err := e.Extract(context.Background(), validURL)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/a.mp4", result.DownloadURL)
		assert.Equal(t, validURL, result.OriginalURL)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
		assert.Equal(t, 0, third.calls, "成功後の戦略は実行されてはいけません")
	})

	t.Run("relative_url_is_skipped", func(t *testing.T) {
		relative := &stubStrategy{name: "open:a", result: &types.Result{DownloadURL: "/dl/z.mp4"}}
		next := &stubStrategy{name: "open:b", result: found}
		e, err := extract.NewExtractor(relative, next)
		require.NoError(t, err)

		result, err := e.Extract(context.Background(), validURL)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/a.mp4", result.DownloadURL)
		assert.Equal(t, 1, next.calls)
	})

	t.Run("not_found_after_all_strategies", func(t *testing.T) {
		strategies := []*stubStrategy{
			{name: "direct"},
			{name: "external:a", err: errors.New("502")},
			{name: "open:a"},
		}
		e, err := extract.NewExtractor(strategies[0], strategies[1], strategies[2])
		require.NoError(t, err)

		result, err := e.Extract(context.Background(), validURL)
		assert.ErrorIs(t, err, extract.ErrNotFound)
		assert.Nil(t, result)
		for _, s := range strategies {
			assert.Equal(t, 1, s.calls, "戦略 %s は1回だけ実行されるべきです", s.name)
		}
	})

	t.Run("panic_is_upstream_error", func(t *testing.T) {
		next := &stubStrategy{name: "external:a", result: found}
		e, err := extract.NewExtractor(&stubStrategy{name: "direct", panicVal: "boom"}, next)
		require.NoError(t, err)

		result, err := e.Extract(context.Background(), validURL)
		require.Error(t, err)
		assert.Nil(t, result)

		var upstream *extract.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, "direct", upstream.Strategy)
		assert.Contains(t, upstream.Error(), "boom")
		assert.Equal(t, 0, next.calls)
	})

	t.Run("canceled_context_is_upstream_error", func(t *testing.T) {
		s := &stubStrategy{name: "direct", result: found}
		e, err := extract.NewExtractor(s)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = e.Extract(ctx, validURL)
		var upstream *extract.UpstreamError
		assert.ErrorAs(t, err, &upstream)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, s.calls)
	})

	t.Run("idempotent", func(t *testing.T) {
		e, err := extract.NewExtractor(&stubStrategy{name: "direct"}, &stubStrategy{name: "open:a", result: found})
		require.NoError(t, err)

		first, err := e.Extract(context.Background(), validURL)
		require.NoError(t, err)
		second, err := e.Extract(context.Background(), validURL)
		require.NoError(t, err)
		assert.Equal(t, first, second, "同じ入力に対して同じ結果が返るべきです")
	})
}
