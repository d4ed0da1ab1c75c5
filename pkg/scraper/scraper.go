package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shouni/go-tiktok-exact/pkg/types"
)

const (
	// DefaultMaxConcurrency は、並列抽出のデフォルトの最大同時実行数を定義します。
	DefaultMaxConcurrency = 6
	// DefaultScrapeRateLimit は、各URLの処理開始の最小間隔を定義します。
	DefaultScrapeRateLimit = 500 * time.Millisecond
)

// Extractor は1件のURLから動画URLを抽出する機能のインターフェースです。
// *extract.Extractor がこれを満たします。
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*types.Result, error)
}

// Scraper は複数URLの抽出機能を提供するインターフェースです。
type Scraper interface {
	ScrapeInParallel(ctx context.Context, urls []string) []types.URLResult
}

// ParallelScraper は Scraper インターフェースを実装する並列処理構造体です。
// URLごとの戦略チェーンは逐次のまま、URL同士を並列に処理します。
type ParallelScraper struct {
	extractor      Extractor
	maxConcurrency int           // 最大並列数を保持するフィールド
	rateLimit      time.Duration // レートリミッターを保持するフィールド
}

// Option は ParallelScraper の設定を行うための関数型です。
type Option func(*ParallelScraper)

// WithRateLimit は処理開始の間隔を設定します。
func WithRateLimit(d time.Duration) Option {
	return func(s *ParallelScraper) {
		if d > 0 {
			s.rateLimit = d
		}
	}
}

// NewParallelScraper は ParallelScraper を初期化します。
// 依存性として Extractor と、最大同時実行数を受け取ります。
func NewParallelScraper(extractor Extractor, maxConcurrency int, options ...Option) *ParallelScraper {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	s := &ParallelScraper{
		extractor:      extractor,
		maxConcurrency: maxConcurrency,
		rateLimit:      DefaultScrapeRateLimit,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// ScrapeInParallel は Scraper インターフェースのメソッドを実装します。
// 結果は入力と同じ順序で返されます。
func (s *ParallelScraper) ScrapeInParallel(ctx context.Context, urls []string) []types.URLResult {
	var wg sync.WaitGroup
	results := make([]types.URLResult, len(urls))

	// バッファ付きチャネルをセマフォとして使用し、同時実行数を制限する
	semaphore := make(chan struct{}, s.maxConcurrency)

	ticker := time.NewTicker(s.rateLimit)
	defer ticker.Stop()

	for i, u := range urls {
		wg.Add(1)

		// スロットの確保。maxConcurrency件実行中の場合はここでブロックして待機。
		semaphore <- struct{}{}

		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			// 最初のURLは即時、以降はレートリミット間隔ごとに開始する
			if i > 0 {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					results[i] = types.URLResult{URL: u, Error: ctx.Err()}
					return
				}
			}

			result, err := s.extractor.Extract(ctx, u)
			if err != nil {
				err = fmt.Errorf("動画URLの抽出に失敗しました: %w", err)
			}
			results[i] = types.URLResult{
				URL:    u,
				Result: result,
				Error:  err,
			}
		}(i, u)
	}

	wg.Wait()
	return results
}
