package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-tiktok-exact/internal/config"
	"github.com/shouni/go-tiktok-exact/pkg/api"
	"github.com/shouni/go-tiktok-exact/pkg/extract"
	"github.com/shouni/go-tiktok-exact/pkg/scrape"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// BuildStrategies は、設定から抽出戦略の並びを組み立てます。
// 順序は 直接取得 → external の各サービス → open の各サービス です。
func BuildStrategies(cfg *config.Config, client api.Client) ([]extract.Strategy, error) {
	// 1. 直接取得
	direct, err := scrape.New(client, cfg.DirectTimeout)
	if err != nil {
		return nil, fmt.Errorf("直接取得戦略の初期化エラー: %w", err)
	}
	strategies := []extract.Strategy{direct}

	// 2. 外部API
	for _, svc := range cfg.External {
		var s extract.Strategy
		if svc.Kind == api.KindSsstik {
			s, err = api.NewSsstik(client, svc)
		} else {
			s, err = api.NewExternal(client, svc)
		}
		if err != nil {
			return nil, fmt.Errorf("外部API戦略(%s)の初期化エラー: %w", svc.Name, err)
		}
		strategies = append(strategies, s)
	}

	// 3. 簡易API
	for _, svc := range cfg.Open {
		s, err := api.NewOpen(client, svc)
		if err != nil {
			return nil, fmt.Errorf("簡易API戦略(%s)の初期化エラー: %w", svc.Name, err)
		}
		strategies = append(strategies, s)
	}

	return strategies, nil
}

// NewExtractor は、設定と共有クライアントからExtractorを生成します。
func NewExtractor(cfg *config.Config, client api.Client) (*extract.Extractor, error) {
	strategies, err := BuildStrategies(cfg, client)
	if err != nil {
		return nil, err
	}
	return extract.NewExtractor(strategies...)
}

// NewSnaptik は、/snaptik 用のクライアントを生成します。
func NewSnaptik(cfg *config.Config, client api.Client) (*api.Snaptik, error) {
	return api.NewSnaptik(client, cfg.Snaptik)
}

// ExtractURL は、全体のタイムアウトを設定したうえで1件のURLを抽出するメインの処理パイプラインです。
func ExtractURL(ctx context.Context, extractor *extract.Extractor, rawURL string, overallTimeout time.Duration) (*types.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, overallTimeout)
	defer cancel()

	result, err := extractor.Extract(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("動画URLの抽出エラー (URL: %s): %w", rawURL, err)
	}
	return result, nil
}
