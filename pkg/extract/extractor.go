package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shouni/go-tiktok-exact/pkg/logx"
	"github.com/shouni/go-tiktok-exact/pkg/tiktok"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// Extractor は、URLの検証後に戦略を登録順に1つずつ実行し、最初の成功を返します。
// 戦略の並び以外に状態を持たないため、複数のゴルーチンから同時に利用できます。
type Extractor struct {
	strategies []Strategy
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(strategies ...Strategy) (*Extractor, error) {
	if len(strategies) == 0 {
		return nil, errors.New("extract.NewExtractor: 戦略が1つも指定されていません")
	}
	for i, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("extract.NewExtractor: %d番目の戦略がnilです", i)
		}
	}
	return &Extractor{
		strategies: strategies,
	}, nil
}

// Strategies は登録されている戦略名を実行順に返します。
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract は指定されたURLの動画URLを抽出します。
//
//   - 対応しないURLの場合は ErrInvalidURL を返し、通信は行いません。
//   - すべての戦略が失敗した場合は ErrNotFound を返します。
//   - 戦略内のpanicやコンテキストの終了は *UpstreamError として返します。
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*types.Result, error) {
	// 1. URLの検証
	rawURL = strings.TrimSpace(rawURL)
	if !tiktok.IsValidURL(rawURL) {
		return nil, ErrInvalidURL
	}

	logger := logx.FromContext(ctx)

	// 2. 戦略を順に実行
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, &UpstreamError{Strategy: s.Name(), Err: err}
		}

		result, err := e.attempt(ctx, s, rawURL)
		if err != nil {
			var upstream *UpstreamError
			if errors.As(err, &upstream) {
				return nil, err
			}
			logger.Warn("strategy failed", "strategy", s.Name(), "err", err)
			continue
		}
		if result == nil || result.DownloadURL == "" {
			logger.Debug("strategy found nothing", "strategy", s.Name())
			continue
		}
		if !types.IsAbsoluteHTTP(result.DownloadURL) {
			logger.Warn("strategy returned a non-absolute url", "strategy", s.Name(), "url", result.DownloadURL)
			continue
		}

		logger.Info("video url extracted", "strategy", s.Name(), "method", result.Method)
		return result, nil
	}

	// 3. 最後の戦略の途中で呼び出し元が終了した場合は未検出と区別する
	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Strategy: "extract", Err: err}
	}
	return nil, ErrNotFound
}

// attempt は戦略を1回実行し、panicを *UpstreamError に変換します。
func (e *Extractor) attempt(ctx context.Context, s Strategy, rawURL string) (result *types.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			logx.FromContext(ctx).Error("panic recovered", "strategy", s.Name(), "error", v)
			result = nil
			err = &UpstreamError{Strategy: s.Name(), Err: fmt.Errorf("panic: %v", v)}
		}
	}()
	return s.Attempt(ctx, rawURL)
}
