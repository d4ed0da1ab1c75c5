package extract

import (
	"context"

	"github.com/shouni/go-tiktok-exact/pkg/types"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DIP)
// ----------------------------------------------------------------------

// Strategy は、1つの抽出戦略のインターフェースを定義します。
// Extractor は、この抽象の並びに依存します。
//
// Attempt が (nil, nil) を返した場合は「この戦略では見つからなかった」ことを意味し、
// エラーを返した場合はログに記録されたうえで次の戦略に進みます。
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, rawURL string) (*types.Result, error)
}
