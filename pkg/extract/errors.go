package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL は、入力が対応するTikTokのURL形式のいずれにも一致しないことを示します。
	ErrInvalidURL = errors.New("対応していないTikTokのURLです")
	// ErrNotFound は、すべての戦略が動画URLを見つけられなかったことを示します。
	ErrNotFound = errors.New("動画が見つからないか、利用できません")
)

// UpstreamError は、抽出処理そのものが継続できなくなった失敗を表します。
// 戦略内のpanicや、戦略の合間に呼び出し元のコンテキストが終了した場合に返されます。
type UpstreamError struct {
	Strategy string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("戦略(%s)の実行中に失敗しました: %v", e.Strategy, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
