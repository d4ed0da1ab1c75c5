package logx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ctxKey はコンテキストに格納するロガーのキーです。
type ctxKey struct{}

const appName = "tiktok-exact"

var (
	once       sync.Once
	mu         sync.RWMutex
	baseLogger *slog.Logger
)

// Init は環境変数からベースロガーを初期化します。起動直後に呼び出してください。
//
//	LOG_LEVEL=debug|info|warn|error (既定: info)
//	LOG_FORMAT=json|text (既定: json)
//
// 標準出力は抽出結果に使うため、ログは標準エラー出力に書き出します。
// slog.SetDefault は呼ばないため、標準の log パッケージの出力先は変わりません。
func Init() {
	once.Do(func() {
		level := os.Getenv("LOG_LEVEL")
		format := os.Getenv("LOG_FORMAT")
		setBase(New(os.Stderr, level, format))
		base().Debug("logger initialized", "level", level, "format", format)
	})
}

// SetVerbose はベースロガーを debug レベルで w に出力するよう差し替えます。
func SetVerbose(w io.Writer) {
	once.Do(func() {})
	setBase(New(w, "debug", os.Getenv("LOG_FORMAT")))
}

// New は、レベル名と形式名を指定して w に出力するロガーを生成します。
func New(w io.Writer, level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: false}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler).With("app", appName)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext はリクエスト単位のロガーを取り出します。なければベースロガーを返します。
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return base()
	}
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return base()
}

// With は属性を追加したロガーを持つ新しいコンテキストを返します。
func With(ctx context.Context, args ...any) context.Context {
	l := FromContext(ctx).With(args...)
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithLogger は l をリクエスト単位のロガーとして持つ新しいコンテキストを返します。
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func setBase(l *slog.Logger) {
	mu.Lock()
	baseLogger = l
	mu.Unlock()
}

// base は初期化済みのベースロガーを返します (未初期化なら初期化します)。
func base() *slog.Logger {
	mu.RLock()
	l := baseLogger
	mu.RUnlock()
	if l == nil {
		Init()
		mu.RLock()
		l = baseLogger
		mu.RUnlock()
	}
	return l
}
