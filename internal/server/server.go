package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shouni/go-tiktok-exact/internal/config"
	"github.com/shouni/go-tiktok-exact/pkg/api"
	"github.com/shouni/go-tiktok-exact/pkg/extract"
	"github.com/shouni/go-tiktok-exact/pkg/logx"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

const usage = "/api/download?url=https://vm.tiktok.com/xxxxx"

// Extractor は /download が呼び出す抽出チェーンのインターフェースです。
// *extract.Extractor がこれを満たします。
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*types.Result, error)
}

// SnaptikFetcher は /snaptik が呼び出す単一サービス取得のインターフェースです。
type SnaptikFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*api.SnaptikResult, error)
}

// DownloadResponse は /download の成功時のレスポンス形式です。
type DownloadResponse struct {
	Success bool          `json:"success"`
	Data    *types.Result `json:"data"`
}

// Server は抽出チェーンをHTTPで公開するサーバーです。
type Server struct {
	cfg       config.ServerConfig
	extractor Extractor
	snaptik   SnaptikFetcher
	engine    *gin.Engine
	server    *http.Server
}

// New はginエンジンを構築し、すべてのルートを登録します。
// ルートは /download, /snaptik と、その /api 付きの別名、および /health です。
func New(cfg config.ServerConfig, extractor Extractor, snaptik SnaptikFetcher) *Server {
	logx.Init()

	s := &Server{
		cfg:       cfg,
		extractor: extractor,
		snaptik:   snaptik,
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(requestLoggerMiddleware())
	engine.Use(corsMiddleware())
	engine.Use(gin.CustomRecovery(recoveryHandler))

	for _, prefix := range []string{"", "/api"} {
		engine.GET(prefix+"/download", s.handleDownload)
		engine.GET(prefix+"/snaptik", s.handleSnaptik)
	}
	engine.GET("/health", s.handleHealth)
	engine.GET("/api/health", s.handleHealth)

	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.engine = engine
	return s
}

// Handler はエンジンを http.Handler として返します。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start は設定されたアドレスで待ち受けます。Stop が呼ばれるまで戻りません。
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	logx.FromContext(context.Background()).Info("http server initialized", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Stop は処理中のリクエストを待ってサーバーを停止します。
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ----------------------------------------------------------------------
// ハンドラー
// ----------------------------------------------------------------------

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDownload は抽出結果のエラー種別をHTTPステータスに対応付けます。
// ErrInvalidURL は400、ErrNotFound は404、それ以外は500です。
func (s *Server) handleDownload(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "TikTok URL is required",
			"usage": usage,
		})
		return
	}

	result, err := s.extractor.Extract(c.Request.Context(), rawURL)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, DownloadResponse{Success: true, Data: result})
	case errors.Is(err, extract.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid TikTok URL"})
	case errors.Is(err, extract.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found or unavailable"})
	default:
		logx.FromContext(c.Request.Context()).Error("extraction failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fetch video",
			"message": err.Error(),
		})
	}
}

func (s *Server) handleSnaptik(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL parameter is required"})
		return
	}

	result, err := s.snaptik.Fetch(c.Request.Context(), rawURL)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, api.ErrNoVideoURL):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
	default:
		logx.FromContext(c.Request.Context()).Error("snaptik lookup failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to download video",
			"message": err.Error(),
		})
	}
}

// ----------------------------------------------------------------------
// ミドルウェア
// ----------------------------------------------------------------------

// requestLoggerMiddleware はリクエストIDを付与し、リクエスト単位のロガーをコンテキストに載せます。
func requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		ctx := logx.With(c.Request.Context(),
			"request_id", reqID,
			"http.method", c.Request.Method,
			"http.path", c.Request.URL.Path,
			"remote_addr", c.ClientIP(),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		} else if status >= 400 {
			lvl = slog.LevelWarn
		}
		logx.FromContext(ctx).Log(ctx, lvl, "request",
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		)
	}
}

// corsMiddleware はすべてのオリジンを許可します。
// プリフライト (OPTIONS) はここで 200 を返し、ボディなしで終了します。
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func recoveryHandler(c *gin.Context, recovered any) {
	logx.FromContext(c.Request.Context()).Error("panic recovered", "error", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to fetch video",
		"message": http.StatusText(http.StatusInternalServerError),
	})
}
