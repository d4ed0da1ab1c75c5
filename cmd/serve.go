package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-tiktok-exact/internal/pipeline"
	"github.com/shouni/go-tiktok-exact/internal/server"
)

const shutdownTimeout = 10 * time.Second

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTPサーバーとして /download と /snaptik を提供します",
	Long:  `GET /download?url=... (および /api/download) でフォールバックチェーンによる抽出を、GET /snaptik?url=... で単一サービスの整形結果を返すHTTPサーバーを起動します。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		client := GetGlobalClient()
		if cfg == nil || client == nil {
			return fmt.Errorf("HTTPクライアントが初期化されていません。rootコマンドのPreRunを確認してください")
		}

		extractor, err := pipeline.NewExtractor(cfg, client)
		if err != nil {
			return fmt.Errorf("Extractorの初期化エラー: %w", err)
		}
		snaptik, err := pipeline.NewSnaptik(cfg, client)
		if err != nil {
			return fmt.Errorf("Snaptikの初期化エラー: %w", err)
		}

		serverCfg := cfg.Server
		if listenAddr != "" {
			serverCfg.Addr = listenAddr
		}
		if !clibase.Flags.Verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.New(serverCfg, extractor, snaptik)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Printf("サーバーを起動します (addr: %s, 戦略: %v)", serverCfg.Addr, extractor.Strategies())
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("サーバーの起動に失敗しました: %w", err)
		case <-ctx.Done():
			log.Println("シャットダウンしています...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "待ち受けアドレス (例: :8080)。未指定時は設定ファイルの値")
}
