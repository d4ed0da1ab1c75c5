package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-tiktok-exact/internal/config"
	"github.com/shouni/go-tiktok-exact/pkg/httpclient"
	"github.com/shouni/go-tiktok-exact/pkg/logx"
)

// --- グローバル定数 ---

const (
	appName           = "tiktok-exact"
	defaultTimeoutSec = 15 // 秒
	defaultMaxRetries = httpclient.DefaultMaxRetries

	// DefaultOverallTimeout は1件のURLに対するフォールバックチェーン全体のタイムアウトです。
	// 直接取得と各サービスのタイムアウトの合計を上回るように設定します。
	DefaultOverallTimeout = 90 * time.Second
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec int    // --timeout タイムアウト
	MaxRetries int    // --max-retries リトライ回数
	ConfigPath string // --config サービス設定ファイル
}

var Flags AppFlags

var (
	globalClient *httpclient.Client
	globalConfig *config.Config
)

// --- 初期化とロジック (clibaseへのコールバックとして利用) ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().IntVar(
		&Flags.TimeoutSec,
		"timeout",
		defaultTimeoutSec,
		"HTTPリクエストのタイムアウト時間（秒）",
	)
	rootCmd.PersistentFlags().IntVar(
		&Flags.MaxRetries,
		"max-retries",
		defaultMaxRetries,
		"HTTPリクエストのリトライ最大回数 (0はリトライなし)",
	)
	rootCmd.PersistentFlags().StringVar(
		&Flags.ConfigPath,
		"config",
		"",
		fmt.Sprintf("サービス設定ファイルのパス (未指定時は ./%s があれば使用)", config.FileName),
	)
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	if clibase.Flags.Verbose {
		logx.SetVerbose(os.Stderr)
	} else {
		logx.Init()
	}

	if Flags.MaxRetries < 0 {
		return fmt.Errorf("--max-retries は0以上である必要があります: %d", Flags.MaxRetries)
	}
	timeout := time.Duration(Flags.TimeoutSec) * time.Second

	cfg, err := config.Load(Flags.ConfigPath)
	if err != nil {
		return err
	}
	globalConfig = cfg

	if clibase.Flags.Verbose {
		log.Printf("HTTPクライアントのタイムアウトを設定しました (Timeout: %s)。", timeout)
		log.Printf("HTTPクライアントのリトライ回数を設定しました (MaxRetries: %d)。", Flags.MaxRetries)
		log.Printf("外部API: %d件, 簡易API: %d件", len(cfg.External), len(cfg.Open))
	}

	// 全戦略で共有するHTTPクライアントの初期化
	globalClient = httpclient.New(
		timeout,
		httpclient.WithMaxRetries(uint64(Flags.MaxRetries)),
	)

	return nil
}

// GetGlobalClient は、初期化された共有クライアントを返す関数 (DIの代わり)
func GetGlobalClient() *httpclient.Client {
	return globalClient
}

// GetConfig は、読み込まれた設定を返します。
func GetConfig() *config.Config {
	return globalConfig
}

// --- エントリポイント ---

// Execute は、clibaseを使用してルートコマンドを実行するメイン関数です。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		extractCmd,
		batchCmd,
		serveCmd,
	)
}
