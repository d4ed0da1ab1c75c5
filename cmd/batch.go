package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-tiktok-exact/internal/pipeline"
	"github.com/shouni/go-tiktok-exact/pkg/scraper"
)

// コマンドラインフラグ変数を定義
var (
	inputURLs   string // --urls フラグで受け取るカンマ区切りのURLリスト
	concurrency int    // --concurrency フラグで受け取る並列実行数
)

// runBatchPipeline は、複数URLの並列抽出を実行するメインロジックです。
func runBatchPipeline(urls []string, s scraper.Scraper, concurrency int) (successCount, errorCount int) {
	// 全体のタイムアウト: 同時実行数で割り切れない分も含めて、1件あたりのタイムアウト × 処理の段数
	rounds := (len(urls) + concurrency - 1) / concurrency
	overallTimeout := time.Duration(rounds) * DefaultOverallTimeout

	ctx, cancel := context.WithTimeout(context.Background(), overallTimeout)
	defer cancel()

	log.Printf("並列抽出開始 (対象URL数: %d, 最大同時実行数: %d, 全体タイムアウト: %s)\n",
		len(urls), concurrency, overallTimeout)

	results := s.ScrapeInParallel(ctx, urls)

	fmt.Println("--- 並列抽出結果 ---")
	for i, res := range results {
		if res.Error != nil {
			errorCount++
			fmt.Printf("❌ [%d] %s\n", i+1, res.URL)
			fmt.Printf("     エラー: %v\n", res.Error)
			continue
		}
		successCount++
		fmt.Printf("✅ [%d] %s\n", i+1, res.URL)
		fmt.Printf("     ダウンロードURL: %s\n", res.Result.DownloadURL)
		fmt.Printf("     タイトル: %s / 投稿者: %s (%s)\n", res.Result.Title, res.Result.Author, res.Result.Method)
	}
	fmt.Println("-------------------------------")
	fmt.Printf("完了: 成功 %d 件, 失敗 %d 件\n", successCount, errorCount)
	return successCount, errorCount
}

// readURLs は --urls フラグ、なければ標準入力からURLのリストを読み込みます。
func readURLs() ([]string, error) {
	var urls []string
	if inputURLs != "" {
		for _, u := range strings.Split(inputURLs, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		return urls, nil
	}

	log.Println("URLが指定されていないため、標準入力からURLを読み込みます (Ctrl+DまたはEOFで終了)...")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if u := strings.TrimSpace(scanner.Text()); u != "" {
			urls = append(urls, u)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("標準入力の読み取りエラー: %w", err)
	}
	return urls, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "複数のTikTokのURLを並列で処理し、動画のダウンロードURLを取得します",
	Long:  `--urls フラグでカンマ区切りのURLリストを受け取るか、標準入力からURLを一行ずつ読み込み、指定された最大同時実行数で並列抽出を実行します。各URLのフォールバックチェーンは逐次実行されます。`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 依存性の初期化 (Client -> Extractor -> Scraper)
		client := GetGlobalClient()
		if client == nil {
			return fmt.Errorf("HTTPクライアントの取得に失敗しました")
		}
		extractor, err := pipeline.NewExtractor(GetConfig(), client)
		if err != nil {
			return fmt.Errorf("Extractorの初期化エラー: %w", err)
		}

		// 2. 処理対象URLのリストを決定
		rawURLs, err := readURLs()
		if err != nil {
			return err
		}
		if len(rawURLs) == 0 {
			return fmt.Errorf("処理対象のURLが一つも指定されていません")
		}
		urls := make([]string, 0, len(rawURLs))
		for _, u := range rawURLs {
			processed, err := ensureScheme(u)
			if err != nil {
				return fmt.Errorf("URLスキームの処理エラー: %w", err)
			}
			urls = append(urls, processed)
		}

		if concurrency <= 0 {
			concurrency = scraper.DefaultMaxConcurrency
		}

		// 3. メインロジックの実行
		_, errorCount := runBatchPipeline(urls, scraper.NewParallelScraper(extractor, concurrency), concurrency)
		if errorCount == len(urls) {
			return fmt.Errorf("すべてのURLの抽出に失敗しました")
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&inputURLs, "urls", "u", "",
		"抽出対象のカンマ区切りURLリスト (例: url1,url2,url3)")

	batchCmd.Flags().IntVarP(&concurrency, "concurrency", "c",
		scraper.DefaultMaxConcurrency,
		fmt.Sprintf("最大並列実行数 (デフォルト: %d)", scraper.DefaultMaxConcurrency))
}
