package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-tiktok-exact/internal/pipeline"
)

var rawURL string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "指定されたTikTokのURLまたは標準入力から動画のダウンロードURLを取得します",
	Long:  `指定されたTikTokのURLまたは標準入力から、直接取得 → 外部API → 簡易API の順に試行して動画のダウンロードURLを取得し、JSONで出力します。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 処理対象URLの決定 (フラグ優先)
		urlToProcess := rawURL
		if urlToProcess == "" {
			log.Println("URLが指定されていないため、標準入力からURLを読み込みます...")
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(os.Stderr, "処理するURLを入力してください: ")

			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("標準入力の読み取りエラー: %w", err)
				}
				return fmt.Errorf("URLが入力されていません")
			}
			urlToProcess = strings.TrimSpace(scanner.Text())
		}

		// 2. URLのスキーム補完
		processedURL, err := ensureScheme(urlToProcess)
		if err != nil {
			return fmt.Errorf("URLスキームの処理エラー: %w", err)
		}
		log.Printf("処理対象URL: %s (全体タイムアウト: %s)\n", processedURL, DefaultOverallTimeout)

		// 3. 依存性の初期化
		client := GetGlobalClient()
		if client == nil {
			return fmt.Errorf("HTTPクライアントが初期化されていません。rootコマンドのPreRunを確認してください")
		}
		extractor, err := pipeline.NewExtractor(GetConfig(), client)
		if err != nil {
			return fmt.Errorf("Extractorの初期化エラー: %w", err)
		}

		// 4. メインロジックの実行
		result, err := pipeline.ExtractURL(context.Background(), extractor, processedURL, DefaultOverallTimeout)
		if err != nil {
			return err
		}

		// 5. 結果の出力
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&rawURL, "url", "u", "", "抽出対象のTikTokのURL")
}
