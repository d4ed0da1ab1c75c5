package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shouni/go-tiktok-exact/pkg/httpclient"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

var nullJSON = json.RawMessage("null")

// SnaptikResult は /snaptik エンドポイントのレスポンス形式です。
type SnaptikResult struct {
	Success     bool            `json:"success"`
	Author      string          `json:"author"`
	Title       string          `json:"title"`
	DownloadURL string          `json:"downloadUrl"`
	Music       json.RawMessage `json:"music"`
}

// Snaptik は、単一のJSONサービスを呼び出して結果を SnaptikResult に整形します。
// フォールバックは行いません。
type Snaptik struct {
	client  Client
	service Service
	timeout time.Duration
}

// NewSnaptik は、新しいSnaptikのインスタンスを生成します。
func NewSnaptik(client Client, service Service) (*Snaptik, error) {
	if client == nil {
		return nil, errors.New("clientはnilであってはなりません")
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return &Snaptik{
		client:  client,
		service: service,
		timeout: service.timeout(DefaultExternalTimeout),
	}, nil
}

// Fetch はサービスを1回だけ呼び出します。
// レスポンスに動画情報がない場合は ErrNoVideoURL を返します。
func (s *Snaptik) Fetch(ctx context.Context, rawURL string) (*SnaptikResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.client.PostJSON(ctx, s.service.Endpoint, map[string]string{"url": rawURL}, httpclient.APIHeaders(s.service.Referer))
	if err != nil {
		return nil, fmt.Errorf("%sの呼び出しに失敗しました: %w", s.service.Name, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%sのレスポンスをJSONとして解析できません", s.service.Name)
	}

	r := gjson.ParseBytes(body)
	downloadURL := types.NormalizeURL(firstString(r, []string{"video.noWatermark", "video.withWatermark"}), s.service.baseHost())
	if downloadURL == "" {
		return nil, ErrNoVideoURL
	}
	if !types.IsAbsoluteHTTP(downloadURL) {
		return nil, fmt.Errorf("%w: 絶対URLに変換できません (%s)", ErrNoVideoURL, downloadURL)
	}

	music := firstRaw(r, []string{"music"})
	if music == nil {
		music = nullJSON
	}

	return &SnaptikResult{
		Success:     true,
		Author:      orDefault(r.Get("author.nickname").String(), types.DefaultAuthor),
		Title:       orDefault(r.Get("title").String(), types.DefaultTitle),
		DownloadURL: downloadURL,
		Music:       music,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
