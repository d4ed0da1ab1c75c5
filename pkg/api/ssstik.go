package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shouni/go-tiktok-exact/pkg/httpclient"
	"github.com/shouni/go-tiktok-exact/pkg/types"
)

const ssstikSubmitPath = "/abc"

// SsstikStrategy は、トークン付きフォームを送信してダウンロードリンクを得るHTMLサービスの戦略です。
type SsstikStrategy struct {
	client  Client
	service Service
	timeout time.Duration
}

// NewSsstik は、ssstik形式のサービスの戦略を生成します。
func NewSsstik(client Client, service Service) (*SsstikStrategy, error) {
	if client == nil {
		return nil, errors.New("clientはnilであってはなりません")
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return &SsstikStrategy{
		client:  client,
		service: service,
		timeout: service.timeout(DefaultExternalTimeout),
	}, nil
}

// Name は戦略名を返します。
func (s *SsstikStrategy) Name() string {
	return "external:" + s.service.Name
}

// Attempt はトップページからトークンを取得し、フォームを送信して最初のダウンロードリンクを返します。
func (s *SsstikStrategy) Attempt(ctx context.Context, rawURL string) (*types.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 1. トークンの取得
	page, err := s.client.FetchBytes(ctx, s.service.Endpoint, httpclient.BrowserHeaders())
	if err != nil {
		return nil, fmt.Errorf("%sのページ取得に失敗しました: %w", s.service.Name, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%sのページ解析に失敗しました: %w", s.service.Name, err)
	}
	token, ok := doc.Find(`input[name="token"]`).First().Attr("value")
	if !ok {
		return nil, nil
	}

	// 2. フォーム送信
	form := url.Values{
		"id":     {rawURL},
		"token":  {token},
		"locale": {"en"},
	}
	header := httpclient.BrowserHeaders()
	header.Set("Origin", strings.TrimRight(s.service.Endpoint, "/"))
	if s.service.Referer != "" {
		header.Set("Referer", s.service.Referer)
	}
	body, err := s.client.PostForm(ctx, strings.TrimRight(s.service.Endpoint, "/")+ssstikSubmitPath, form, header)
	if err != nil {
		return nil, fmt.Errorf("%sへのフォーム送信に失敗しました: %w", s.service.Name, err)
	}

	// 3. ダウンロードリンクの抽出
	result, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%sの結果解析に失敗しました: %w", s.service.Name, err)
	}
	href, _ := result.Find("a[download]").First().Attr("href")
	if !strings.HasPrefix(href, "http") {
		return nil, nil
	}
	return types.NewResult(href, "", "", rawURL, types.MethodExternalAPI, s.service.baseHost()), nil
}
