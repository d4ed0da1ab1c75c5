package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shouni/go-tiktok-exact/pkg/api"
	"github.com/shouni/go-tiktok-exact/pkg/scrape"
)

// FileName は、--config 未指定時にカレントディレクトリから探す設定ファイル名です。
const FileName = "services.yml"

// ServerConfig はHTTPサーバーの設定です。
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Config は、抽出チェーンとサーバーの設定全体を保持します。
type Config struct {
	Server ServerConfig `yaml:"server"`

	// DirectTimeout はTikTokページ直接取得のタイムアウトです。
	DirectTimeout time.Duration `yaml:"direct_timeout"`

	// External と Open は、直接取得の後に順番に試すサービスの並びです。
	External []api.Service `yaml:"external"`
	Open     []api.Service `yaml:"open"`

	// Snaptik は /snaptik エンドポイントが1回だけ呼び出すサービスです。
	Snaptik api.Service `yaml:"snaptik"`
}

// Default は組み込みの既定設定を返します。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		DirectTimeout: scrape.DefaultTimeout,
		External:      api.DefaultExternalServices(),
		Open:          api.DefaultOpenServices(),
		Snaptik:       api.DefaultSnaptikService(),
	}
}

// Load は設定ファイルを読み込み、既定設定に上書きします。
// path が空の場合は FileName を探し、存在しなければ既定設定を返します。
// path が明示されていてファイルが存在しない場合はエラーになります。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("設定ファイル(%s)の読み込みに失敗しました: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイル(%s)の解析に失敗しました: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定ファイル(%s)が不正です: %w", path, err)
	}
	return cfg, nil
}

// Validate は各サービス設定を検証します。
func (c *Config) Validate() error {
	for _, s := range c.External {
		if err := s.Validate(); err != nil {
			return err
		}
		if s.Kind == api.KindOpen {
			return fmt.Errorf("サービス(%s): external に kind=open は指定できません", s.Name)
		}
	}
	for _, s := range c.Open {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if err := c.Snaptik.Validate(); err != nil {
		return fmt.Errorf("snaptik: %w", err)
	}
	if c.DirectTimeout < 0 {
		return errors.New("direct_timeout は0以上である必要があります")
	}
	return nil
}
