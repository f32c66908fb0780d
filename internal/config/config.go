// Package config は環境変数と設定ファイルから設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort は既存クライアントが叩いているポート番号です。
	DefaultPort = "3011"
	// DefaultHost はループバックのみで待ち受けるためのホストです。
	DefaultHost = "127.0.0.1"
	// PrintUtilityName は同梱される印刷ユーティリティの実行ファイル名です。
	PrintUtilityName = "PDFtoPrinter.exe"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Host    string `yaml:"host"`     // 待ち受けホスト
	Port    string `yaml:"port"`     // 待ち受けポート
	GinMode string `yaml:"gin_mode"` // Ginの実行モード (debug, release, test)

	// スプール設定
	SpoolDir string `yaml:"spool_dir"` // 一時PDFを置くディレクトリ

	// 印刷設定
	PrintUtilityPath string        `yaml:"print_utility_path"` // 印刷ユーティリティのパス（存在しなければOS標準の印刷にフォールバック）
	PrintTimeout     time.Duration `yaml:"print_timeout"`      // 印刷プロセスの上限時間（0 は無制限）
	PrintWorkers     int           `yaml:"print_workers"`      // プリンターへ同時に送るジョブ数
	PrintQueueSize   int           `yaml:"print_queue_size"`   // 待機できるジョブ数

	// ファイル制限
	MaxFileSize int64 `yaml:"max_file_size"` // 受け付ける最大サイズ（バイト）

	// ジョブ履歴設定
	JobExpireMinutes int    `yaml:"job_expire_minutes"` // ジョブ履歴の保持期間（分）
	HistoryRedisURL  string `yaml:"history_redis_url"`  // 履歴をRedisに置く場合の接続URL（空ならメモリ）

	// ログ設定
	Log LogConfig `yaml:"log"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // 空なら標準出力のみ
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default は既定値で埋めた設定を返します。
func Default() *Config {
	return &Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		GinMode:          "release",
		SpoolDir:         filepath.Join(os.TempDir(), "pdf-print-relay"),
		PrintUtilityPath: filepath.Join(os.TempDir(), PrintUtilityName),
		PrintWorkers:     1,
		PrintQueueSize:   16,
		MaxFileSize:      104857600, // 100MB
		JobExpireMinutes: 10,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load は設定ファイルと環境変数から設定を読み込みます。
// 優先順位は 環境変数 > .env.local > CONFIG_FILE > 既定値 です。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, config); err != nil {
			return nil, err
		}
	}

	// サーバー設定
	config.Host = getEnv("HOST", config.Host)
	config.Port = getEnv("PORT", config.Port)
	config.GinMode = getEnv("GIN_MODE", config.GinMode)

	// スプール・印刷設定
	config.SpoolDir = getEnv("SPOOL_DIR", config.SpoolDir)
	config.PrintUtilityPath = getEnv("PRINT_UTILITY_PATH", config.PrintUtilityPath)
	config.PrintTimeout = getEnvAsDuration("PRINT_TIMEOUT", config.PrintTimeout)
	config.PrintWorkers = getEnvAsInt("PRINT_WORKERS", config.PrintWorkers)
	config.PrintQueueSize = getEnvAsInt("PRINT_QUEUE_SIZE", config.PrintQueueSize)

	// ファイル制限
	config.MaxFileSize = getEnvAsInt64("MAX_FILE_SIZE", config.MaxFileSize)

	// ジョブ履歴
	config.JobExpireMinutes = getEnvAsInt("JOB_EXPIRE_MINUTES", config.JobExpireMinutes)
	config.HistoryRedisURL = getEnv("HISTORY_REDIS_URL", config.HistoryRedisURL)

	// ログ
	config.Log.Level = getEnv("LOG_LEVEL", config.Log.Level)
	config.Log.File = getEnv("LOG_FILE", config.Log.File)
	config.Log.MaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", config.Log.MaxSizeMB)
	config.Log.MaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", config.Log.MaxBackups)
	config.Log.MaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", config.Log.MaxAgeDays)
	config.Log.Compress = getEnvAsBool("LOG_COMPRESS", config.Log.Compress)

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Addr は待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// JobTTL はジョブ履歴の保持期間を返します。
func (c *Config) JobTTL() time.Duration {
	minutes := c.JobExpireMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

func loadYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}
	return nil
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port (got %q)", c.Port)
	}
	if c.SpoolDir == "" {
		return fmt.Errorf("SPOOL_DIR is required")
	}
	if c.PrintWorkers <= 0 {
		return fmt.Errorf("PRINT_WORKERS must be positive (got %d)", c.PrintWorkers)
	}
	if c.PrintQueueSize < 0 {
		return fmt.Errorf("PRINT_QUEUE_SIZE must not be negative (got %d)", c.PrintQueueSize)
	}
	if c.PrintTimeout < 0 {
		return fmt.Errorf("PRINT_TIMEOUT must not be negative (got %s)", c.PrintTimeout)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("MAX_FILE_SIZE must not be negative (got %d)", c.MaxFileSize)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "30s" のような期間表記を読み取ります。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
