// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// イベントログソースの種類
const (
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
)

// DefaultUserAgent はURL確認時に送信するブラウザのUser-Agent。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Event source
	EventSource           string
	DatabaseURL           string
	MongoURI              string
	MongoDatabase         string
	SourceConnectAttempts int

	// Attribution
	ErrorThresholdDays int

	// Probe
	ProbeTimeout        time.Duration
	ProbeUserAgent      string
	ProbeTrackRedirects bool
	ProbeInspectBody    bool
	ProbeMaxBodySize    int64
	ProbeSSRFGuard      bool
	ProbeInterval       time.Duration

	// Report
	ReportDir          string
	OwnershipFile      string
	OwnershipSheet     string
	MainJoinColumn     string
	CustomerJoinColumn string
	ReportInterval     time.Duration

	// Publish
	ReportBucket string
	ReportPrefix string

	// Server
	ServerPort       string
	RateLimitGeneral int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 値が不正な場合はエラーを返す。接続先の必須チェックはValidateSourceで行う。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.EventSource = strings.ToLower(getEnvString("EVENT_SOURCE", SourcePostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MongoURI = os.Getenv("MONGO_URI")
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "feedreader")
	cfg.SourceConnectAttempts = getEnvInt("SOURCE_CONNECT_ATTEMPTS", 3)

	cfg.ErrorThresholdDays = getEnvInt("ERROR_THRESHOLD_DAYS", 24)

	cfg.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", 10*time.Second)
	cfg.ProbeUserAgent = getEnvString("PROBE_USER_AGENT", DefaultUserAgent)
	cfg.ProbeTrackRedirects = getEnvBool("PROBE_TRACK_REDIRECTS", false)
	cfg.ProbeInspectBody = getEnvBool("PROBE_INSPECT_BODY", true)
	cfg.ProbeMaxBodySize = getEnvInt64("PROBE_MAX_BODY_SIZE", 5242880)
	cfg.ProbeSSRFGuard = getEnvBool("PROBE_SSRF_GUARD", false)
	cfg.ProbeInterval = getEnvDuration("PROBE_INTERVAL", 0)

	cfg.ReportDir = getEnvString("REPORT_DIR", ".")
	cfg.OwnershipFile = os.Getenv("OWNERSHIP_FILE")
	cfg.OwnershipSheet = os.Getenv("OWNERSHIP_SHEET")
	cfg.MainJoinColumn = getEnvString("MAIN_JOIN_COLUMN", "Feed_URL")
	cfg.CustomerJoinColumn = getEnvString("CUSTOMER_JOIN_COLUMN", "feed_url")
	cfg.ReportInterval = getEnvDuration("REPORT_INTERVAL", 24*time.Hour)

	cfg.ReportBucket = os.Getenv("REPORT_BUCKET")
	cfg.ReportPrefix = getEnvString("REPORT_PREFIX", "reports/")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 6)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	var invalid []string
	if cfg.EventSource != SourcePostgres && cfg.EventSource != SourceMongo {
		invalid = append(invalid, "EVENT_SOURCE")
	}
	if cfg.ErrorThresholdDays < 0 {
		invalid = append(invalid, "ERROR_THRESHOLD_DAYS")
	}
	if cfg.ReportInterval <= 0 {
		invalid = append(invalid, "REPORT_INTERVAL")
	}
	if cfg.ProbeInterval < 0 {
		invalid = append(invalid, "PROBE_INTERVAL")
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	return cfg, nil
}

// ValidateSource はイベントログソースへの接続に必要な設定がそろっているかを検証する。
func (c *Config) ValidateSource() error {
	switch c.EventSource {
	case SourceMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("required environment variables are not set: [MONGO_URI]")
		}
	default:
		if c.DatabaseURL == "" {
			return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
		}
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
