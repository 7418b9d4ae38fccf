package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// startup and passed read-only to every component constructor.
type Config struct {
	DART      DARTConfig      `yaml:"dart" mapstructure:"dart"`
	IPOStock  IPOStockConfig  `yaml:"ipostock" mapstructure:"ipostock"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Naver     NaverConfig     `yaml:"naver" mapstructure:"naver"`
	KRX       KRXConfig       `yaml:"krx" mapstructure:"krx"`
	Identity  IdentityConfig  `yaml:"identity" mapstructure:"identity"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DARTConfig holds regulatory API credentials and limits.
type DARTConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec  int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// Fiscal years requested from the financial statements API.
	Years []string `yaml:"years" mapstructure:"years"`
}

// IPOStockConfig configures the secondary-market demand-forecast crawler.
type IPOStockConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ListPages   int    `yaml:"list_pages" mapstructure:"list_pages"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// AnthropicConfig holds the extraction oracle settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
	// ValidationRetries is the number of corrective re-asks after a failed
	// schema validation (total attempts = retries + 1).
	ValidationRetries int `yaml:"validation_retries" mapstructure:"validation_retries"`
	MaxConcurrent     int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxTokens         int `yaml:"max_tokens" mapstructure:"max_tokens"`
	ChunkChars        int `yaml:"chunk_chars" mapstructure:"chunk_chars"`
}

// NaverConfig holds auxiliary news-search credentials. Absence degrades the
// news source to unavailable, nothing more.
type NaverConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
}

// KRXConfig holds auxiliary financial cross-check credentials.
type KRXConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	ToleranceP float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// IdentityConfig configures the corp-code cache.
type IdentityConfig struct {
	CachePath     string `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// ExtractConfig configures filing download and section extraction.
type ExtractConfig struct {
	ArchiveDir string `yaml:"archive_dir" mapstructure:"archive_dir"`
	// SectionChars bounds how much of a matched section is handed to the
	// extractor before chunking.
	SectionChars int `yaml:"section_chars" mapstructure:"section_chars"`
}

// OutputConfig configures per-run artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("IPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars alone are enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dart.base_url", "https://opendart.fss.or.kr/api")
	v.SetDefault("dart.max_attempts", 3)
	v.SetDefault("dart.rate_per_sec", 5)
	v.SetDefault("dart.timeout_secs", 30)
	v.SetDefault("dart.years", []string{"2022", "2023", "2024"})

	v.SetDefault("ipostock.base_url", "https://www.38.co.kr")
	v.SetDefault("ipostock.list_pages", 3)
	v.SetDefault("ipostock.max_attempts", 2)
	v.SetDefault("ipostock.timeout_secs", 15)
	v.SetDefault("ipostock.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.validation_retries", 2)
	v.SetDefault("anthropic.max_concurrent", 4)
	v.SetDefault("anthropic.requests_per_minute", 50)
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.chunk_chars", 15000)

	v.SetDefault("krx.base_url", "http://data.krx.co.kr/svc/apis")
	v.SetDefault("krx.tolerance", 0.05)

	v.SetDefault("identity.cache_path", "data/corp_codes.db")
	v.SetDefault("identity.cache_ttl_hours", 168)

	v.SetDefault("extract.archive_dir", "data/filings")
	v.SetDefault("extract.section_chars", 25000)

	v.SetDefault("output.dir", "data/reports")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
