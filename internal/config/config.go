package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Split        SplitConfig        `yaml:"split" mapstructure:"split"`
	Acquire      AcquireConfig      `yaml:"acquire" mapstructure:"acquire"`
	OCR          OCRConfig          `yaml:"ocr" mapstructure:"ocr"`
	Vision       VisionConfig       `yaml:"vision" mapstructure:"vision"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Browser      BrowserConfig      `yaml:"browser" mapstructure:"browser"`
	Validate     ValidateConfig     `yaml:"validate" mapstructure:"validate"`
	Availability AvailabilityConfig `yaml:"availability" mapstructure:"availability"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SplitConfig configures the page splitter.
type SplitConfig struct {
	MaxChunkBytes int64  `yaml:"max_chunk_bytes" mapstructure:"max_chunk_bytes"`
	PagesPerChunk int    `yaml:"pages_per_chunk" mapstructure:"pages_per_chunk"`
	WorkDir       string `yaml:"work_dir" mapstructure:"work_dir"`
}

// AcquireConfig configures the text acquisition tier.
type AcquireConfig struct {
	MinChars      int    `yaml:"min_chars" mapstructure:"min_chars"`
	MinWords      int    `yaml:"min_words" mapstructure:"min_words"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// OCRConfig configures the OCR fallback provider.
type OCRConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	MistralKey string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	Model      string `yaml:"model" mapstructure:"model"`
}

// VisionConfig configures the vision-inference fallback.
type VisionConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader/Search settings used by the availability
// resolver.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// BrowserConfig configures the headless-browser search tier.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ValidateConfig holds plausibility bands for the validator.
type ValidateConfig struct {
	MinPrice       int     `yaml:"min_price" mapstructure:"min_price"`
	MaxPrice       int     `yaml:"max_price" mapstructure:"max_price"`
	MinYieldPct    float64 `yaml:"min_yield_pct" mapstructure:"min_yield_pct"`
	MaxYieldPct    float64 `yaml:"max_yield_pct" mapstructure:"max_yield_pct"`
	MaxRehab       int     `yaml:"max_rehab" mapstructure:"max_rehab"`
	ARVHeadroomPct float64 `yaml:"arv_headroom_pct" mapstructure:"arv_headroom_pct"`
}

// AvailabilityConfig configures the availability resolver chain.
type AvailabilityConfig struct {
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DelayMs          int `yaml:"delay_ms" mapstructure:"delay_ms"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// Timeout returns the hard per-record resolution timeout.
func (a AvailabilityConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// Delay returns the fixed inter-record delay.
func (a AvailabilityConfig) Delay() time.Duration {
	return time.Duration(a.DelayMs) * time.Millisecond
}

// FetchTimeout returns the single-fetch timeout within the chain.
func (a AvailabilityConfig) FetchTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutSecs) * time.Second
}

// BatchConfig configures multi-document batch runs.
type BatchConfig struct {
	MaxConcurrentDocs int `yaml:"max_concurrent_docs" mapstructure:"max_concurrent_docs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "intake.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("split.max_chunk_bytes", 4*1024*1024)
	v.SetDefault("split.pages_per_chunk", 1)
	v.SetDefault("split.work_dir", "")
	v.SetDefault("acquire.min_chars", 120)
	v.SetDefault("acquire.min_words", 20)
	v.SetDefault("acquire.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.provider", "mistral")
	v.SetDefault("ocr.model", "pixtral-large-latest")
	v.SetDefault("vision.model", "claude-haiku-4-5-20251001")
	v.SetDefault("vision.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.timeout_secs", 25)
	v.SetDefault("validate.min_price", 10000)
	v.SetDefault("validate.max_price", 2000000)
	v.SetDefault("validate.min_yield_pct", 6.0)
	v.SetDefault("validate.max_yield_pct", 25.0)
	v.SetDefault("validate.max_rehab", 500000)
	v.SetDefault("validate.arv_headroom_pct", 10.0)
	v.SetDefault("availability.timeout_secs", 45)
	v.SetDefault("availability.delay_ms", 1500)
	v.SetDefault("availability.fetch_timeout_secs", 15)
	v.SetDefault("batch.max_concurrent_docs", 2)

	// Read config file (optional)
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
