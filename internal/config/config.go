package config

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig selects and configures the storage backend. Driver is
// resolved once at startup; nothing downstream re-inspects it.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds redis connection settings (rate limiting only).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OpenAIConfig configures the LLM used for classification and translation.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TranslateModel string `mapstructure:"translate_model"`
	BaseURL        string `mapstructure:"base_url"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

// ScrapeConfig controls the source adapters.
type ScrapeConfig struct {
	SourcesFile    string `mapstructure:"sources_file"`
	PerSourceLimit int    `mapstructure:"per_source_limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxContentLen  int    `mapstructure:"max_content_len"`
}

// PipelineConfig tunes the concurrent classification/translation fan-out.
type PipelineConfig struct {
	ClassifyWorkers   int `mapstructure:"classify_workers"`
	TranslateWorkers  int `mapstructure:"translate_workers"`
	MinContentLen     int `mapstructure:"min_content_len"`
	LLMRequestsPerSec int `mapstructure:"llm_requests_per_sec"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr              string `mapstructure:"addr"`
	RateLimitWindow   int    `mapstructure:"rate_limit_window_minutes"`
	RateLimitRequests int    `mapstructure:"rate_limit_requests"`
}

// RefreshConfig controls the scheduled background refresh worker.
type RefreshConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Interval       string `mapstructure:"interval"` // duration string, e.g., "6h"
	StalenessHours int    `mapstructure:"staleness_hours"`
	DaysBack       int    `mapstructure:"days_back"`
	MaxResults     int    `mapstructure:"max_results"`
}

// CleanupConfig controls retention cleanup.
type CleanupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Interval      string `mapstructure:"interval"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config is the top-level configuration structure.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./articles.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.TranslateModel == "" {
		c.OpenAI.TranslateModel = c.OpenAI.Model
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 600
	}
	if c.Scrape.SourcesFile == "" {
		c.Scrape.SourcesFile = "./sources.yaml"
	}
	if c.Scrape.PerSourceLimit == 0 {
		c.Scrape.PerSourceLimit = 10
	}
	if c.Scrape.TimeoutSeconds == 0 {
		c.Scrape.TimeoutSeconds = 60
	}
	if c.Scrape.MaxContentLen == 0 {
		c.Scrape.MaxContentLen = 2000
	}
	if c.Pipeline.ClassifyWorkers == 0 {
		c.Pipeline.ClassifyWorkers = 8
	}
	if c.Pipeline.TranslateWorkers == 0 {
		c.Pipeline.TranslateWorkers = 20
	}
	if c.Pipeline.MinContentLen == 0 {
		c.Pipeline.MinContentLen = 200
	}
	if c.Pipeline.LLMRequestsPerSec == 0 {
		c.Pipeline.LLMRequestsPerSec = 5
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimitWindow == 0 {
		c.Server.RateLimitWindow = 60
	}
	if c.Server.RateLimitRequests == 0 {
		c.Server.RateLimitRequests = 30
	}
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = "6h"
	}
	if c.Refresh.StalenessHours == 0 {
		c.Refresh.StalenessHours = 12
	}
	if c.Refresh.DaysBack == 0 {
		c.Refresh.DaysBack = 7
	}
	if c.Refresh.MaxResults == 0 {
		c.Refresh.MaxResults = 15
	}
	if c.Cleanup.Interval == "" {
		c.Cleanup.Interval = "24h"
	}
	if c.Cleanup.RetentionDays == 0 {
		c.Cleanup.RetentionDays = 90
	}
}
