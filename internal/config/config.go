package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ShopSense.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Proxy     ProxyConfig     `mapstructure:"proxy"     yaml:"proxy"`
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Reviews   ReviewsConfig   `mapstructure:"reviews"   yaml:"reviews"`
	Search    SearchConfig    `mapstructure:"search"    yaml:"search"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	ChatLog   ChatLogConfig   `mapstructure:"chatlog"   yaml:"chatlog"`
	Profile   ProfileConfig   `mapstructure:"profile"   yaml:"profile"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"  yaml:"analysis"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Host           string        `mapstructure:"host"             yaml:"host"`
	Port           int           `mapstructure:"port"             yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"   yaml:"max_body_bytes"`
	RateLimit      int           `mapstructure:"rate_limit"       yaml:"rate_limit"` // requests per minute per IP, 0 disables
	CORSOrigins    []string      `mapstructure:"cors_origins"     yaml:"cors_origins"`
}

// BrowserConfig controls the headless browser used for product pages.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"         yaml:"headless"`
	Bin             string        `mapstructure:"bin"              yaml:"bin"`
	NoSandbox       bool          `mapstructure:"no_sandbox"       yaml:"no_sandbox"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
}

// FetcherConfig controls the plain HTTP client.
type FetcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"        yaml:"enabled"`
	Rotation     string   `mapstructure:"rotation"       yaml:"rotation"`
	URLs         []string `mapstructure:"urls"           yaml:"urls"`
	RotateOnFail bool     `mapstructure:"rotate_on_fail" yaml:"rotate_on_fail"`
}

// ExtractorConfig controls product page extraction.
type ExtractorConfig struct {
	WaitTimeout    time.Duration     `mapstructure:"wait_timeout"    yaml:"wait_timeout"`
	StaleRetries   int               `mapstructure:"stale_retries"   yaml:"stale_retries"`
	StaleBackoff   time.Duration     `mapstructure:"stale_backoff"   yaml:"stale_backoff"`
	BlockedMarkers []string          `mapstructure:"blocked_markers" yaml:"blocked_markers"`
	Selectors      map[string]string `mapstructure:"selectors"       yaml:"selectors"`
}

// ReviewsConfig controls the review page fetcher.
type ReviewsConfig struct {
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"`
	MaxAttempts    int           `mapstructure:"max_attempts"    yaml:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language" yaml:"accept_language"`
}

// SearchConfig controls the SerpAPI client.
type SearchConfig struct {
	APIKey   string        `mapstructure:"api_key"  yaml:"api_key"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Country  string        `mapstructure:"country"  yaml:"country"`
	Language string        `mapstructure:"language" yaml:"language"`
	Limit    int           `mapstructure:"limit"    yaml:"limit"`
	Timeout  time.Duration `mapstructure:"timeout"  yaml:"timeout"`
}

// LLMConfig controls the language model provider.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"            yaml:"provider"`
	Model             string        `mapstructure:"model"               yaml:"model"`
	APIKey            string        `mapstructure:"api_key"             yaml:"api_key"`
	BaseURL           string        `mapstructure:"base_url"            yaml:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"             yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"         yaml:"max_retries"`
	ClassifyMaxTokens int           `mapstructure:"classify_max_tokens" yaml:"classify_max_tokens"`
	ReportMaxTokens   int           `mapstructure:"report_max_tokens"   yaml:"report_max_tokens"`
	ChatMaxTokens     int           `mapstructure:"chat_max_tokens"     yaml:"chat_max_tokens"`
	ChatTemperature   float64       `mapstructure:"chat_temperature"    yaml:"chat_temperature"`
}

// ChatLogConfig controls the CSV chat history.
type ChatLogConfig struct {
	Path   string `mapstructure:"path"   yaml:"path"`
	Retain int    `mapstructure:"retain" yaml:"retain"`
}

// ProfileConfig points at the customer profile JSON file.
type ProfileConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AnalysisConfig controls the per-URL run cache and runs started by chat.
type AnalysisConfig struct {
	CacheSize  int           `mapstructure:"cache_size"  yaml:"cache_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"   yaml:"cache_ttl"`
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// StorageConfig controls the report archive.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"` // none, jsonl, mongodb, multi
	OutputPath      string `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text, json, or empty for TTY detection
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultUserAgents are the desktop user agents the browser picks from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           4000,
			RequestTimeout: 5 * time.Minute,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   6 * time.Minute,
			MaxBodyBytes:   1 << 20, // 1MB
			RateLimit:      60,
			CORSOrigins:    []string{"*"},
		},
		Browser: BrowserConfig{
			Headless:        true,
			NoSandbox:       true,
			Stealth:         true,
			NavigateTimeout: 30 * time.Second,
			UserAgents:      DefaultUserAgents,
		},
		Fetcher: FetcherConfig{
			Timeout:         30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			Rotation:     "round_robin",
			RotateOnFail: true,
		},
		Extractor: ExtractorConfig{
			WaitTimeout:  10 * time.Second,
			StaleRetries: 3,
			StaleBackoff: 1 * time.Second,
		},
		Reviews: ReviewsConfig{
			Enabled:        true,
			MaxAttempts:    5,
			RetryDelay:     4 * time.Second,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
			AcceptLanguage: "en-US,en;q=0.5",
		},
		Search: SearchConfig{
			Endpoint: "https://serpapi.com/search",
			Country:  "in",
			Language: "en",
			Limit:    5,
			Timeout:  20 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          "groq",
			Model:             "llama3-8b-8192",
			Timeout:           120 * time.Second,
			MaxRetries:        2,
			ClassifyMaxTokens: 1024,
			ReportMaxTokens:   4096,
			ChatMaxTokens:     4096,
			ChatTemperature:   0.7,
		},
		ChatLog: ChatLogConfig{
			Path:   "chat_logs/history.csv",
			Retain: 3,
		},
		Profile: ProfileConfig{
			Path: "human_data.json",
		},
		Analysis: AnalysisConfig{
			CacheSize:  64,
			CacheTTL:   time.Hour,
			RunTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type:            "none",
			OutputPath:      "./output",
			MongoDatabase:   "shopsense",
			MongoCollection: "reports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Redacted returns a copy of cfg with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Search.APIKey = mask(c.Search.APIKey)
	out.Storage.MongoURI = mask(c.Storage.MongoURI)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
