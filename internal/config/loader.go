package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("SHOPSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("shopsense")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".shopsense"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// bindLegacyEnv maps the unprefixed variable names older deployments use.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.api_key":    {"SHOPSENSE_LLM_API_KEY", "GROQ_API_KEY"},
		"llm.model":      {"SHOPSENSE_LLM_MODEL", "GROQ_MODEL"},
		"search.api_key": {"SHOPSENSE_SEARCH_API_KEY", "SERP_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.max_body_bytes", cfg.Server.MaxBodyBytes)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.navigate_timeout", cfg.Browser.NavigateTimeout)
	v.SetDefault("browser.user_agents", cfg.Browser.UserAgents)

	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)
	v.SetDefault("proxy.rotate_on_fail", cfg.Proxy.RotateOnFail)

	v.SetDefault("extractor.wait_timeout", cfg.Extractor.WaitTimeout)
	v.SetDefault("extractor.stale_retries", cfg.Extractor.StaleRetries)
	v.SetDefault("extractor.stale_backoff", cfg.Extractor.StaleBackoff)
	v.SetDefault("extractor.blocked_markers", cfg.Extractor.BlockedMarkers)

	v.SetDefault("reviews.enabled", cfg.Reviews.Enabled)
	v.SetDefault("reviews.max_attempts", cfg.Reviews.MaxAttempts)
	v.SetDefault("reviews.retry_delay", cfg.Reviews.RetryDelay)
	v.SetDefault("reviews.user_agent", cfg.Reviews.UserAgent)
	v.SetDefault("reviews.accept_language", cfg.Reviews.AcceptLanguage)

	v.SetDefault("search.endpoint", cfg.Search.Endpoint)
	v.SetDefault("search.country", cfg.Search.Country)
	v.SetDefault("search.language", cfg.Search.Language)
	v.SetDefault("search.limit", cfg.Search.Limit)
	v.SetDefault("search.timeout", cfg.Search.Timeout)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("llm.classify_max_tokens", cfg.LLM.ClassifyMaxTokens)
	v.SetDefault("llm.report_max_tokens", cfg.LLM.ReportMaxTokens)
	v.SetDefault("llm.chat_max_tokens", cfg.LLM.ChatMaxTokens)
	v.SetDefault("llm.chat_temperature", cfg.LLM.ChatTemperature)

	v.SetDefault("chatlog.path", cfg.ChatLog.Path)
	v.SetDefault("chatlog.retain", cfg.ChatLog.Retain)

	v.SetDefault("profile.path", cfg.Profile.Path)

	v.SetDefault("analysis.cache_size", cfg.Analysis.CacheSize)
	v.SetDefault("analysis.cache_ttl", cfg.Analysis.CacheTTL)
	v.SetDefault("analysis.run_timeout", cfg.Analysis.RunTimeout)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
