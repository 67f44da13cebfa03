package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0, got %d", cfg.Server.RateLimit)
	}

	if cfg.Browser.NavigateTimeout <= 0 {
		return fmt.Errorf("browser.navigate_timeout must be > 0")
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Extractor.WaitTimeout <= 0 {
		return fmt.Errorf("extractor.wait_timeout must be > 0")
	}
	if cfg.Extractor.StaleRetries < 1 {
		return fmt.Errorf("extractor.stale_retries must be >= 1, got %d", cfg.Extractor.StaleRetries)
	}
	if cfg.Extractor.StaleBackoff < 0 {
		return fmt.Errorf("extractor.stale_backoff must be >= 0")
	}

	if cfg.Reviews.MaxAttempts < 1 {
		return fmt.Errorf("reviews.max_attempts must be >= 1, got %d", cfg.Reviews.MaxAttempts)
	}
	if cfg.Reviews.RetryDelay < 0 {
		return fmt.Errorf("reviews.retry_delay must be >= 0")
	}

	if cfg.Search.Limit < 1 {
		return fmt.Errorf("search.limit must be >= 1, got %d", cfg.Search.Limit)
	}
	if cfg.Search.Endpoint != "" {
		if err := ValidateURL(cfg.Search.Endpoint); err != nil {
			return fmt.Errorf("search.endpoint: %w", err)
		}
	}

	validProviders := map[string]bool{
		"groq": true, "openai": true, "anthropic": true, "ollama": true,
	}
	if !validProviders[cfg.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported (valid: groq, openai, anthropic, ollama)", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	if cfg.LLM.ChatTemperature < 0 || cfg.LLM.ChatTemperature > 2 {
		return fmt.Errorf("llm.chat_temperature must be within 0-2, got %v", cfg.LLM.ChatTemperature)
	}

	if strings.TrimSpace(cfg.ChatLog.Path) == "" {
		return fmt.Errorf("chatlog.path must not be empty")
	}
	if cfg.ChatLog.Retain < 1 {
		return fmt.Errorf("chatlog.retain must be >= 1, got %d", cfg.ChatLog.Retain)
	}

	if cfg.Analysis.CacheSize < 1 {
		return fmt.Errorf("analysis.cache_size must be >= 1, got %d", cfg.Analysis.CacheSize)
	}
	if cfg.Analysis.RunTimeout <= 0 {
		return fmt.Errorf("analysis.run_timeout must be positive, got %v", cfg.Analysis.RunTimeout)
	}

	validStorageTypes := map[string]bool{
		"none": true, "jsonl": true, "mongodb": true, "multi": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: none, jsonl, mongodb, multi)", cfg.Storage.Type)
	}
	if (cfg.Storage.Type == "mongodb" || cfg.Storage.Type == "multi") && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for storage.type %q", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
