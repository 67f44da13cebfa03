package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IshaanNene/ShopSense/internal/ai"
	"github.com/IshaanNene/ShopSense/internal/analysis"
	"github.com/IshaanNene/ShopSense/internal/chatlog"
	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/extractor"
	"github.com/IshaanNene/ShopSense/internal/fetcher"
	"github.com/IshaanNene/ShopSense/internal/logging"
	"github.com/IshaanNene/ShopSense/internal/observability"
	"github.com/IshaanNene/ShopSense/internal/profile"
	"github.com/IshaanNene/ShopSense/internal/reviews"
	"github.com/IshaanNene/ShopSense/internal/search"
	"github.com/IshaanNene/ShopSense/internal/storage"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	history  *chatlog.Store
	metrics  *observability.Metrics
	analyzer *analysis.Analyzer

	browser *fetcher.BrowserSession
	http    *fetcher.HTTPFetcher
	archive storage.Archive

	closeOnce sync.Once
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates the structured logger. Commands that print results
// on stdout keep logs on stderr.
func setupLogger(cfg *config.Config, quietStdout bool) *slog.Logger {
	out := cfg.Logging.Output
	if quietStdout && (out == "" || out == "stdout") {
		out = "stderr"
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	})
}

// newApp wires every component needed to analyze and chat.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		history: chatlog.New(cfg.ChatLog.Path, logger),
		metrics: observability.NewMetrics(logger),
	}

	var proxyMgr *fetcher.ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = fetcher.NewProxyManager(&cfg.Proxy, logger)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, proxyMgr, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	a.http = httpFetcher

	var browserOpts []fetcher.BrowserOption
	if proxyMgr != nil {
		browserOpts = append(browserOpts, fetcher.WithBrowserProxy(proxyMgr))
	}
	a.browser = fetcher.NewBrowserSession(&cfg.Browser, logger, browserOpts...)

	ext, err := extractor.FromConfig(&cfg.Extractor, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	provider, err := ai.NewProvider(cfg.LLM)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	llm := ai.NewClient(provider, cfg.LLM, logger)

	prof, err := profile.Load(cfg.Profile.Path, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	archive, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create storage: %w", err)
	}
	a.archive = archive

	opts := []analysis.Option{
		analysis.WithSearcher(search.NewClient(httpFetcher, cfg.Search, logger)),
		analysis.WithProfile(prof),
		analysis.WithMetrics(a.metrics),
	}
	if cfg.Reviews.Enabled {
		opts = append(opts, analysis.WithReviews(reviews.New(httpFetcher, cfg.Reviews, logger)))
	}
	if archive != nil {
		opts = append(opts, analysis.WithArchive(archive))
	}

	a.analyzer = analysis.New(
		analysis.NewBrowserProductSource(a.browser, ext),
		llm,
		a.history,
		analysis.Options{
			CacheSize:  cfg.Analysis.CacheSize,
			CacheTTL:   cfg.Analysis.CacheTTL,
			ChatRetain: cfg.ChatLog.Retain,
			RunTimeout: cfg.Analysis.RunTimeout,
		},
		logger,
		opts...,
	)

	logger.Debug("components wired",
		"llm_provider", provider.Name(),
		"llm_model", provider.Model(),
		"reviews", cfg.Reviews.Enabled,
		"storage", cfg.Storage.Type,
		"search", cfg.Search.APIKey != "",
	)
	return a, nil
}

// close releases the browser, the HTTP client and the archive. Only the
// first call has any effect.
func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.browser != nil {
			a.browser.Shutdown()
		}
		if a.http != nil {
			_ = a.http.Close()
		}
		if a.archive != nil {
			if err := a.archive.Close(); err != nil {
				a.logger.Warn("archive close failed", "error", err)
			}
		}
	})
}
