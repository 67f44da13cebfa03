package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// BrowserSession owns the single headless browser used for product pages.
// The browser starts on first use; pages are lent out one at a time.
type BrowserSession struct {
	cfg      *config.BrowserConfig
	proxyMgr *ProxyManager
	logger   *slog.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	stealthCfg *StealthConfig
	started    bool

	slot chan struct{}
}

// BrowserOption configures the BrowserSession.
type BrowserOption func(*BrowserSession)

// WithBrowserProxy routes the browser through a proxy picked at launch.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bs *BrowserSession) { bs.proxyMgr = pm }
}

// NewBrowserSession creates a session. No browser is launched until the
// first Acquire or WithPage call.
func NewBrowserSession(cfg *config.BrowserConfig, logger *slog.Logger, opts ...BrowserOption) *BrowserSession {
	bs := &BrowserSession{
		cfg:    cfg,
		logger: logger.With("component", "browser_session"),
		slot:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(bs)
	}
	return bs
}

// Acquire returns the live browser, launching it if necessary. A failed
// launch leaves the session unstarted so the next call tries again.
func (bs *BrowserSession) Acquire(ctx context.Context) (*rod.Browser, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.started {
		return bs.browser, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sc := DefaultStealthConfig(bs.cfg.UserAgents)

	l := launcher.New().
		Headless(bs.cfg.Headless).
		NoSandbox(bs.cfg.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", sc.WindowSize)
	if bs.cfg.Bin != "" {
		l = l.Bin(bs.cfg.Bin)
	}

	var proxy *url.URL
	if bs.proxyMgr != nil {
		if proxy = bs.proxyMgr.Next(); proxy != nil {
			l = l.Proxy(proxy.String())
		}
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		l.Kill()
		if proxy != nil {
			bs.proxyMgr.MarkFailed(proxy, err)
		}
		bs.logger.Error("browser launch failed", "error", err)
		return nil, fmt.Errorf("%w: launch: %w", types.ErrBrowserUnavailable, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		bs.logger.Error("browser connect failed", "error", err)
		return nil, fmt.Errorf("%w: connect: %w", types.ErrBrowserUnavailable, err)
	}

	bs.browser = browser
	bs.launcher = l
	bs.stealthCfg = sc
	bs.started = true

	bs.logger.Info("browser started",
		"headless", bs.cfg.Headless,
		"stealth", bs.cfg.Stealth,
		"proxy", proxy != nil,
	)
	return browser, nil
}

// WithPage lends fn a fresh page on the shared browser and closes it
// afterwards. Calls are serialized.
func (bs *BrowserSession) WithPage(ctx context.Context, fn func(*BrowserPage) error) error {
	select {
	case bs.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-bs.slot }()

	browser, err := bs.Acquire(ctx)
	if err != nil {
		return err
	}

	page, err := bs.newPage(browser)
	if err != nil {
		return fmt.Errorf("%w: open page: %w", types.ErrBrowserUnavailable, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			bs.logger.Debug("page close failed", "error", err)
		}
	}()

	return fn(&BrowserPage{page: page, navigateTimeout: bs.cfg.NavigateTimeout})
}

func (bs *BrowserSession) newPage(browser *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if bs.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, err
	}

	bs.mu.Lock()
	sc := bs.stealthCfg
	bs.mu.Unlock()
	if sc == nil {
		return page, nil
	}

	if sc.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      sc.UserAgent,
			AcceptLanguage: sc.Language,
		}); err != nil {
			bs.logger.Warn("failed to set user agent", "error", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             sc.ViewportWidth,
		Height:            sc.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		bs.logger.Warn("failed to set viewport", "error", err)
	}
	if bs.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(sc.StealthJS()); err != nil {
			bs.logger.Warn("failed to inject stealth script", "error", err)
		}
	}
	return page, nil
}

// Started reports whether a browser is currently running.
func (bs *BrowserSession) Started() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.started
}

// Shutdown closes the browser. It is safe to call repeatedly and never
// fails; problems are logged.
func (bs *BrowserSession) Shutdown() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.started {
		return
	}
	if err := bs.browser.Close(); err != nil {
		bs.logger.Warn("browser close failed", "error", err)
	}
	if bs.launcher != nil {
		bs.launcher.Kill()
	}

	bs.browser = nil
	bs.launcher = nil
	bs.stealthCfg = nil
	bs.started = false
	bs.logger.Info("browser stopped")
}
