package fetcher

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/ShopSense/internal/config"
)

// ProxyManager rotates outbound proxies and tracks their health.
type ProxyManager struct {
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	mu       sync.RWMutex
	logger   *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
	LastUse time.Time
	mu      sync.Mutex
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{URL: u, Healthy: true})
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

type proxyCtxKey struct{}

// withProxy pins the proxy a request must use.
func withProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, proxyCtxKey{}, u)
}

// ProxyFunc returns an http.Transport proxy function. It honours a proxy
// pinned on the request context and otherwise rotates.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyCtxKey{}).(*url.URL); ok && u != nil {
			return u, nil
		}
		return pm.Next(), nil // nil means direct connection
	}
}

// Next returns the next healthy proxy, or nil when none are left.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		return nil
	}

	var entry *proxyEntry
	switch pm.rotation {
	case "random":
		entry = healthy[rand.Intn(len(healthy))]
	default: // round_robin
		entry = healthy[pm.index.Add(1)%int64(len(healthy))]
	}
	entry.mu.Lock()
	entry.LastUse = time.Now()
	entry.mu.Unlock()
	return entry.URL
}

// MarkFailed marks a proxy as unhealthy.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.setHealth(proxyURL, false, err)
	pm.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
}

// MarkHealthy marks a proxy as healthy.
func (pm *ProxyManager) MarkHealthy(proxyURL *url.URL) {
	pm.setHealth(proxyURL, true, nil)
}

func (pm *ProxyManager) setHealth(proxyURL *url.URL, healthy bool, err error) {
	if proxyURL == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.mu.Lock()
			p.Healthy = healthy
			p.LastErr = err
			p.mu.Unlock()
			return
		}
	}
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.healthyProxies())
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		p.mu.Lock()
		if p.Healthy {
			healthy = append(healthy, p)
		}
		p.mu.Unlock()
	}
	return healthy
}
