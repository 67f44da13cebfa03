package fetcher

import (
	"fmt"
	"math/rand"
)

// StealthConfig is the browser fingerprint presented to product pages.
type StealthConfig struct {
	UserAgent string

	ViewportWidth  int
	ViewportHeight int

	// WindowSize is passed to the launcher as "w,h".
	WindowSize string

	Language string
	Platform string

	HardwareConcurrency int
	DeviceMemory        int
}

// DefaultStealthConfig returns a desktop fingerprint with a user agent
// picked at random from userAgents.
func DefaultStealthConfig(userAgents []string) *StealthConfig {
	viewports := []struct{ w, h int }{
		{1920, 1080}, {1366, 768}, {1536, 864},
		{1440, 900}, {1280, 720},
	}
	vp := viewports[rand.Intn(len(viewports))]

	platforms := []string{"Win32", "MacIntel", "Linux x86_64"}

	return &StealthConfig{
		UserAgent:           RandomUserAgent(userAgents),
		ViewportWidth:       vp.w,
		ViewportHeight:      vp.h,
		WindowSize:          fmt.Sprintf("%d,%d", vp.w, vp.h),
		Language:            "en-US",
		Platform:            platforms[rand.Intn(len(platforms))],
		HardwareConcurrency: 4 + rand.Intn(13), // 4-16 cores
		DeviceMemory:        8,
	}
}

// RandomUserAgent picks one entry of userAgents, or "" when it is empty.
func RandomUserAgent(userAgents []string) string {
	if len(userAgents) == 0 {
		return ""
	}
	return userAgents[rand.Intn(len(userAgents))]
}

// StealthJS returns JavaScript injected into every page before any other
// script runs.
func (sc *StealthConfig) StealthJS() string {
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
Object.defineProperty(navigator, 'webdriver', { get: () => false });

window.chrome = {
	runtime: { onMessage: { addListener: () => {} }, sendMessage: () => {} },
	loadTimes: () => ({}),
	csi: () => ({}),
};

const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({ state: Notification.permission }) :
		originalQuery(parameters)
);
`, sc.Platform, sc.Language, sc.Language, sc.HardwareConcurrency, sc.DeviceMemory)
}
