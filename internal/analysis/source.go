package analysis

import (
	"context"

	"github.com/IshaanNene/ShopSense/internal/extractor"
	"github.com/IshaanNene/ShopSense/internal/fetcher"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// BrowserProductSource extracts products with the shared browser.
type BrowserProductSource struct {
	session   *fetcher.BrowserSession
	extractor *extractor.Extractor
}

// NewBrowserProductSource creates a ProductSource backed by session.
func NewBrowserProductSource(session *fetcher.BrowserSession, ext *extractor.Extractor) *BrowserProductSource {
	return &BrowserProductSource{session: session, extractor: ext}
}

// FetchProduct opens a page, extracts the product and closes the page.
func (s *BrowserProductSource) FetchProduct(ctx context.Context, url string) (*types.ProductInfo, error) {
	var info *types.ProductInfo
	err := s.session.WithPage(ctx, func(page *fetcher.BrowserPage) error {
		var err error
		info, err = s.extractor.Extract(ctx, page, url)
		return err
	})
	if info == nil {
		info = types.NewProductInfo(url)
		if err != nil {
			info.Error = err.Error()
			info.Status = types.StatusFailed
		}
	}
	return info, err
}
