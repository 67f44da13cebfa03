package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// BrowserPage adapts a rod page to the extractor's page contract. Pages
// are navigated without waiting for the load event; callers wait for the
// specific elements they need.
type BrowserPage struct {
	page            *rod.Page
	navigateTimeout time.Duration
}

// Navigate loads url and returns once the document is committed.
func (p *BrowserPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if p.navigateTimeout > 0 {
		page = page.Timeout(p.navigateTimeout)
	}
	if err := page.Navigate(url); err != nil {
		return &types.FetchError{URL: url, Err: err, Retryable: false}
	}
	return nil
}

// WaitFor blocks until selector matches or timeout elapses.
func (p *BrowserPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", types.ErrWaitTimeout, selector)
	}
	return classifyNodeError(selector, err)
}

// Text returns the visible text of the first element matching selector.
func (p *BrowserPage) Text(ctx context.Context, selector string) (string, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return "", classifyNodeError(selector, err)
	}
	if !has {
		return "", fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	text, err := el.Text()
	if err != nil {
		return "", classifyNodeError(selector, err)
	}
	return text, nil
}

// HTML returns the current page source.
func (p *BrowserPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// staleMarkers are CDP error fragments raised when a node was replaced
// between lookup and use.
var staleMarkers = []string{
	"Could not find node with given id",
	"No node with given id found",
	"Node with given id does not belong to the document",
	"Cannot find context with specified id",
	"Object reference chain is too long",
	"object not found",
}

func classifyNodeError(selector string, err error) error {
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s: %v", types.ErrStaleElement, selector, err)
		}
	}
	return &types.ParseError{Selector: selector, Err: err}
}
