// Package extractor turns a rendered product page into a ProductInfo.
//
// Extraction degrades field by field: a missing or malformed field is
// recorded in ProductInfo.FieldStatus and never aborts the page. Only an
// anti-bot page is reported as an error.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/fetcher"
	"github.com/IshaanNene/ShopSense/internal/parser"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// Page is a live browser page.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Text(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
}

// Sleeper pauses between retries. It returns early with ctx's error.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options tunes waits and retries.
type Options struct {
	WaitTimeout    time.Duration
	StaleRetries   int
	StaleBackoff   time.Duration
	BlockedMarkers []string
	Sleep          Sleeper
}

// Extractor scrapes product pages.
type Extractor struct {
	sel    Selectors
	opts   Options
	logger *slog.Logger
}

// New creates an Extractor. Zero options take the defaults.
func New(sel Selectors, opts Options, logger *slog.Logger) *Extractor {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.StaleRetries < 1 {
		opts.StaleRetries = 3
	}
	if opts.StaleBackoff < 0 {
		opts.StaleBackoff = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	return &Extractor{
		sel:    sel,
		opts:   opts,
		logger: logger.With("component", "extractor"),
	}
}

// FromConfig builds an Extractor from configuration, applying any
// selector overrides.
func FromConfig(cfg *config.ExtractorConfig, logger *slog.Logger) (*Extractor, error) {
	sel := DefaultSelectors()
	if err := sel.ApplyOverrides(cfg.Selectors); err != nil {
		return nil, err
	}
	return New(sel, Options{
		WaitTimeout:    cfg.WaitTimeout,
		StaleRetries:   cfg.StaleRetries,
		StaleBackoff:   cfg.StaleBackoff,
		BlockedMarkers: cfg.BlockedMarkers,
	}, logger), nil
}

// Extract loads url into page and reads every product field.
//
// The returned ProductInfo is never nil. The error is non-nil only when
// the page is an anti-bot interstitial (a *types.BlockedError) or ctx
// ends.
func (e *Extractor) Extract(ctx context.Context, page Page, url string) (*types.ProductInfo, error) {
	info := types.NewProductInfo(url)
	start := time.Now()

	if err := page.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return info, ctx.Err()
		}
		e.logger.Warn("navigation failed", "url", url, "error", err)
		info.Error = err.Error()
		info.Finalize()
		return info, nil
	}

	if err := page.WaitFor(ctx, e.sel.Title, e.opts.WaitTimeout); err != nil {
		if ctx.Err() != nil {
			return info, ctx.Err()
		}
		return e.titleMissing(ctx, page, info, err)
	}

	info.Title = e.singleField(ctx, page, info, types.FieldTitle, e.sel.Title)
	info.Price = e.singleField(ctx, page, info, types.FieldPrice, e.sel.Price)
	info.Rating = e.singleField(ctx, page, info, types.FieldRating, e.sel.Rating)

	specWaitErr := page.WaitFor(ctx, e.sel.SpecContainer, e.opts.WaitTimeout)
	breakdownWaitErr := page.WaitFor(ctx, e.sel.RatingBreakdown, e.opts.WaitTimeout)
	if ctx.Err() != nil {
		return info, ctx.Err()
	}

	html, err := page.HTML(ctx)
	var doc *parser.Document
	if err == nil {
		doc, err = parser.NewDocument(url, html)
	}
	if err != nil {
		e.logger.Warn("page snapshot failed", "url", url, "error", err)
		for _, f := range e.documentFields() {
			info.SetStatus(f.name, types.StatusFailed)
		}
		info.Finalize()
		return info, nil
	}

	for _, f := range e.documentFields() {
		switch {
		case f.name == types.FieldSpecifications && specWaitErr != nil:
			e.logger.Debug("spec container never appeared", "url", url, "error", specWaitErr)
			info.SetStatus(f.name, types.StatusFailed)
		case f.name == types.FieldRatingBreakdown && breakdownWaitErr != nil:
			e.logger.Debug("rating breakdown never appeared", "url", url, "error", breakdownWaitErr)
			info.SetStatus(f.name, types.StatusFailed)
		default:
			info.SetStatus(f.name, f.extract(doc, info))
		}
	}

	info.Finalize()
	e.logger.Info("product extracted",
		"url", url,
		"status", info.Status,
		"specs", len(info.TechnicalSpecifications),
		"duration", time.Since(start),
	)
	return info, nil
}

// titleMissing decides between a blocked page and an ordinary failure.
func (e *Extractor) titleMissing(ctx context.Context, page Page, info *types.ProductInfo, waitErr error) (*types.ProductInfo, error) {
	html, err := page.HTML(ctx)
	if err == nil {
		if marker, blocked := fetcher.DetectBlocked(html, e.opts.BlockedMarkers...); blocked {
			berr := &types.BlockedError{URL: info.URL, Marker: marker}
			e.logger.Warn("anti-bot page detected", "url", info.URL, "marker", marker)
			info.Error = berr.Error()
			info.Status = types.StatusBlocked
			return info, berr
		}
	}

	if errors.Is(waitErr, types.ErrWaitTimeout) {
		info.Error = "title marker not found"
	} else {
		info.Error = waitErr.Error()
	}
	e.logger.Warn("title not found", "url", info.URL, "error", waitErr)
	info.Finalize()
	return info, nil
}

// singleField reads one text value, retrying while the node is stale.
func (e *Extractor) singleField(ctx context.Context, page Page, info *types.ProductInfo, field, selector string) string {
	text, ok := e.safeText(ctx, page, selector)
	if ok {
		info.SetStatus(field, types.StatusOK)
	} else {
		info.SetStatus(field, types.StatusFailed)
	}
	return text
}

func (e *Extractor) safeText(ctx context.Context, page Page, selector string) (string, bool) {
	for attempt := 1; attempt <= e.opts.StaleRetries; attempt++ {
		text, err := page.Text(ctx, selector)
		switch {
		case err == nil:
			text = strings.TrimSpace(text)
			return text, text != ""
		case errors.Is(err, types.ErrStaleElement):
			e.logger.Warn("stale element, retrying", "selector", selector, "attempt", attempt)
			if attempt == e.opts.StaleRetries {
				return "", false
			}
			if err := e.opts.Sleep(ctx, e.opts.StaleBackoff); err != nil {
				return "", false
			}
		case errors.Is(err, types.ErrElementNotFound):
			return "", false
		default:
			e.logger.Error("unexpected error reading element", "selector", selector, "error", err)
			return "", false
		}
	}
	return "", false
}

// documentField extracts one field from the page snapshot.
type documentField struct {
	name    string
	extract func(*parser.Document, *types.ProductInfo) types.Status
}

func (e *Extractor) documentFields() []documentField {
	return []documentField{
		{types.FieldAboutThisItem, e.listField(e.sel.AboutThisItem, func(p *types.ProductInfo, v []string) { p.AboutThisItem = v })},
		{types.FieldServices, e.listField(e.sel.Services, func(p *types.ProductInfo, v []string) { p.Services = v })},
		{types.FieldParagraph, e.listField(e.sel.Paragraph, func(p *types.ProductInfo, v []string) { p.Paragraph = v })},
		{types.FieldSpecifications, e.specTable},
		{types.FieldRatingBreakdown, e.ratingBreakdown},
		{types.FieldFeatureRatings, e.featureRatings},
	}
}

func (e *Extractor) listField(selector string, set func(*types.ProductInfo, []string)) func(*parser.Document, *types.ProductInfo) types.Status {
	return func(doc *parser.Document, info *types.ProductInfo) types.Status {
		items := doc.Texts(selector)
		set(info, items)
		if len(items) == 0 {
			return types.StatusFailed
		}
		return types.StatusOK
	}
}

func (e *Extractor) specTable(doc *parser.Document, info *types.ProductInfo) types.Status {
	table := doc.Find(e.sel.SpecContainer).First().
		Find(e.sel.SpecSection).First().
		Find(e.sel.SpecTable).First()
	if table.Length() == 0 {
		e.logger.Debug("spec table not found", "url", info.URL)
		return types.StatusFailed
	}

	status := types.StatusOK
	specs := types.SpecTable{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSpace(cells.Eq(0).Text())
		valueCell := cells.Eq(1)

		var value string
		if items := parser.Texts(valueCell.Find("li")); len(items) > 0 {
			value = strings.Join(items, ", ")
		} else {
			value = strings.TrimSpace(valueCell.Text())
		}

		if key == "" || value == "" {
			status = types.StatusPartial
			return
		}
		specs.Set(key, value)
	})

	info.TechnicalSpecifications = specs
	if len(specs) == 0 {
		return types.StatusFailed
	}
	return status
}

func (e *Extractor) ratingBreakdown(doc *parser.Document, info *types.ProductInfo) types.Status {
	bars := doc.Find(e.sel.RatingBreakdown)
	if bars.Length() == 0 {
		return types.StatusFailed
	}

	status := types.StatusOK
	bars.Each(func(idx int, bar *goquery.Selection) {
		if idx >= 5 {
			return
		}
		star := 5 - idx
		raw := strings.ReplaceAll(strings.TrimSpace(bar.Text()), ",", "")
		count := 0
		if isDigits(raw) {
			count, _ = strconv.Atoi(raw)
		} else {
			status = types.StatusPartial
		}
		info.RatingBreakdown[star] = count
	})
	return status
}

func (e *Extractor) featureRatings(doc *parser.Document, info *types.ProductInfo) types.Status {
	blocks := doc.Find(e.sel.FeatureBlock)
	if blocks.Length() == 0 {
		return types.StatusFailed
	}

	status := types.StatusOK
	blocks.Each(func(_ int, block *goquery.Selection) {
		ratingText, found, err := parser.XPathText(block, e.sel.FeatureRating)
		if err != nil || !found {
			status = types.StatusPartial
			return
		}
		label := strings.TrimSpace(block.Find(e.sel.FeatureLabel).First().Text())
		if ratingText == "" || label == "" {
			status = types.StatusPartial
			return
		}
		value, err := strconv.ParseFloat(ratingText, 64)
		if err != nil {
			e.logger.Warn("non-numeric feature rating", "label", label, "value", ratingText)
			status = types.StatusPartial
			return
		}
		info.FeatureRatings[label] = value
	})
	if len(info.FeatureRatings) == 0 {
		return types.StatusFailed
	}
	return status
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
