// Package reviews downloads a product review page over plain HTTP and
// parses the review cards on it.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/extractor"
	"github.com/IshaanNene/ShopSense/internal/parser"
	"github.com/IshaanNene/ShopSense/internal/types"
)

const (
	cardSelector     = "div.col, div.EPCmJX"
	rowSelector      = "div.row"
	locationSelector = "p._2mcZGG"
	dateSelector     = "p._2sc7ZR"
	votesSelector    = "div._1e9_Zu"
	voteSelector     = "span._3c3Px5"

	unknown = "Unknown"
)

// Getter performs a single HTTP GET. *fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*types.Response, error)
}

// Fetcher retrieves reviews with a bounded retry budget.
type Fetcher struct {
	client Getter
	cfg    config.ReviewsConfig
	sleep  extractor.Sleeper
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSleeper replaces the pause between attempts.
func WithSleeper(s extractor.Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// New creates a review Fetcher.
func New(client Getter, cfg config.ReviewsConfig, logger *slog.Logger, opts ...Option) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		sleep:  extractor.SleepContext,
		logger: logger.With("component", "reviews"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchReviews returns the reviews on url in page order. Every failure
// yields an empty slice; the reason is logged.
func (f *Fetcher) FetchReviews(ctx context.Context, url string) []types.Review {
	doc, err := f.fetch(ctx, url)
	if err != nil {
		f.logger.Error("review page unavailable", "url", url, "error", err)
		return []types.Review{}
	}
	return f.parse(doc)
}

func (f *Fetcher) header() http.Header {
	h := http.Header{}
	if f.cfg.UserAgent != "" {
		h.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.AcceptLanguage != "" {
		h.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	return h
}

// errGiveUp marks statuses that are not worth retrying.
var errGiveUp = errors.New("non-retryable status")

func (f *Fetcher) fetch(ctx context.Context, url string) (*parser.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		doc, err := f.attempt(ctx, url)
		if err == nil {
			return doc, nil
		}
		if errors.Is(err, errGiveUp) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode == http.StatusTooManyRequests {
			f.logger.Warn("rate limited, retrying",
				"url", url, "delay", f.cfg.RetryDelay,
				"attempt", attempt, "max_attempts", f.cfg.MaxAttempts)
		} else {
			f.logger.Warn("review fetch failed, retrying",
				"url", url, "error", err,
				"attempt", attempt, "max_attempts", f.cfg.MaxAttempts)
		}

		if attempt == f.cfg.MaxAttempts {
			break
		}
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max attempts (%d) reached: %w", f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) (*parser.Document, error) {
	resp, err := f.client.Get(ctx, url, f.header())
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 && fe.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: HTTP %d", errGiveUp, fe.StatusCode)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", errGiveUp, resp.StatusCode)
	}
	return parser.FromResponse(resp)
}

func (f *Fetcher) parse(doc *parser.Document) []types.Review {
	reviews := []types.Review{}
	doc.Find(cardSelector).Each(func(i int, card *goquery.Selection) {
		review, ok, err := parseCard(card)
		if err != nil {
			f.logger.Warn("skipping review card", "url", doc.URL, "index", i, "error", err)
			return
		}
		if ok {
			reviews = append(reviews, review)
		}
	})
	f.logger.Info("reviews parsed", "url", doc.URL, "count", len(reviews))
	return reviews
}

// parseCard reads one review card. ok is false for containers that are
// not review cards.
func parseCard(card *goquery.Selection) (types.Review, bool, error) {
	rows := card.Find(rowSelector)
	if rows.Length() < 4 {
		return types.Review{}, false, nil
	}
	head, body, meta := rows.Eq(0), rows.Eq(1), rows.Eq(3)

	rating := head.Find("div").First()
	summary := head.Find("p").First()
	text := body.Find("div").Eq(2)
	switch {
	case rating.Length() == 0:
		return types.Review{}, false, errors.New("rating missing")
	case summary.Length() == 0:
		return types.Review{}, false, errors.New("summary missing")
	case text.Length() == 0:
		return types.Review{}, false, errors.New("review body missing")
	}

	review := types.Review{
		Rating:    strings.TrimSpace(rating.Text()),
		Summary:   strings.TrimSpace(summary.Text()),
		Review:    strings.TrimSpace(text.Text()),
		Location:  unknown,
		Date:      unknown,
		Upvotes:   "0",
		Downvotes: "0",
	}

	if loc := meta.Find(locationSelector).First(); loc.Length() > 0 {
		if spans := loc.Find("span"); spans.Length() > 1 {
			parts := strings.Split(spans.Eq(1).Text(), ",")
			review.Location = strings.TrimSpace(strings.Join(parts[1:], ""))
		}
	}
	if dates := meta.Find(dateSelector); dates.Length() > 1 {
		review.Date = strings.TrimSpace(dates.Eq(1).Text())
	}
	if votes := card.Find(votesSelector).First(); votes.Length() > 0 {
		if spans := votes.Find(voteSelector); spans.Length() >= 2 {
			review.Upvotes = strings.TrimSpace(spans.Eq(0).Text())
			review.Downvotes = strings.TrimSpace(spans.Eq(1).Text())
		}
	}
	return review, true, nil
}
