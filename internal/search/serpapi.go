// Package search queries SerpAPI for similar products and review videos.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

const linkNotAvailable = "Link not available"

// Getter performs a single HTTP GET. *fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*types.Response, error)
}

// Client is a SerpAPI client. Lookups never fail: any problem yields an
// empty result and a log line.
type Client struct {
	http   Getter
	cfg    config.SearchConfig
	logger *slog.Logger
}

// NewClient creates a search client.
func NewClient(getter Getter, cfg config.SearchConfig, logger *slog.Logger) *Client {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	return &Client{
		http:   getter,
		cfg:    cfg,
		logger: logger.With("component", "search"),
	}
}

type shoppingResponse struct {
	ShoppingResults []struct {
		Title       string `json:"title"`
		Price       any    `json:"price"`
		Rating      any    `json:"rating"`
		Reviews     any    `json:"reviews"`
		Source      string `json:"source"`
		Link        string `json:"link"`
		ProductLink string `json:"product_link"`
	} `json:"shopping_results"`
	Error string `json:"error"`
}

type videoResponse struct {
	VideoResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
		PublishedDate string `json:"published_date"`
		Description   string `json:"description"`
	} `json:"video_results"`
	Error string `json:"error"`
}

// FindSimilarItems runs a Google Shopping search for title.
func (c *Client) FindSimilarItems(ctx context.Context, title string) []types.ShoppingResult {
	title = strings.TrimSpace(title)
	if !c.ready(title, "shopping") {
		return []types.ShoppingResult{}
	}

	params := c.params()
	params.Set("engine", "google")
	params.Set("q", title)
	params.Set("tbm", "shop")

	var body shoppingResponse
	if err := c.query(ctx, params, &body); err != nil || body.Error != "" {
		c.logger.Error("shopping search failed", "query", title, "error", errOr(err, body.Error))
		return []types.ShoppingResult{}
	}

	results := body.ShoppingResults
	if len(results) > c.cfg.Limit {
		results = results[:c.cfg.Limit]
	}
	out := make([]types.ShoppingResult, 0, len(results))
	for _, r := range results {
		link := r.Link
		if link == "" {
			link = r.ProductLink
		}
		if link == "" {
			link = linkNotAvailable
		}
		out = append(out, types.ShoppingResult{
			Title:   r.Title,
			Price:   stringify(r.Price),
			Rating:  r.Rating,
			Reviews: r.Reviews,
			Source:  r.Source,
			Link:    link,
		})
	}
	c.logger.Info("similar items fetched", "query", title, "count", len(out))
	return out
}

// FindVideos runs a YouTube search for title.
func (c *Client) FindVideos(ctx context.Context, title string) []types.VideoResult {
	title = strings.TrimSpace(title)
	if !c.ready(title, "youtube") {
		return []types.VideoResult{}
	}

	params := c.params()
	params.Set("engine", "youtube")
	params.Set("search_query", title)

	var body videoResponse
	if err := c.query(ctx, params, &body); err != nil || body.Error != "" {
		c.logger.Error("video search failed", "query", title, "error", errOr(err, body.Error))
		return []types.VideoResult{}
	}

	videos := body.VideoResults
	if len(videos) > c.cfg.Limit {
		videos = videos[:c.cfg.Limit]
	}
	out := make([]types.VideoResult, 0, len(videos))
	for _, v := range videos {
		out = append(out, types.VideoResult{
			Title:         v.Title,
			Link:          v.Link,
			Channel:       v.Channel.Name,
			PublishedDate: v.PublishedDate,
			Description:   v.Description,
		})
	}
	c.logger.Info("videos fetched", "query", title, "count", len(out))
	return out
}

func (c *Client) ready(title, engine string) bool {
	if c.cfg.APIKey == "" || title == "" {
		c.logger.Warn("search skipped: missing API key or product title", "engine", engine)
		return false
	}
	return true
}

func (c *Client) params() url.Values {
	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	if c.cfg.Country != "" {
		params.Set("gl", c.cfg.Country)
	}
	if c.cfg.Language != "" {
		params.Set("hl", c.cfg.Language)
	}
	return params
}

func (c *Client) query(ctx context.Context, params url.Values, out any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.http.Get(ctx, c.cfg.Endpoint+"?"+params.Encode(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func errOr(err error, apiErr string) string {
	if err != nil {
		return err.Error()
	}
	return apiErr
}
