package search

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/fetcher"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const shoppingJSON = `{
  "shopping_results": [
    {"title": "Cam A", "price": "₹24,999", "rating": 4.4, "reviews": 1520, "source": "Amazon.in", "link": "https://a.example"},
    {"title": "Cam B", "price": "₹19,999", "source": "Croma", "product_link": "https://b.example"},
    {"title": "Cam C", "price": "₹9,999", "source": "Local"},
    {"title": "Cam D"}, {"title": "Cam E"}, {"title": "Cam F"}
  ]
}`

const videoJSON = `{
  "video_results": [
    {"title": "Review", "link": "https://youtube.com/watch?v=1", "channel": {"name": "TechGuy"}, "published_date": "2 months ago", "description": "Full review"}
  ]
}`

func newTestClient(t *testing.T, endpoint, key string) *Client {
	t.Helper()
	hf, err := fetcher.NewHTTPFetcher(config.DefaultConfig(), nil, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { hf.Close() })

	cfg := config.DefaultConfig().Search
	cfg.Endpoint = endpoint
	cfg.APIKey = key
	return NewClient(hf, cfg, testLogger)
}

func TestFindSimilarItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google" || q.Get("tbm") != "shop" || q.Get("q") != "Vlogging Camera" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("api_key") != "secret" || q.Get("gl") != "in" || q.Get("hl") != "en" {
			t.Errorf("unexpected params: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(shoppingJSON))
	}))
	defer server.Close()

	items := newTestClient(t, server.URL, "secret").FindSimilarItems(context.Background(), "Vlogging Camera")
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	if items[0].Link != "https://a.example" || items[0].Price != "₹24,999" || items[0].Rating != 4.4 {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].Link != "https://b.example" {
		t.Errorf("product_link fallback = %q", items[1].Link)
	}
	if items[2].Link != "Link not available" {
		t.Errorf("missing link = %q", items[2].Link)
	}
}

func TestFindVideos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "youtube" || q.Get("search_query") != "Vlogging Camera" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(videoJSON))
	}))
	defer server.Close()

	videos := newTestClient(t, server.URL, "secret").FindVideos(context.Background(), "Vlogging Camera")
	if len(videos) != 1 {
		t.Fatalf("got %d videos", len(videos))
	}
	v := videos[0]
	if v.Channel != "TechGuy" || v.PublishedDate != "2 months ago" || v.Description != "Full review" {
		t.Errorf("video = %+v", v)
	}
}

func TestSearchSkipsWithoutKeyOrTitle(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(shoppingJSON))
	}))
	defer server.Close()

	tests := []struct {
		name  string
		key   string
		title string
	}{
		{"no key", "", "Vlogging Camera"},
		{"empty title", "secret", ""},
		{"blank title", "secret", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, server.URL, tt.key)
			if got := c.FindSimilarItems(context.Background(), tt.title); len(got) != 0 {
				t.Errorf("items = %v", got)
			}
			if got := c.FindVideos(context.Background(), tt.title); len(got) != 0 {
				t.Errorf("videos = %v", got)
			}
		})
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("made %d network calls, want 0", n)
	}
}

func TestSearchFailuresAreEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid API key."}`))
		}},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"Your account has run out of searches."}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>oops</html>`))
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := newTestClient(t, server.URL, "secret")
			if got := c.FindSimilarItems(context.Background(), "Mug"); len(got) != 0 {
				t.Errorf("items = %v", got)
			}
			if got := c.FindVideos(context.Background(), "Mug"); len(got) != 0 {
				t.Errorf("videos = %v", got)
			}
		})
	}
}
