package reviews

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/fetcher"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const reviewsHTML = `<!DOCTYPE html>
<html><body>
<div class="EPCmJX">
  <div class="row"><div class="XQDdHH">5</div><p class="z9E0IG">Terrific purchase</p></div>
  <div class="row"><div></div><div></div><div>Great camera for vlogging, battery lasts all day.</div></div>
  <div class="row"></div>
  <div class="row">
    <p class="_2mcZGG"><span>Certified Buyer</span><span>Certified Buyer, Pune</span></p>
    <p class="_2sc7ZR">Rahul</p><p class="_2sc7ZR">Mar, 2024</p>
  </div>
  <div class="_1e9_Zu"><span class="_3c3Px5">42</span><span class="_3c3Px5">3</span></div>
</div>
<div class="EPCmJX">
  <div class="row"><div>3</div><p>Decent</p></div>
  <div class="row"><div></div><div></div><div>Okay for the price.</div></div>
  <div class="row"></div>
  <div class="row"></div>
</div>
<div class="EPCmJX">
  <div class="row"><div>1</div></div>
  <div class="row"></div><div class="row"></div><div class="row"></div>
</div>
<div class="EPCmJX"><div class="row">too short</div></div>
</body></html>`

func newHTTPFetcher(t *testing.T) *fetcher.HTTPFetcher {
	t.Helper()
	hf, err := fetcher.NewHTTPFetcher(config.DefaultConfig(), nil, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { hf.Close() })
	return hf
}

type sleepRecorder struct{ calls []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newTestFetcher(t *testing.T, rec *sleepRecorder) *Fetcher {
	return New(newHTTPFetcher(t), config.DefaultConfig().Reviews, testLogger, WithSleeper(rec.sleep))
}

func TestFetchReviewsParsesCards(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(reviewsHTML))
	}))
	defer server.Close()

	reviews := newTestFetcher(t, &sleepRecorder{}).FetchReviews(context.Background(), server.URL)

	if gotLang != "en-US,en;q=0.5" {
		t.Errorf("Accept-Language = %q", gotLang)
	}
	if gotUA != config.DefaultConfig().Reviews.UserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if len(reviews) != 2 {
		t.Fatalf("got %d reviews, want 2: %+v", len(reviews), reviews)
	}

	first := reviews[0]
	if first.Rating != "5" || first.Summary != "Terrific purchase" {
		t.Errorf("rating=%q summary=%q", first.Rating, first.Summary)
	}
	if first.Review != "Great camera for vlogging, battery lasts all day." {
		t.Errorf("review = %q", first.Review)
	}
	if first.Location != "Pune" || first.Date != "Mar, 2024" {
		t.Errorf("location=%q date=%q", first.Location, first.Date)
	}
	if first.Upvotes != "42" || first.Downvotes != "3" {
		t.Errorf("votes = %s/%s", first.Upvotes, first.Downvotes)
	}

	second := reviews[1]
	if second.Location != "Unknown" || second.Date != "Unknown" || second.Upvotes != "0" || second.Downvotes != "0" {
		t.Errorf("defaults not applied: %+v", second)
	}
}

func TestFetchReviewsRateLimited(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	reviews := newTestFetcher(t, rec).FetchReviews(context.Background(), server.URL)

	if len(reviews) != 0 {
		t.Errorf("expected no reviews, got %d", len(reviews))
	}
	if n := requests.Load(); n != 5 {
		t.Errorf("requests = %d, want 5", n)
	}
	if len(rec.calls) != 4 {
		t.Fatalf("sleeps = %d, want 4", len(rec.calls))
	}
	for _, d := range rec.calls {
		if d != 4*time.Second {
			t.Errorf("sleep = %s, want 4s", d)
		}
	}
}

func TestFetchReviewsRecoversAfterRateLimit(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(reviewsHTML))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	reviews := newTestFetcher(t, rec).FetchReviews(context.Background(), server.URL)
	if len(reviews) != 2 || len(rec.calls) != 2 {
		t.Errorf("reviews=%d sleeps=%d", len(reviews), len(rec.calls))
	}
}

func TestFetchReviewsGivesUpOnOtherStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			rec := &sleepRecorder{}
			reviews := newTestFetcher(t, rec).FetchReviews(context.Background(), server.URL)
			if len(reviews) != 0 {
				t.Errorf("expected empty result, got %d", len(reviews))
			}
			if requests.Load() != 1 || len(rec.calls) != 0 {
				t.Errorf("requests=%d sleeps=%d, want 1 and 0", requests.Load(), len(rec.calls))
			}
		})
	}
}

func TestFetchReviewsCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &sleepRecorder{}
	f := New(newHTTPFetcher(t), config.DefaultConfig().Reviews, testLogger, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return rec.sleep(ctx, d)
	}))

	if reviews := f.FetchReviews(ctx, server.URL); len(reviews) != 0 {
		t.Errorf("expected empty result, got %d", len(reviews))
	}
	if len(rec.calls) != 1 {
		t.Errorf("sleeps = %d, want 1", len(rec.calls))
	}
}
