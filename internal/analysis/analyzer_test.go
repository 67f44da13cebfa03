package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/ShopSense/internal/ai"
	"github.com/IshaanNene/ShopSense/internal/chatlog"
	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const productURL = "https://www.flipkart.com/vlogging-camera/p/itm123"

type fakeSource struct {
	calls atomic.Int32
	info  *types.ProductInfo
	err   error
}

func (f *fakeSource) FetchProduct(ctx context.Context, url string) (*types.ProductInfo, error) {
	f.calls.Add(1)
	if f.info == nil {
		return types.NewProductInfo(url), f.err
	}
	return f.info, f.err
}

func vloggingCamera() *types.ProductInfo {
	info := types.NewProductInfo(productURL)
	info.Title = "Vlogging Camera"
	info.Price = "₹12,999"
	info.Rating = "4.2"
	info.AboutThisItem = []string{"4K recording", "Flip screen"}
	info.TechnicalSpecifications.Set("Brand", "XYZ")
	info.Finalize()
	return info
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) FindSimilarItems(ctx context.Context, title string) []types.ShoppingResult {
	f.mu.Lock()
	f.queries = append(f.queries, title)
	f.mu.Unlock()
	return []types.ShoppingResult{{Title: title + " alt", Price: "₹9,999", Link: "https://shop.example/" + title}}
}

func (f *fakeSearcher) FindVideos(ctx context.Context, title string) []types.VideoResult {
	return []types.VideoResult{{Title: title + " review", Channel: "TechTalk"}}
}

type fakeReviews struct{}

func (fakeReviews) FetchReviews(ctx context.Context, url string) []types.Review {
	return []types.Review{{Rating: "5", Summary: "Great", Review: "Sharp video", Location: "Unknown", Date: "Unknown", Upvotes: "0", Downvotes: "0"}}
}

// scriptedProvider answers by task, keyed on the system prompt.
type scriptedProvider struct {
	mu       sync.Mutex
	classify string
	report   string
	chat     string
	errs     map[string]error
	prompts  map[string][]string
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		classify: `{"product_classifier": "Electronics", "relevant_items": ["Action Camera", "Tripod"]}`,
		report:   "## Vlogging Camera\nBuy it.",
		chat:     "Yes, it records in 4K.",
		errs:     map[string]error{},
		prompts:  map[string][]string{},
	}
}

func (p *scriptedProvider) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	task := "chat"
	if len(req.Messages) > 1 {
		if strings.Contains(req.Messages[0].Content, "classification") {
			task = "classify"
		} else {
			task = "report"
		}
	}
	p.mu.Lock()
	p.prompts[task] = append(p.prompts[task], req.Messages[len(req.Messages)-1].Content)
	err := p.errs[task]
	p.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	switch task {
	case "classify":
		return &ai.Response{Content: p.classify}, nil
	case "report":
		return &ai.Response{Content: p.report}, nil
	}
	return &ai.Response{Content: p.chat}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) lastPrompt(task string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.prompts[task]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

type recordingArchive struct {
	mu      sync.Mutex
	reports []*types.Report
	err     error
}

func (r *recordingArchive) Save(ctx context.Context, report *types.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return r.err
}

type harness struct {
	analyzer *Analyzer
	source   *fakeSource
	provider *scriptedProvider
	search   *fakeSearcher
	archive  *recordingArchive
	history  *chatlog.Store
}

func newHarness(t *testing.T, llmTimeout time.Duration, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		source:   &fakeSource{info: vloggingCamera()},
		provider: newScriptedProvider(),
		search:   &fakeSearcher{},
		archive:  &recordingArchive{},
		history:  chatlog.New(filepath.Join(t.TempDir(), "history.csv"), testLogger),
	}
	cfg := config.DefaultConfig().LLM
	cfg.Timeout = llmTimeout
	client := ai.NewClient(h.provider, cfg, testLogger)

	prof := &types.CustomerProfile{
		UserID: "u-1", Name: "Asha", Location: "Pune",
		Categories: map[string]map[string]any{"Electronics": {"budget": 15000}},
	}
	options := append([]Option{
		WithSearcher(h.search),
		WithReviews(fakeReviews{}),
		WithProfile(prof),
		WithArchive(h.archive),
	}, opts...)
	h.analyzer = New(h.source, client, h.history, Options{CacheSize: 4, CacheTTL: time.Hour, ChatRetain: 3}, testLogger, options...)
	return h
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t, time.Second)

	run, err := h.analyzer.Analyze(context.Background(), "  "+productURL+" ")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if run.State != types.StateDone || run.URL != productURL || run.ID == "" {
		t.Errorf("run = state %s url %q id %q", run.State, run.URL, run.ID)
	}
	if run.Markdown != "## Vlogging Camera\nBuy it." {
		t.Errorf("markdown = %q", run.Markdown)
	}
	if run.Classification.Category() != "Electronics" {
		t.Errorf("classification = %+v", run.Classification)
	}

	rec := run.Record
	if rec == nil {
		t.Fatal("record not assembled")
	}
	if len(rec.RelevantSearchItems) != 2 || rec.RelevantSearchItems[1].Item != "Tripod" || len(rec.RelevantSearchItems[1].Results) != 1 {
		t.Errorf("relevant items = %v", rec.RelevantSearchItems)
	}
	if rec.CustomerData.Preferences["budget"] != 15000 {
		t.Errorf("customer data = %+v", rec.CustomerData)
	}
	if len(rec.Reviews) != 1 || len(rec.SimilarItems) != 1 || len(rec.YoutubeVideos) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if v, ok := rec.Specifications.Get("Brand"); !ok || v != "XYZ" {
		t.Errorf("specifications = %v", rec.Specifications)
	}

	report := h.provider.lastPrompt("report")
	for _, want := range []string{"Vlogging Camera", "Action Camera alt", "TechTalk"} {
		if !strings.Contains(report, want) {
			t.Errorf("report prompt missing %q", want)
		}
	}
	if len(h.archive.reports) != 1 || h.archive.reports[0].RunID != run.ID || h.archive.reports[0].Category != "Electronics" {
		t.Errorf("archived = %+v", h.archive.reports)
	}

	m := h.analyzer.Metrics().Snapshot()
	if m["runs_started"] != 1 || m["runs_done"] != 1 || m["llm_calls"] != 2 || m["runs_active"] != 0 {
		t.Errorf("metrics = %v", m)
	}
}

func TestAnalyzeMalformedClassificationStillReports(t *testing.T) {
	h := newHarness(t, time.Second)
	h.provider.classify = "Sure! The category is probably electronics."

	run, err := h.analyzer.Analyze(context.Background(), productURL)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if run.Classification.Error != types.ClassificationError {
		t.Errorf("classification = %+v", run.Classification)
	}
	if run.Markdown == "" || run.State != types.StateDone {
		t.Errorf("report not generated: state=%s markdown=%q", run.State, run.Markdown)
	}
	if len(run.Record.RelevantSearchItems) != 0 || len(run.Record.CustomerData.Preferences) != 0 {
		t.Errorf("record = %+v", run.Record)
	}
	if !strings.Contains(h.provider.lastPrompt("report"), types.ClassificationError) {
		t.Error("report prompt should carry the classification error")
	}
}

func TestAnalyzeFailures(t *testing.T) {
	blocked := &fakeSource{err: &types.BlockedError{URL: productURL, Marker: "captcha"}}
	unusable := &fakeSource{info: func() *types.ProductInfo {
		info := types.NewProductInfo(productURL)
		info.Error = "title marker not found"
		info.Finalize()
		return info
	}()}

	tests := []struct {
		name   string
		source *fakeSource
		url    string
		want   error
		stage  types.RunState
	}{
		{"blocked", blocked, productURL, types.ErrBlocked, types.StateExtracting},
		{"unusable", unusable, productURL, types.ErrProductUnavailable, types.StateExtracting},
		{"empty url", &fakeSource{}, "   ", types.ErrEmptyURL, types.StateIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Second)
			h.analyzer.source = tt.source

			run, err := h.analyzer.Analyze(context.Background(), tt.url)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var perr *types.PipelineError
			if !errors.As(err, &perr) || perr.Stage != tt.stage {
				t.Errorf("pipeline error = %v", err)
			}
			if run == nil || run.State != types.StateFailed {
				t.Errorf("run = %+v", run)
			}
			if len(h.provider.prompts) != 0 || len(h.archive.reports) != 0 {
				t.Error("failed runs must not reach the LLM or the archive")
			}
			if _, ok := h.analyzer.Cached(tt.url); ok {
				t.Error("failed runs must not be cached")
			}
		})
	}

	h := newHarness(t, time.Second)
	h.analyzer.source = blocked
	h.analyzer.Analyze(context.Background(), productURL)
	if m := h.analyzer.Metrics().Snapshot(); m["runs_blocked"] != 1 || m["runs_failed"] != 1 {
		t.Errorf("metrics = %v", m)
	}
}

func TestAnalyzeLLMErrors(t *testing.T) {
	t.Run("report error degrades to inline markdown", func(t *testing.T) {
		h := newHarness(t, time.Second)
		h.provider.errs["report"] = errors.New("rate limited")

		run, err := h.analyzer.Analyze(context.Background(), productURL)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if run.Markdown != "**Error:** rate limited" {
			t.Errorf("markdown = %q", run.Markdown)
		}
	})

	t.Run("timeout fails the run", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.provider.errs["report"] = context.DeadlineExceeded

		run, err := h.analyzer.Analyze(context.Background(), productURL)
		if !errors.Is(err, types.ErrLLMTimeout) {
			t.Fatalf("err = %v, want ErrLLMTimeout", err)
		}
		if run.State != types.StateFailed {
			t.Errorf("state = %s", run.State)
		}
	})

	t.Run("classification timeout fails the run", func(t *testing.T) {
		h := newHarness(t, 20*time.Millisecond)
		h.provider.errs["classify"] = context.DeadlineExceeded

		_, err := h.analyzer.Analyze(context.Background(), productURL)
		var perr *types.PipelineError
		if !errors.As(err, &perr) || perr.Stage != types.StateClassifying || !errors.Is(err, types.ErrLLMTimeout) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestChat(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()

	answer, err := h.analyzer.Chat(ctx, productURL, "Does it record 4K?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "Yes, it records in 4K." {
		t.Errorf("answer = %q", answer)
	}
	if h.source.calls.Load() != 1 {
		t.Errorf("product fetched %d times", h.source.calls.Load())
	}
	first := h.provider.lastPrompt("chat")
	if !strings.Contains(first, "No previous history available for this product.") || !strings.Contains(first, "Does it record 4K?") {
		t.Errorf("first chat prompt = %q", first)
	}

	h.provider.chat = "About 90 minutes."
	if _, err := h.analyzer.Chat(ctx, productURL, "Battery life?"); err != nil {
		t.Fatal(err)
	}
	if h.source.calls.Load() != 1 {
		t.Error("second chat should reuse the cached run")
	}
	second := h.provider.lastPrompt("chat")
	if !strings.Contains(second, "--- Conversation 1 (") || !strings.Contains(second, "Yes, it records in 4K.") {
		t.Errorf("second chat prompt lacks history: %q", second)
	}

	entries := h.history.Entries(productURL)
	if len(entries) != 2 || entries[1].Question != "Battery life?" {
		t.Errorf("entries = %+v", entries)
	}
	if m := h.analyzer.Metrics().Snapshot(); m["chat_turns"] != 2 || m["cache_hits"] != 1 {
		t.Errorf("metrics = %v", m)
	}
}

func TestChatLLMFailureNotRecorded(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	if _, err := h.analyzer.Analyze(ctx, productURL); err != nil {
		t.Fatal(err)
	}

	h.provider.errs["chat"] = errors.New("service unavailable")
	answer, err := h.analyzer.Chat(ctx, productURL, "Is it waterproof?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "**Error:** service unavailable" {
		t.Errorf("answer = %q", answer)
	}
	if n := len(h.history.Entries(productURL)); n != 0 {
		t.Errorf("failed turn recorded: %d entries", n)
	}
}

func TestChatFailedAnalysis(t *testing.T) {
	h := newHarness(t, time.Second)
	h.analyzer.source = &fakeSource{err: &types.BlockedError{URL: productURL, Marker: "captcha"}}

	if _, err := h.analyzer.Chat(context.Background(), productURL, "Price?"); !errors.Is(err, types.ErrBlocked) {
		t.Fatalf("err = %v", err)
	}
	if len(h.history.Entries(productURL)) != 0 {
		t.Error("nothing should be recorded")
	}
}

func TestChatRetainsLastThree(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		h.provider.chat = fmt.Sprintf("answer %d", i)
		if _, err := h.analyzer.Chat(ctx, productURL, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	entries := h.history.Entries(productURL)
	if len(entries) != 3 || entries[0].Question != "question 2" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRunCacheTTL(t *testing.T) {
	now := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, time.Second, WithClock(func() time.Time { return now }))
	h.analyzer.opts.CacheTTL = time.Minute
	h.analyzer.cache = newRunCache(4, time.Minute, func() time.Time { return now })

	ctx := context.Background()
	if _, err := h.analyzer.Chat(ctx, productURL, "q1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.analyzer.Cached(productURL); !ok {
		t.Fatal("run not cached")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := h.analyzer.Cached(productURL); ok {
		t.Error("expired run still cached")
	}
	if _, err := h.analyzer.Chat(ctx, productURL, "q2"); err != nil {
		t.Fatal(err)
	}
	if h.source.calls.Load() != 2 {
		t.Errorf("product fetched %d times, want 2", h.source.calls.Load())
	}
}

func TestRunCacheEviction(t *testing.T) {
	c := newRunCache(2, 0, time.Now)
	for _, u := range []string{"a", "b", "c"} {
		c.put(u, types.NewRun(u, u))
	}
	if c.len() != 2 {
		t.Errorf("len = %d", c.len())
	}
	if _, ok := c.get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("newest entry missing")
	}
}

// gatedSource blocks in FetchProduct until released or its ctx is done.
type gatedSource struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) FetchProduct(ctx context.Context, url string) (*types.ProductInfo, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	select {
	case <-g.release:
		return vloggingCamera(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestChatSharedRunSurvivesCallerCancel(t *testing.T) {
	h := newHarness(t, time.Second)
	source := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	h.analyzer.source = source
	h.analyzer.opts.RunTimeout = 5 * time.Second

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := h.analyzer.Chat(ctxA, productURL, "Price?")
		errA <- err
	}()
	<-source.entered

	type result struct {
		answer string
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		answer, err := h.analyzer.Chat(context.Background(), productURL, "Battery life?")
		resB <- result{answer, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	close(source.release)

	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("live caller err = %v", r.err)
		}
		if r.answer != "Yes, it records in 4K." {
			t.Errorf("answer = %q", r.answer)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("live caller never returned")
	}
	if n := source.calls.Load(); n != 1 {
		t.Errorf("product fetched %d times, want 1", n)
	}
	if _, ok := h.analyzer.Cached(productURL); !ok {
		t.Error("shared run not cached")
	}
	entries := h.history.Entries(productURL)
	if len(entries) != 1 || entries[0].Question != "Battery life?" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestChatSharedRunTimeout(t *testing.T) {
	h := newHarness(t, time.Second)
	source := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	h.analyzer.source = source
	h.analyzer.opts.RunTimeout = 30 * time.Millisecond

	_, err := h.analyzer.Chat(context.Background(), productURL, "Price?")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	var perr *types.PipelineError
	if !errors.As(err, &perr) || perr.Stage != types.StateExtracting {
		t.Errorf("pipeline error = %v", err)
	}
}

func TestRelevantSearchKeepsOrderAndDuplicates(t *testing.T) {
	h := newHarness(t, time.Second)
	h.provider.classify = `{"product_classifier": "Electronics", "relevant_items": ["Tripod", "Tripod", "Mic"]}`

	run, err := h.analyzer.Analyze(context.Background(), productURL)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	got := run.Record.RelevantSearchItems
	if len(got) != 3 {
		t.Fatalf("relevant items = %+v", got)
	}
	for i, want := range []string{"Tripod", "Tripod", "Mic"} {
		if got[i].Item != want || len(got[i].Results) != 1 || got[i].Results[0].Title != want+" alt" {
			t.Errorf("item %d = %+v, want %s", i, got[i], want)
		}
	}

	report := h.provider.lastPrompt("report")
	if strings.Index(report, "Mic alt") < strings.Index(report, "Tripod alt") {
		t.Error("report prompt should list relevant items in classifier order")
	}
}
