// Package analysis orchestrates a product analysis: extraction,
// enrichment, classification, reviews and the final report, plus
// follow-up chat over a finished run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/IshaanNene/ShopSense/internal/ai"
	"github.com/IshaanNene/ShopSense/internal/observability"
	"github.com/IshaanNene/ShopSense/internal/pipeline"
	"github.com/IshaanNene/ShopSense/internal/profile"
	"github.com/IshaanNene/ShopSense/internal/prompt"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// historyTurns is how many past chat turns are fed back to the model.
const historyTurns = 3

// ProductSource loads and extracts a product page.
type ProductSource interface {
	FetchProduct(ctx context.Context, url string) (*types.ProductInfo, error)
}

// ReviewSource returns the review cards for a product URL.
type ReviewSource interface {
	FetchReviews(ctx context.Context, url string) []types.Review
}

// Searcher looks up similar products and review videos.
type Searcher interface {
	FindSimilarItems(ctx context.Context, title string) []types.ShoppingResult
	FindVideos(ctx context.Context, title string) []types.VideoResult
}

// LLM runs the three language model tasks. *ai.Client satisfies it.
type LLM interface {
	Classify(ctx context.Context, prompt string) (types.Classification, error)
	Report(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, prompt string) (string, error)
}

// ChatHistory is the per-URL conversation log. *chatlog.Store satisfies it.
type ChatHistory interface {
	LastN(url string, n int) string
	Append(url, question, response string, retain int) error
}

// Archive persists finished reports.
type Archive interface {
	Save(ctx context.Context, report *types.Report) error
}

// Options tunes the Analyzer.
type Options struct {
	CacheSize  int
	CacheTTL   time.Duration
	ChatRetain int
	// RunTimeout bounds an analysis that Chat starts for waiting callers.
	RunTimeout time.Duration
}

// Analyzer runs analyses and answers chat questions about them.
type Analyzer struct {
	source   ProductSource
	llm      LLM
	history  ChatHistory
	reviews  ReviewSource
	search   Searcher
	profile  *types.CustomerProfile
	archive  Archive
	metrics  *observability.Metrics
	opts     Options
	cache    *runCache
	inflight singleflight.Group
	clock    func() time.Time
	logger   *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithReviews sets the review source. Without one, runs have no reviews.
func WithReviews(r ReviewSource) Option {
	return func(a *Analyzer) { a.reviews = r }
}

// WithSearcher sets the similar-item and video searcher.
func WithSearcher(s Searcher) Option {
	return func(a *Analyzer) { a.search = s }
}

// WithProfile sets the customer profile.
func WithProfile(p *types.CustomerProfile) Option {
	return func(a *Analyzer) { a.profile = p }
}

// WithArchive sets where finished reports are saved.
func WithArchive(ar Archive) Option {
	return func(a *Analyzer) { a.archive = ar }
}

// WithMetrics sets the counters updated by runs and chats.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock replaces time.Now for the run cache.
func WithClock(clock func() time.Time) Option {
	return func(a *Analyzer) { a.clock = clock }
}

// New creates an Analyzer.
func New(source ProductSource, llm LLM, history ChatHistory, opts Options, logger *slog.Logger, options ...Option) *Analyzer {
	if opts.ChatRetain <= 0 {
		opts.ChatRetain = 3
	}
	a := &Analyzer{
		source:  source,
		llm:     llm,
		history: history,
		opts:    opts,
		clock:   time.Now,
		logger:  logger.With("component", "analyzer"),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observability.NewMetrics(logger)
	}
	a.cache = newRunCache(opts.CacheSize, opts.CacheTTL, a.clock)
	return a
}

// Metrics returns the counters the analyzer updates.
func (a *Analyzer) Metrics() *observability.Metrics { return a.metrics }

// Analyze runs a full analysis of url. The returned run is never nil; on
// failure it is in the failed state and the error is a
// *types.PipelineError.
func (a *Analyzer) Analyze(ctx context.Context, url string) (*types.Run, error) {
	url = strings.TrimSpace(url)
	run := types.NewRun(ulid.Make().String(), url)
	if url == "" {
		return a.reject(run, types.ErrEmptyURL)
	}

	a.metrics.RunsStarted.Add(1)
	a.metrics.RunsActive.Add(1)
	defer a.metrics.RunsActive.Add(-1)

	log := a.logger.With("run_id", run.ID, "url", url)
	log.Info("analysis started")

	p := pipeline.New(a.logger)
	p.OnTransition(func(r *types.Run, from, to types.RunState) {
		log.Debug("run state changed", "from", from, "to", to)
	})
	p.Use(pipeline.StageFunc{State: types.StateExtracting, Fn: a.extract})
	p.Use(pipeline.StageFunc{State: types.StateEnriching, Fn: a.enrich})
	p.Use(pipeline.StageFunc{State: types.StateClassifying, Fn: a.classify})
	p.Use(pipeline.StageFunc{State: types.StateReviewFetching, Fn: a.fetchReviews})
	p.Use(pipeline.StageFunc{State: types.StateReportGenerating, Fn: a.report})

	if err := p.Process(ctx, run); err != nil {
		a.metrics.RunsFailed.Add(1)
		if errors.Is(err, types.ErrBlocked) {
			a.metrics.RunsBlocked.Add(1)
		}
		return run, err
	}

	a.cache.put(url, run)
	a.metrics.RunsDone.Add(1)
	a.save(ctx, run)
	log.Info("analysis complete",
		"category", run.Classification.Category(),
		"reviews", len(run.Reviews),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, nil
}

// reject fails a run before any stage has executed.
func (a *Analyzer) reject(run *types.Run, err error) (*types.Run, error) {
	perr := &types.PipelineError{Stage: types.StateIdle, RunID: run.ID, Err: err}
	run.State = types.StateFailed
	run.Err = perr
	run.FinishedAt = time.Now().UTC()
	return run, perr
}

// Cached returns the cached run for url, if any.
func (a *Analyzer) Cached(url string) (*types.Run, bool) {
	return a.cache.get(strings.TrimSpace(url))
}

// Chat answers question about the product at url, analyzing it first when
// no cached run exists. A failed LLM call yields inline error markdown
// that is not recorded in the history.
func (a *Analyzer) Chat(ctx context.Context, url, question string) (string, error) {
	url = strings.TrimSpace(url)
	run, err := a.runFor(ctx, url)
	if err != nil {
		a.metrics.ChatFailed.Add(1)
		return "", err
	}

	history := a.history.LastN(url, historyTurns)
	text, err := prompt.Chat(run.Record, history, question)
	if err != nil {
		a.metrics.ChatFailed.Add(1)
		return "", err
	}

	a.metrics.LLMCalls.Add(1)
	answer, err := a.llm.Chat(ctx, text)
	if err != nil {
		a.metrics.LLMErrors.Add(1)
		a.metrics.ChatFailed.Add(1)
		if errors.Is(err, types.ErrLLMTimeout) || ctx.Err() != nil {
			return "", err
		}
		return ai.ErrorMarkdown(err), nil
	}

	if err := a.history.Append(url, question, answer, a.opts.ChatRetain); err != nil {
		a.logger.Error("failed to record chat turn", "url", url, "error", err)
	}
	a.metrics.ChatTurns.Add(1)
	return answer, nil
}

// runFor returns a finished run for url, sharing one analysis between
// concurrent callers. Each caller stops waiting when its own ctx is done;
// the shared run keeps going for the others.
func (a *Analyzer) runFor(ctx context.Context, url string) (*types.Run, error) {
	if run, ok := a.cache.get(url); ok {
		a.metrics.CacheHits.Add(1)
		return run, nil
	}
	ch := a.inflight.DoChan(url, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if a.opts.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, a.opts.RunTimeout)
			defer cancel()
		}
		return a.Analyze(runCtx, url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Run), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Analyzer) extract(ctx context.Context, run *types.Run) error {
	info, err := a.source.FetchProduct(ctx, run.URL)
	run.Product = info
	if err != nil {
		return err
	}
	if !info.Usable() {
		if info != nil && info.Error != "" {
			return fmt.Errorf("%w: %s", types.ErrProductUnavailable, info.Error)
		}
		return types.ErrProductUnavailable
	}
	return nil
}

func (a *Analyzer) enrich(ctx context.Context, run *types.Run) error {
	run.SimilarItems = []types.ShoppingResult{}
	run.Videos = []types.VideoResult{}
	if a.search == nil {
		return nil
	}

	title := run.Product.Title
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		run.SimilarItems = a.search.FindSimilarItems(gctx, title)
		return nil
	})
	g.Go(func() error {
		run.Videos = a.search.FindVideos(gctx, title)
		return nil
	})
	_ = g.Wait()
	a.metrics.SearchCalls.Add(2)
	return ctx.Err()
}

func (a *Analyzer) classify(ctx context.Context, run *types.Run) error {
	text, err := prompt.Classifier(run.Product)
	if err != nil {
		return err
	}
	a.metrics.LLMCalls.Add(1)
	result, err := a.llm.Classify(ctx, text)
	if err != nil {
		a.metrics.LLMErrors.Add(1)
		return err
	}
	if result.Error != "" {
		a.logger.Warn("classification degraded", "run_id", run.ID, "error", result.Error)
	}
	run.Classification = result
	return nil
}

func (a *Analyzer) fetchReviews(ctx context.Context, run *types.Run) error {
	run.Reviews = []types.Review{}
	if a.reviews == nil {
		return nil
	}
	if reviews := a.reviews.FetchReviews(ctx, run.URL); reviews != nil {
		run.Reviews = reviews
	}
	a.metrics.ReviewsFetched.Add(int64(len(run.Reviews)))
	return ctx.Err()
}

func (a *Analyzer) report(ctx context.Context, run *types.Run) error {
	run.RelevantItems = a.searchRelevant(ctx, run.Classification.RelevantItems)
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Customer = profile.Project(a.profile, run.Classification.Category())
	run.Record = &types.CombinedRecord{
		ClassificationResult: run.Classification,
		ProductInfo:          run.Product,
		Specifications:       run.Product.TechnicalSpecifications,
		Reviews:              run.Reviews,
		SimilarItems:         run.SimilarItems,
		YoutubeVideos:        run.Videos,
		RelevantSearchItems:  run.RelevantItems,
		CustomerData:         run.Customer,
	}

	text, err := prompt.Report(run.Record)
	if err != nil {
		return err
	}
	a.metrics.LLMCalls.Add(1)
	markdown, err := a.llm.Report(ctx, text)
	if err != nil {
		a.metrics.LLMErrors.Add(1)
		if errors.Is(err, types.ErrLLMTimeout) || ctx.Err() != nil {
			return err
		}
		a.logger.Warn("report generation failed", "run_id", run.ID, "error", err)
		markdown = ai.ErrorMarkdown(err)
	}
	run.Markdown = markdown
	return nil
}

// searchRelevant looks up every relevant item concurrently. The result
// has one entry per item, in classifier order, duplicates included.
func (a *Analyzer) searchRelevant(ctx context.Context, items []string) []types.RelevantSearch {
	out := make([]types.RelevantSearch, len(items))
	for i, item := range items {
		out[i] = types.RelevantSearch{Item: item, Results: []types.ShoppingResult{}}
	}
	if len(items) == 0 || a.search == nil {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			if results := a.search.FindSimilarItems(gctx, item); results != nil {
				out[i].Results = results
			}
			return nil
		})
	}
	_ = g.Wait()
	a.metrics.SearchCalls.Add(int64(len(items)))
	return out
}

func (a *Analyzer) save(ctx context.Context, run *types.Run) {
	if a.archive == nil {
		return
	}
	if err := a.archive.Save(context.WithoutCancel(ctx), types.NewReport(run)); err != nil {
		a.metrics.ArchiveErrors.Add(1)
		a.logger.Error("failed to archive report", "run_id", run.ID, "error", err)
		return
	}
	a.metrics.ReportsArchived.Add(1)
}
