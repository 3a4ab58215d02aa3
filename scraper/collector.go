package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/language"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// Collector walks the review feed region by region and page by page and
// assembles a deduplicated review list. It is safe for concurrent use;
// each Collect call keeps its own dedup index and result.
type Collector struct {
	fetcher       PageFetcher
	filter        *language.Filter
	filterEnabled bool
	results       cache.ResultCache
	progress      func(models.RegionSummary)
	transport     http.RoundTripper

	maxPages      int
	courtesyDelay time.Duration

	Metrics *Metrics
}

// Option customises a Collector.
type Option func(*Collector)

// WithResultCache memoizes completed results in rc.
func WithResultCache(rc cache.ResultCache) Option {
	return func(c *Collector) {
		c.results = rc
	}
}

// WithFilter shares an existing language filter (and its memo).
func WithFilter(f *language.Filter) Option {
	return func(c *Collector) {
		c.filter = f
	}
}

// WithFetcher replaces the feed fetcher.
func WithFetcher(f PageFetcher) Option {
	return func(c *Collector) {
		c.fetcher = f
	}
}

// WithTransport routes feed requests through rt. It applies to the built-in
// Fetcher, including one passed with WithFetcher, whatever the option order;
// other PageFetcher implementations ignore it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Collector) {
		c.transport = rt
	}
}

// WithProgress registers fn to be called after each region finishes, in
// region order.
func WithProgress(fn func(models.RegionSummary)) Option {
	return func(c *Collector) {
		c.progress = fn
	}
}

// NewCollector builds a collector from cfg.
func NewCollector(cfg *config.Config, opts ...Option) (*Collector, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		fetcher:       fetcher,
		filterEnabled: cfg.LanguageFilter,
		maxPages:      cfg.MaxPages,
		courtesyDelay: cfg.CourtesyDelay,
		Metrics:       metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport != nil {
		if f, ok := c.fetcher.(*Fetcher); ok {
			f.WithTransport(c.transport)
		}
	}

	if c.filter == nil && cfg.TargetLanguage != "" {
		alphabet, err := language.Lookup(cfg.TargetLanguage)
		if err != nil {
			return nil, err
		}
		c.filter, err = language.NewFilter(alphabet, cfg.LanguageCacheSize)
		if err != nil {
			return nil, err
		}
	}
	if c.filterEnabled && c.filter == nil {
		return nil, fmt.Errorf("language filter enabled without a target language")
	}
	if c.filter != nil {
		metrics.RegisterLanguageMemo(c.filter.Stats)
	}
	return c, nil
}

// WithLanguageFilter returns a collector sharing the fetcher, filter, caches
// and metrics of c with the language filter switched on or off. Enabling has
// no effect when c has no target language.
func (c *Collector) WithLanguageFilter(enabled bool) *Collector {
	clone := *c
	clone.filterEnabled = enabled && c.filter != nil
	return &clone
}

// LanguageFilterEnabled reports whether reviews are filtered by language.
func (c *Collector) LanguageFilterEnabled() bool {
	return c.filterEnabled
}

// Collect gathers the reviews of appID from regions, in region order.
//
// Cancellation of ctx is observed before each page fetch (and during the
// courtesy delay); an in-flight request is allowed to finish. A cancelled
// call returns the reviews gathered so far with Cancelled set and a nil
// error. Fetch failures end only the affected region and malformed entries
// are skipped. The only errors returned are request validation errors.
func (c *Collector) Collect(ctx context.Context, appID string, regions []string) (*models.CollectResult, error) {
	appID = strings.TrimSpace(appID)
	if !config.ValidAppID(appID) {
		return nil, ErrInvalidAppID
	}
	regions, err := normalizeRegions(regions)
	if err != nil {
		return nil, err
	}

	result := &models.CollectResult{
		AppID:        appID,
		Reviews:      []models.Review{},
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
		Dropped:      make(map[string]int),
	}

	key := cache.Key(c.cacheNamespace(), appID, regions)
	if reviews, ok := c.cachedResult(ctx, key); ok {
		result.Reviews = reviews
		result.FromCache = true
		result.EndTime = time.Now()
		c.Metrics.IncCollection("cached")
		return result, nil
	}

	index := newDedupIndex()
	for _, region := range regions {
		summary := c.collectRegion(ctx, appID, region, index, result)
		result.Regions = append(result.Regions, summary)
		slog.Debug("region finished",
			slog.String("app_id", appID),
			slog.String("region", summary.Region),
			slog.Int("pages", summary.Pages),
			slog.Int("reviews", summary.Reviews),
			slog.String("stop_reason", summary.StopReason),
		)
		if c.progress != nil {
			c.progress(summary)
		}
		if summary.StopReason == models.StopCancelled {
			result.Cancelled = true
			break
		}
	}
	result.EndTime = time.Now()

	if result.Cancelled {
		c.Metrics.IncCollection("cancelled")
		return result, nil
	}
	c.Metrics.IncCollection("completed")
	c.storeResult(ctx, key, result.Reviews)
	return result, nil
}

func (c *Collector) collectRegion(ctx context.Context, appID, region string, index *dedupIndex, result *models.CollectResult) models.RegionSummary {
	summary := models.RegionSummary{Region: region, StopReason: models.StopEndOfData}

	for page := 1; page <= c.maxPages; page++ {
		if page > 1 {
			sleepCtx(ctx, c.courtesyDelay)
		}
		if ctx.Err() != nil {
			summary.StopReason = models.StopCancelled
			return summary
		}

		res, err := c.fetcher.FetchPage(ctx, region, appID, page)
		result.RequestCount += res.Requests
		if res.Requests > 1 {
			result.RetryCount += res.Requests - 1
		}
		for _, category := range res.Failures {
			result.ErrorCount++
			result.ErrorsByType[category]++
		}
		if err != nil {
			if ctx.Err() != nil {
				summary.StopReason = models.StopCancelled
				return summary
			}
			slog.Warn("region fetch failed, moving on",
				slog.String("region", region),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			summary.StopReason = models.StopFetchFailed
			return summary
		}

		summary.Pages++
		entries := res.Entries
		if len(entries) == 0 {
			return summary
		}
		if page == 1 {
			// The first entry of the first page describes the app itself.
			entries = entries[1:]
		}

		for _, raw := range entries {
			review, err := parser.ParseEntry(raw, region)
			if err != nil {
				c.drop(result, models.DropParseError)
				slog.Debug("skipping malformed entry",
					slog.String("region", region),
					slog.Int("page", page),
					slog.Any("error", err),
				)
				continue
			}
			if c.filterEnabled && !c.filter.IsTarget(review.Text) {
				c.drop(result, models.DropLanguage)
				continue
			}
			if !index.Admit(review.ID) {
				c.drop(result, models.DropDuplicate)
				continue
			}
			result.Reviews = append(result.Reviews, review)
			summary.Reviews++
			c.Metrics.IncReviews(region)
		}
	}
	return summary
}

func (c *Collector) drop(result *models.CollectResult, reason string) {
	result.Dropped[reason]++
	c.Metrics.IncDropped(reason)
}

func (c *Collector) cacheNamespace() string {
	if c.filterEnabled {
		return "lang-" + c.filter.Language()
	}
	return "all"
}

func (c *Collector) cachedResult(ctx context.Context, key string) ([]models.Review, bool) {
	if c.results == nil {
		return nil, false
	}
	reviews, ok, err := c.results.Get(ctx, key)
	if err != nil {
		c.Metrics.IncCache("result", "error")
		slog.Warn("result cache lookup failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if !ok {
		c.Metrics.IncCache("result", "miss")
		return nil, false
	}
	c.Metrics.IncCache("result", "hit")
	return reviews, true
}

func (c *Collector) storeResult(ctx context.Context, key string, reviews []models.Review) {
	if c.results == nil {
		return
	}
	if err := c.results.Set(ctx, key, reviews); err != nil {
		c.Metrics.IncCache("result", "error")
		slog.Warn("result cache store failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.Metrics.IncCache("result", "set")
}

func normalizeRegions(regions []string) ([]string, error) {
	out := make([]string, 0, len(regions))
	seen := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		region := strings.ToLower(strings.TrimSpace(r))
		if !config.ValidRegion(region) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRegion, r)
		}
		if _, ok := seen[region]; ok {
			continue
		}
		seen[region] = struct{}{}
		out = append(out, region)
	}
	if len(out) == 0 {
		return nil, ErrNoRegions
	}
	return out, nil
}
