package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// PageResult is the outcome of fetching one feed page. Requests and
// Failures are filled in even when the fetch fails.
type PageResult struct {
	Entries  []json.RawMessage
	Requests int
	Failures []string
}

// PageFetcher retrieves the raw entries of one region page.
type PageFetcher interface {
	FetchPage(ctx context.Context, region, appID string, page int) (PageResult, error)
}

// Fetcher retrieves customer review feed pages through a colly collector.
type Fetcher struct {
	baseURL   string
	collector *colly.Collector
	limiter   *rate.Limiter
	metrics   *Metrics

	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
}

// NewFetcher builds a fetcher configured from cfg. metrics may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host, parsed.Hostname()),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	f := &Fetcher{
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		collector:       collector,
		limiter:         rate.NewLimiter(limit, 1),
		metrics:         metrics,
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffMax: cfg.RetryBackoffMax,
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport replaces the HTTP transport used for feed requests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// PageURL returns the feed URL for a region page, sorted by most recent.
func (f *Fetcher) PageURL(region, appID string, page int) string {
	return fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json", f.baseURL, region, page, appID)
}

// FetchPage issues the request for one page. Transient failures are retried
// up to the configured limit with capped exponential backoff; any other
// failure is returned immediately. An empty page is not an error.
func (f *Fetcher) FetchPage(ctx context.Context, region, appID string, page int) (PageResult, error) {
	var result PageResult
	pageURL := f.PageURL(region, appID, page)

	for attempt := 0; ; attempt++ {
		if err := f.pace(ctx); err != nil {
			return result, err
		}

		body, status, err := f.get(pageURL)
		result.Requests++
		if err == nil {
			entries, derr := parser.DecodeFeed(body)
			if derr == nil {
				result.Entries = entries
				return result, nil
			}
			err = ErrDecode{Err: derr}
		} else {
			err = classifyError(err, status)
		}

		category := errorTypeLabel(err)
		result.Failures = append(result.Failures, category)
		f.metrics.IncError(category)
		slog.Debug("feed request failed",
			slog.String("url", pageURL),
			slog.String("category", category),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)

		if attempt >= f.maxRetries || !retryable(err) {
			return result, err
		}
		f.metrics.IncRetries()
		if !sleepCtx(ctx, f.backoff(attempt+1)) {
			return result, err
		}
	}
}

// pace waits for the limiter's next slot. A slot due after the ctx deadline
// is waited for until ctx expires, so callers always observe ctx.Err().
func (f *Fetcher) pace(ctx context.Context) error {
	r := f.limiter.Reserve()
	if !sleepCtx(ctx, r.Delay()) {
		r.Cancel()
		return ctx.Err()
	}
	return nil
}

func (f *Fetcher) get(pageURL string) ([]byte, int, error) {
	rctx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")

	err := f.collector.Request(http.MethodGet, pageURL, nil, rctx, hdr)
	status, _ := rctx.GetAny("status").(int)
	if err != nil {
		return nil, status, err
	}
	body, _ := rctx.GetAny("body").([]byte)
	return body, status, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		f.metrics.IncRequest("started")
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		f.metrics.IncRequest("succeeded")
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		f.metrics.IncRequest("failed")
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.retryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	if max := f.retryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServerError{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
