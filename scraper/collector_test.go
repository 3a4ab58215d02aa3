package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testBaseURL = "http://feed.test"
	testAppID   = "123"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.CourtesyDelay = 0
	cfg.RequestsPerSecond = 0
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestCollector(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport, opts ...Option) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, append([]Option{WithTransport(transport)}, opts...)...)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c
}

func pageURL(region string, page int) string {
	return fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json", testBaseURL, region, page, testAppID)
}

func register(transport *httpmock.MockTransport, region string, page int, responder httpmock.Responder) {
	transport.RegisterResponder(http.MethodGet, pageURL(region, page), responder)
}

func calls(transport *httpmock.MockTransport, region string, page int) int {
	return transport.GetCallCountInfo()[http.MethodGet+" "+pageURL(region, page)]
}

func jsonResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "application/json")
	return httpmock.ResponderFromResponse(resp)
}

func metadataEntry() string {
	return `{"im:name": {"label": "Test App"}, "id": {"label": "https://apps.apple.com/app/id123"}, "title": {"label": "Test App - Vendor"}}`
}

func reviewEntry(id, text string) string {
	entry := map[string]any{
		"author":     map[string]any{"name": map[string]string{"label": "user-" + id}},
		"updated":    map[string]string{"label": "2024-05-01T10:00:00-07:00"},
		"im:rating":  map[string]string{"label": "5"},
		"im:version": map[string]string{"label": "1.2.3"},
		"id":         map[string]string{"label": id},
		"title":      map[string]string{"label": "title " + id},
		"content":    map[string]any{"label": text, "attributes": map[string]string{"type": "text"}},
	}
	b, err := json.Marshal(entry)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func feedPage(entries ...string) string {
	return `{"feed": {"author": {"name": {"label": "iTunes Store"}}, "entry": [` + strings.Join(entries, ",") + `]}}`
}

func emptyFeed() string {
	return `{"feed": {"author": {"name": {"label": "iTunes Store"}}}}`
}

func reviewIDs(reviews []models.Review) []string {
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	return ids
}

// scenarioTransport serves ru: [meta, R1, R2], [] and us: [meta, R3], [].
func scenarioTransport() *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	register(transport, "ru", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("R1", "Отличное приложение"), reviewEntry("R2", "Плохо лагает"))))
	register(transport, "ru", 2, jsonResponder(feedPage()))
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("R3", "Great app"))))
	register(transport, "us", 2, jsonResponder(emptyFeed()))
	return transport
}

func TestCollectScenario(t *testing.T) {
	tests := []struct {
		name   string
		filter bool
		want   []string
	}{
		{name: "language filter enabled", filter: true, want: []string{"R1", "R2"}},
		{name: "language filter disabled", filter: false, want: []string{"R1", "R2", "R3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.LanguageFilter = tt.filter
			cfg.ResultCache = "none"
			transport := scenarioTransport()
			c := newTestCollector(t, cfg, transport)

			result, err := c.Collect(context.Background(), testAppID, []string{"ru", "us"})
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("reviews=%v, want %v", got, tt.want)
			}
			if result.Cancelled || result.FromCache {
				t.Fatalf("unexpected flags cancelled=%v from_cache=%v", result.Cancelled, result.FromCache)
			}
			if result.RequestCount != 4 {
				t.Fatalf("requests=%d, want 4", result.RequestCount)
			}
			for _, r := range result.Reviews {
				if r.Rating != 5 || r.Version != "1.2.3" {
					t.Fatalf("unexpected review fields: %+v", r)
				}
			}
			if result.Reviews[0].Region != "ru" {
				t.Fatalf("region=%q, want ru", result.Reviews[0].Region)
			}
			if tt.filter && result.Dropped[models.DropLanguage] != 1 {
				t.Fatalf("language drops=%d, want 1", result.Dropped[models.DropLanguage])
			}
		})
	}
}

func TestCollectDeduplicatesAcrossPagesAndRegions(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	transport := httpmock.NewMockTransport()
	register(transport, "ru", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("A", "one"), reviewEntry("B", "two"))))
	register(transport, "ru", 2, jsonResponder(feedPage(reviewEntry("B", "two"), reviewEntry("C", "three"))))
	register(transport, "ru", 3, jsonResponder(feedPage()))
	register(transport, "kz", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("A", "one"), reviewEntry("D", "four"))))
	register(transport, "kz", 2, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"ru", "kz"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := []string{"A", "B", "C", "D"}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, want) {
		t.Fatalf("reviews=%v, want %v", got, want)
	}
	seen := make(map[string]bool)
	for _, r := range result.Reviews {
		if seen[r.ID] {
			t.Fatalf("duplicate review id %q", r.ID)
		}
		seen[r.ID] = true
	}
	if result.Dropped[models.DropDuplicate] != 2 {
		t.Fatalf("duplicate drops=%d, want 2", result.Dropped[models.DropDuplicate])
	}
	if got := testutil.ToFloat64(c.Metrics.DroppedTotal.WithLabelValues(models.DropDuplicate)); got != 2 {
		t.Fatalf("duplicate metric=%v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Metrics.ReviewsTotal.WithLabelValues("kz")); got != 1 {
		t.Fatalf("kz reviews metric=%v, want 1", got)
	}
}

func TestCollectResultCacheSkipsNetwork(t *testing.T) {
	cfg := testConfig()
	transport := scenarioTransport()
	rc, err := cache.NewMemory(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c := newTestCollector(t, cfg, transport, WithResultCache(rc))

	first, err := c.Collect(context.Background(), testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	fetches := transport.GetTotalCallCount()

	second, err := c.Collect(context.Background(), testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if got := transport.GetTotalCallCount(); got != fetches {
		t.Fatalf("second call fetched %d pages, want 0", got-fetches)
	}
	if !second.FromCache {
		t.Fatalf("second result should come from cache")
	}
	if !reflect.DeepEqual(first.Reviews, second.Reviews) {
		t.Fatalf("cached reviews differ: %v vs %v", first.Reviews, second.Reviews)
	}

	// Region order is part of the key.
	if _, err := c.Collect(context.Background(), testAppID, []string{"us", "ru"}); err != nil {
		t.Fatalf("reordered collect: %v", err)
	}
	if got := transport.GetTotalCallCount(); got == fetches {
		t.Fatalf("reordered regions must not hit the cache")
	}
	if got := testutil.ToFloat64(c.Metrics.CacheEventsTotal.WithLabelValues("result", "hit")); got != 1 {
		t.Fatalf("cache hits=%v, want 1", got)
	}
}

func TestCollectCacheSeparatesFilterModes(t *testing.T) {
	cfg := testConfig()
	transport := scenarioTransport()
	rc, err := cache.NewMemory(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	filtered := newTestCollector(t, cfg, transport, WithResultCache(rc))
	unfiltered := filtered.WithLanguageFilter(false)

	if !filtered.LanguageFilterEnabled() || unfiltered.LanguageFilterEnabled() {
		t.Fatalf("unexpected filter modes")
	}

	a, err := filtered.Collect(context.Background(), testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("filtered collect: %v", err)
	}
	b, err := unfiltered.Collect(context.Background(), testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("unfiltered collect: %v", err)
	}
	if b.FromCache {
		t.Fatalf("unfiltered call must not reuse the filtered result")
	}
	if len(a.Reviews) != 2 || len(b.Reviews) != 3 {
		t.Fatalf("reviews filtered=%d unfiltered=%d, want 2 and 3", len(a.Reviews), len(b.Reviews))
	}
}

func TestCollectStopsRegionOnEmptyPage(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("1", "a"))))
	register(transport, "us", 2, jsonResponder(feedPage()))
	register(transport, "us", 3, jsonResponder(feedPage(reviewEntry("3", "c"))))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if calls(transport, "us", 3) != 0 {
		t.Fatalf("page 3 must not be fetched after an empty page 2")
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("reviews=%v, want [1]", got)
	}
	if result.Regions[0].StopReason != models.StopEndOfData || result.Regions[0].Pages != 2 {
		t.Fatalf("unexpected region summary: %+v", result.Regions[0])
	}
}

func TestCollectSkipsMetadataOnFirstPageOnly(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	transport := httpmock.NewMockTransport()
	// Page 1 holds only the metadata entry; traversal still continues.
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry())))
	register(transport, "us", 2, jsonResponder(feedPage(reviewEntry("1", "a"), reviewEntry("2", "b"))))
	register(transport, "us", 3, jsonResponder(feedPage()))
	register(transport, "de", 1, jsonResponder(feedPage(reviewEntry("X", "first"), reviewEntry("Y", "second"), reviewEntry("Z", "third"))))
	register(transport, "de", 2, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us", "de"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []string{"1", "2", "Y", "Z"}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, want) {
		t.Fatalf("reviews=%v, want %v", got, want)
	}
}

func TestCollectSingleEntryObjectPage(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("1", "a"))))
	register(transport, "us", 2, jsonResponder(`{"feed": {"entry": `+reviewEntry("2", "b")+`}}`))
	register(transport, "us", 3, jsonResponder(emptyFeed()))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("reviews=%v, want [1 2]", got)
	}
}

func TestCollectCancellationKeepsEarlierRegions(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	rc, err := cache.NewMemory(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := httpmock.NewMockTransport()
	register(transport, "ru", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("R1", "a"))))
	register(transport, "ru", 2, jsonResponder(feedPage()))
	usPage1 := feedPage(metadataEntry(), reviewEntry("U1", "b"))
	register(transport, "us", 1, func(req *http.Request) (*http.Response, error) {
		// Cancel while this request is in flight; it must still complete.
		cancel()
		return httpmock.NewStringResponse(http.StatusOK, usPage1), nil
	})
	register(transport, "us", 2, jsonResponder(feedPage(reviewEntry("U2", "c"))))
	register(transport, "de", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("D1", "d"))))

	var progress []string
	c := newTestCollector(t, cfg, transport, WithResultCache(rc), WithProgress(func(s models.RegionSummary) {
		progress = append(progress, s.Region+":"+s.StopReason)
	}))

	result, err := c.Collect(ctx, testAppID, []string{"ru", "us", "de"})
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("result should be marked cancelled")
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"R1", "U1"}) {
		t.Fatalf("reviews=%v, want [R1 U1]", got)
	}
	if calls(transport, "us", 2) != 0 || calls(transport, "de", 1) != 0 {
		t.Fatalf("no fetch may happen after cancellation")
	}
	wantProgress := []string{"ru:" + models.StopEndOfData, "us:" + models.StopCancelled}
	if !reflect.DeepEqual(progress, wantProgress) {
		t.Fatalf("progress=%v, want %v", progress, wantProgress)
	}
	if rc.Len() != 0 {
		t.Fatalf("partial results must not be cached")
	}
}

func TestCollectDeadlineWhilePacedIsCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	cfg.RequestsPerSecond = 1
	rc, err := cache.NewMemory(8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	transport := httpmock.NewMockTransport()
	register(transport, "ru", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("R1", "a"))))
	register(transport, "ru", 2, jsonResponder(feedPage()))
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("U1", "b"))))
	register(transport, "us", 2, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport, WithResultCache(rc))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	result, err := c.Collect(ctx, testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("deadline during pacing must mark the result cancelled: %+v", result.Regions)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"R1"}) {
		t.Fatalf("reviews=%v, want [R1]", got)
	}
	if len(result.Regions) != 1 || result.Regions[0].StopReason != models.StopCancelled {
		t.Fatalf("regions=%+v, want ru cancelled only", result.Regions)
	}
	if result.ErrorCount != 0 {
		t.Fatalf("cancellation counted as %d errors", result.ErrorCount)
	}
	if rc.Len() != 0 {
		t.Fatalf("truncated result must not be cached")
	}
	if calls(transport, "us", 1) != 0 {
		t.Fatalf("no region may start after the deadline")
	}
}

func TestCollectTransportAppliesRegardlessOfOptionOrder(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	f, err := NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("1", "a"))))
	register(transport, "us", 2, jsonResponder(feedPage()))

	c, err := NewCollector(cfg, WithTransport(transport), WithFetcher(f))
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("reviews=%v, want [1]", got)
	}
	if transport.GetTotalCallCount() != 2 {
		t.Fatalf("requests through transport=%d, want 2", transport.GetTotalCallCount())
	}
}

func TestCollectCancelledBeforeStart(t *testing.T) {
	cfg := testConfig()
	transport := scenarioTransport()
	c := newTestCollector(t, cfg, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.Collect(ctx, testAppID, []string{"ru", "us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !result.Cancelled || len(result.Reviews) != 0 {
		t.Fatalf("expected empty cancelled result, got %+v", result)
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("no fetch expected, got %d", transport.GetTotalCallCount())
	}
}

func TestCollectRegionFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		category  string
	}{
		{name: "server error", responder: httpmock.NewStringResponder(http.StatusInternalServerError, ""), category: "server_error"},
		{name: "not found", responder: httpmock.NewStringResponder(http.StatusNotFound, ""), category: "not_found"},
		{name: "transport error", responder: httpmock.NewErrorResponder(errors.New("boom")), category: "other"},
		{name: "not json", responder: httpmock.NewStringResponder(http.StatusOK, "<html></html>"), category: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.LanguageFilter = false
			transport := httpmock.NewMockTransport()
			register(transport, "ru", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("R1", "a"))))
			register(transport, "ru", 2, tt.responder)
			register(transport, "ru", 3, jsonResponder(feedPage(reviewEntry("R3", "never"))))
			register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("U1", "b"))))
			register(transport, "us", 2, jsonResponder(feedPage(reviewEntry("U2", "c"))))
			register(transport, "us", 3, jsonResponder(feedPage()))
			c := newTestCollector(t, cfg, transport)

			result, err := c.Collect(context.Background(), testAppID, []string{"ru", "us"})
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"R1", "U1", "U2"}) {
				t.Fatalf("reviews=%v, want [R1 U1 U2]", got)
			}
			if calls(transport, "ru", 3) != 0 {
				t.Fatalf("failed region must stop paginating")
			}
			if result.Regions[0].StopReason != models.StopFetchFailed {
				t.Fatalf("ru stop reason=%q", result.Regions[0].StopReason)
			}
			if result.Regions[1].StopReason != models.StopEndOfData {
				t.Fatalf("us stop reason=%q", result.Regions[1].StopReason)
			}
			if result.ErrorCount != 1 || result.ErrorsByType[tt.category] != 1 {
				t.Fatalf("errors=%d by type=%v, want one %q", result.ErrorCount, result.ErrorsByType, tt.category)
			}
		})
	}
}

func TestCollectRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	cfg.MaxRetries = 2

	transport := httpmock.NewMockTransport()
	attempts := 0
	body := feedPage(metadataEntry(), reviewEntry("1", "a"))
	register(transport, "us", 1, func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, body), nil
	})
	register(transport, "us", 2, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("reviews=%v, want [1]", got)
	}
	if result.RetryCount != 1 || result.RequestCount != 3 {
		t.Fatalf("retries=%d requests=%d, want 1 and 3", result.RetryCount, result.RequestCount)
	}
	if result.ErrorsByType["server_error"] != 1 {
		t.Fatalf("errors by type=%v", result.ErrorsByType)
	}
	if got := testutil.ToFloat64(c.Metrics.RetriesTotal); got != 1 {
		t.Fatalf("retries metric=%v, want 1", got)
	}
}

func TestCollectDoesNotRetryPermanentFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, httpmock.NewStringResponder(http.StatusForbidden, ""))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if calls(transport, "us", 1) != 1 {
		t.Fatalf("forbidden page fetched %d times, want 1", calls(transport, "us", 1))
	}
	if result.ErrorsByType["forbidden"] != 1 {
		t.Fatalf("errors by type=%v", result.ErrorsByType)
	}
}

func TestCollectSkipsMalformedEntries(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	transport := httpmock.NewMockTransport()
	broken := `{"id": {"label": "broken"}, "content": {"label": "no author"}}`
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), broken, reviewEntry("1", "a"), `"not an object"`, reviewEntry("2", "b"))))
	register(transport, "us", 2, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("reviews=%v, want [1 2]", got)
	}
	if result.Dropped[models.DropParseError] != 2 {
		t.Fatalf("parse drops=%d, want 2", result.Dropped[models.DropParseError])
	}
}

func TestCollectRespectsMaxPages(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	cfg.MaxPages = 2
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("1", "a"))))
	register(transport, "us", 2, jsonResponder(feedPage(reviewEntry("2", "b"))))
	register(transport, "us", 3, jsonResponder(feedPage(reviewEntry("3", "c"))))
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), testAppID, []string{"us"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if calls(transport, "us", 3) != 0 {
		t.Fatalf("page beyond max pages was fetched")
	}
	if len(result.Reviews) != 2 || result.Regions[0].StopReason != models.StopEndOfData {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCollectCourtesyDelay(t *testing.T) {
	cfg := testConfig()
	cfg.LanguageFilter = false
	cfg.CourtesyDelay = 25 * time.Millisecond
	transport := httpmock.NewMockTransport()
	register(transport, "us", 1, jsonResponder(feedPage(metadataEntry(), reviewEntry("1", "a"))))
	register(transport, "us", 2, jsonResponder(feedPage(reviewEntry("2", "b"))))
	register(transport, "us", 3, jsonResponder(feedPage()))
	c := newTestCollector(t, cfg, transport)

	start := time.Now()
	if _, err := c.Collect(context.Background(), testAppID, []string{"us"}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*cfg.CourtesyDelay {
		t.Fatalf("elapsed=%v, want at least %v between three page fetches", elapsed, 2*cfg.CourtesyDelay)
	}
}

func TestCollectValidatesRequest(t *testing.T) {
	tests := []struct {
		name    string
		appID   string
		regions []string
		want    error
	}{
		{name: "letters in app id", appID: "12a", regions: []string{"ru"}, want: ErrInvalidAppID},
		{name: "empty app id", appID: "", regions: []string{"ru"}, want: ErrInvalidAppID},
		{name: "no regions", appID: testAppID, regions: nil, want: ErrNoRegions},
		{name: "bad region", appID: testAppID, regions: []string{"ru", "usa"}, want: ErrInvalidRegion},
	}

	c := newTestCollector(t, testConfig(), httpmock.NewMockTransport())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Collect(context.Background(), tt.appID, tt.regions)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestCollectNormalizesRegions(t *testing.T) {
	cfg := testConfig()
	transport := scenarioTransport()
	c := newTestCollector(t, cfg, transport)

	result, err := c.Collect(context.Background(), " "+testAppID+" ", []string{"RU", " us", "ru"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(result.Regions) != 2 || calls(transport, "ru", 1) != 1 {
		t.Fatalf("repeated regions must be visited once: %+v", result.Regions)
	}
}

type stubFetcher struct {
	pages map[string][]json.RawMessage
	calls []string
}

func (s *stubFetcher) FetchPage(_ context.Context, region, _ string, page int) (PageResult, error) {
	key := fmt.Sprintf("%s/%d", region, page)
	s.calls = append(s.calls, key)
	return PageResult{Entries: s.pages[key], Requests: 1}, nil
}

func TestCollectWithCustomFetcher(t *testing.T) {
	stub := &stubFetcher{pages: map[string][]json.RawMessage{
		"ru/1": {json.RawMessage(metadataEntry()), json.RawMessage(reviewEntry("1", "Привет"))},
	}}
	c, err := NewCollector(testConfig(), WithFetcher(stub))
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	result, err := c.Collect(context.Background(), testAppID, []string{"ru"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !reflect.DeepEqual(stub.calls, []string{"ru/1", "ru/2"}) {
		t.Fatalf("calls=%v", stub.calls)
	}
	if got := reviewIDs(result.Reviews); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("reviews=%v", got)
	}
}
