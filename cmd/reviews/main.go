package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/export"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	appID := flag.String("app", "", "App Store application id")
	regions := flag.String("regions", "", "Comma separated storefront codes, in traversal order")
	filter := flag.String("filter", "", "Language filter: true or false (default from config)")
	language := flag.String("language", "", "Target language code (ru, uk)")
	maxPages := flag.Int("pages", 0, "Maximum feed pages per region")
	delay := flag.Duration("delay", -1, "Courtesy delay between pages of a region")
	maxRetries := flag.Int("max-retries", -1, "Maximum retry attempts per page")
	resultCache := flag.String("cache", "", "Result cache: memory, redis, or none")
	outputFile := flag.String("output", "", "Output file path")
	outputFormat := flag.String("format", "", "Output format: csv, json, or dual")
	baseURL := flag.String("base-url", "", "Feed base URL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, *appID, *regions, *filter, *language, *maxPages, *delay, *maxRetries, *resultCache, *outputFile, *outputFormat, *baseURL, *metricsAddr, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.AppID == "" {
		slog.Error("invalid configuration", slog.String("error", "app id is required (-app or REVIEWS_APP_ID)"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the in-flight request")
	}()

	results, err := cache.Open(ctx, cfg)
	if err != nil {
		slog.Error("opening result cache", slog.Any("error", err))
		os.Exit(1)
	}
	if closer, ok := results.(io.Closer); ok {
		defer closer.Close()
	}

	opts := []scraper.Option{
		scraper.WithProgress(func(s models.RegionSummary) {
			slog.Info("region done",
				slog.String("region", s.Region),
				slog.Int("pages", s.Pages),
				slog.Int("reviews", s.Reviews),
				slog.String("stop_reason", s.StopReason),
			)
		}),
	}
	if results != nil {
		opts = append(opts, scraper.WithResultCache(results))
	}
	collector, err := scraper.NewCollector(cfg, opts...)
	if err != nil {
		slog.Error("initialising collector", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(collector.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting collection",
		slog.String("app_id", cfg.AppID),
		slog.Any("regions", cfg.Regions),
		slog.Bool("language_filter", collector.LanguageFilterEnabled()),
		slog.Int("max_pages", cfg.MaxPages),
	)

	result, err := collector.Collect(ctx, cfg.AppID, cfg.Regions)
	if err != nil {
		slog.Error("collection failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writeOutput(cfg, result.Reviews); err != nil {
		slog.Error("writing output", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, result, cfg.OutputFile)
}

func applyFlags(cfg *config.Config, appID, regions, filter, language string, maxPages int, delay time.Duration, maxRetries int, resultCache, outputFile, outputFormat, baseURL, metricsAddr string, verbose bool) error {
	if appID != "" {
		cfg.AppID = strings.TrimSpace(appID)
	}
	if regions != "" {
		cfg.Regions = config.ParseRegions(regions)
	}
	if filter != "" {
		switch strings.ToLower(filter) {
		case "true", "1", "yes":
			cfg.LanguageFilter = true
		case "false", "0", "no":
			cfg.LanguageFilter = false
		default:
			return fmt.Errorf("filter must be true or false, got %q", filter)
		}
	}
	if language != "" {
		cfg.TargetLanguage = strings.ToLower(language)
	}
	if maxPages > 0 {
		cfg.MaxPages = maxPages
	}
	if delay >= 0 {
		cfg.CourtesyDelay = delay
	}
	if maxRetries >= 0 {
		cfg.MaxRetries = maxRetries
	}
	if resultCache != "" {
		cfg.ResultCache = strings.ToLower(resultCache)
	}
	if outputFile != "" {
		cfg.OutputFile = outputFile
	}
	if outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if verbose {
		cfg.Verbose = true
	}
	return nil
}

func writeOutput(cfg *config.Config, reviews []models.Review) (err error) {
	writer, err := export.Create(cfg.OutputFormat, cfg.OutputFile, cfg.CSVBOM)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close writer: %w", cerr)
		}
	}()

	if err := export.WriteBatches(writer, reviews, 256); err != nil {
		return err
	}
	if len(reviews) == 0 {
		slog.Warn("no reviews collected", slog.String("output", cfg.OutputFile))
		return nil
	}
	return writer.Validate()
}

func printSummary(w io.Writer, result *models.CollectResult, outputFile string) {
	separator := "--------------------------------------------------"
	summary := export.Summarize(result.Reviews)

	fmt.Fprintln(w, "\n"+separator)
	switch {
	case result.Cancelled:
		fmt.Fprintln(w, "Collection cancelled (partial result)")
	case result.FromCache:
		fmt.Fprintln(w, "Collection complete (from cache)")
	default:
		fmt.Fprintln(w, "Collection complete")
	}

	fmt.Fprintf(w, "  App:           %s\n", result.AppID)
	fmt.Fprintf(w, "  Reviews:       %d\n", summary.Total)
	fmt.Fprintf(w, "  Avg rating:    %.2f\n", summary.AverageRating)
	for _, r := range summary.ByRegion {
		fmt.Fprintf(w, "    %-4s %6d reviews, avg %.2f\n", r.Region, r.Count, r.AverageRating)
	}
	for _, rating := range summary.Ratings() {
		fmt.Fprintf(w, "    %d stars: %d\n", rating, summary.Distribution[rating])
	}
	for _, region := range result.Regions {
		fmt.Fprintf(w, "  Region %s:     %d pages, stop=%s\n", region.Region, region.Pages, region.StopReason)
	}
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.Dropped) > 0 {
		fmt.Fprintf(w, "  Dropped:       %v\n", result.Dropped)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
