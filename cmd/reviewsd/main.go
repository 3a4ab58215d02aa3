package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/api"
	"github.com/aluiziolira/go-scrape-reviews/cache"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "HTTP listen address (default from config)")
	requestTimeout := flag.Duration("request-timeout", 2*time.Minute, "Upper bound for one collection request")
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
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := cache.Open(ctx, cfg)
	if err != nil {
		slog.Error("opening result cache", slog.Any("error", err))
		os.Exit(1)
	}
	if closer, ok := results.(io.Closer); ok {
		defer closer.Close()
	}

	var opts []scraper.Option
	if results != nil {
		opts = append(opts, scraper.WithResultCache(results))
	}
	collector, err := scraper.NewCollector(cfg, opts...)
	if err != nil {
		slog.Error("initialising collector", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.New(collector, *requestTimeout, api.WithDefaultRegions(cfg.Regions)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("error", err))
		}
	}()

	slog.Info("API listening",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("result_cache", cfg.ResultCache),
		slog.Bool("language_filter", collector.LanguageFilterEnabled()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
