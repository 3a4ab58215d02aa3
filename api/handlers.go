package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/export"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/go-chi/chi/v5"
)

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		slog.Error("write problem response failed", slog.Any("error", err))
	}
}

// listReviews serves GET /v1/apps/{appID}/reviews.
//
// Query parameters: region (repeatable or comma separated), format (json or
// csv) and filter (bool, overrides the language filter).
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	query := r.URL.Query()

	regions := config.ParseRegions(strings.Join(query["region"], ","))
	if len(regions) == 0 {
		regions = s.defaultRegions
	}

	format := strings.ToLower(query.Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeProblem(w, http.StatusBadRequest, "Invalid format", "format must be json or csv")
		return
	}

	collector := s.collector
	if raw := query.Get("filter"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid filter", "filter must be a boolean")
			return
		}
		collector = collector.WithLanguageFilter(enabled)
	}

	result, err := collector.Collect(r.Context(), appID, regions)
	if err != nil {
		switch {
		case errors.Is(err, scraper.ErrInvalidAppID):
			writeProblem(w, http.StatusBadRequest, "Invalid app id", "app id must contain only digits")
		case errors.Is(err, scraper.ErrNoRegions), errors.Is(err, scraper.ErrInvalidRegion):
			writeProblem(w, http.StatusBadRequest, "Invalid region", err.Error())
		default:
			slog.Error("collection failed", slog.String("app_id", appID), slog.Any("error", err))
			writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		}
		return
	}

	w.Header().Set("X-Reviews-Cancelled", strconv.FormatBool(result.Cancelled))
	w.Header().Set("X-Reviews-From-Cache", strconv.FormatBool(result.FromCache))

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "reviews-"+result.AppID+".csv"))
		cw, err := export.NewCSVWriter(w, true)
		if err != nil {
			slog.Error("write csv header failed", slog.Any("error", err))
			return
		}
		if err := cw.Write(result.Reviews); err != nil {
			slog.Error("write csv body failed", slog.Any("error", err))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("write json response failed", slog.Any("error", err))
	}
}
