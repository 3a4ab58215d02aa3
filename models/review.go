// Package models defines data structures for the review collector.
package models

import "time"

// Review represents one user review taken from a storefront feed.
type Review struct {
	ID      string `csv:"review_id" json:"review_id"`
	Author  string `csv:"author" json:"author"`
	Rating  int    `csv:"rating" json:"rating"`
	Title   string `csv:"title" json:"title"`
	Text    string `csv:"review_text" json:"review_text"`
	Date    string `csv:"review_date" json:"review_date"`
	Version string `csv:"version" json:"version"`
	Region  string `csv:"region" json:"region"`
}

// Time parses Date. The feed publishes RFC 3339 timestamps with an offset.
func (r Review) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Date)
}

// Stop reasons recorded for a region.
const (
	StopEndOfData   = "end_of_data"
	StopFetchFailed = "fetch_failed"
	StopCancelled   = "cancelled"
)

// Drop reasons for entries that did not become reviews.
const (
	DropParseError = "parse_error"
	DropLanguage   = "language"
	DropDuplicate  = "duplicate"
)

// RegionSummary describes how traversal of a single region ended.
type RegionSummary struct {
	Region     string `json:"region"`
	Pages      int    `json:"pages"`
	Reviews    int    `json:"reviews"`
	StopReason string `json:"stop_reason"`
}

// CollectResult holds the overall result of a collection call.
type CollectResult struct {
	AppID        string          `json:"app_id"`
	Reviews      []Review        `json:"reviews"`
	Regions      []RegionSummary `json:"regions,omitempty"`
	Cancelled    bool            `json:"cancelled"`
	FromCache    bool            `json:"from_cache"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	RequestCount int             `json:"request_count"`
	ErrorCount   int             `json:"error_count"`
	RetryCount   int             `json:"retry_count"`
	ErrorsByType map[string]int  `json:"errors_by_type,omitempty"`
	Dropped      map[string]int  `json:"dropped,omitempty"`
}
