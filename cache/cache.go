// Package cache memoizes whole collection results keyed by app and regions.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ResultCache stores the reviews of a completed collection call.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]models.Review, bool, error)
	Set(ctx context.Context, key string, reviews []models.Review) error
}

// Key builds the cache key for an app and its ordered region list. Region
// order is part of the key. namespace separates collectors whose settings
// change the result (for example the language filter).
func Key(namespace, appID string, regions []string) string {
	return fmt.Sprintf("reviews:%s:%s:%s", namespace, appID, strings.Join(regions, ","))
}

// Memory is an in-process ResultCache bounded by entry count.
type Memory struct {
	entries *lru.Cache[string, []models.Review]
}

// NewMemory creates a memory cache holding at most size results.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive")
	}
	entries, err := lru.New[string, []models.Review](size)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Memory{entries: entries}, nil
}

// Get returns a copy of the cached reviews for key.
func (m *Memory) Get(_ context.Context, key string) ([]models.Review, bool, error) {
	reviews, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneReviews(reviews), true, nil
}

// Set stores a copy of reviews under key.
func (m *Memory) Set(_ context.Context, key string, reviews []models.Review) error {
	m.entries.Add(key, cloneReviews(reviews))
	return nil
}

// Len returns the number of cached results.
func (m *Memory) Len() int {
	return m.entries.Len()
}

func cloneReviews(reviews []models.Review) []models.Review {
	out := make([]models.Review, len(reviews))
	copy(out, reviews)
	return out
}
