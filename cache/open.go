package cache

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

// Open builds the result cache selected by cfg.ResultCache. It returns a nil
// cache for "none". A Redis cache is pinged before it is returned; callers
// should Close it when done.
func Open(ctx context.Context, cfg *config.Config) (ResultCache, error) {
	switch cfg.ResultCache {
	case "none", "":
		return nil, nil
	case "memory":
		m, err := NewMemory(cfg.ResultCacheSize)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "redis":
		r := NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ResultCacheTTL)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown result cache %q", cfg.ResultCache)
	}
}
