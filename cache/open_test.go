package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aluiziolira/go-scrape-reviews/config"
)

func TestOpen(t *testing.T) {
	srv := miniredis.RunT(t)

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantNil bool
		wantErr bool
	}{
		{name: "none", mutate: func(c *config.Config) { c.ResultCache = "none" }, wantNil: true},
		{name: "memory", mutate: func(c *config.Config) { c.ResultCache = "memory" }},
		{name: "memory zero size", mutate: func(c *config.Config) { c.ResultCache = "memory"; c.ResultCacheSize = 0 }, wantErr: true},
		{name: "redis", mutate: func(c *config.Config) { c.ResultCache = "redis"; c.RedisAddr = srv.Addr() }},
		{name: "unknown", mutate: func(c *config.Config) { c.ResultCache = "disk" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			rc, err := Open(context.Background(), cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if (rc == nil) != tt.wantNil {
				t.Fatalf("cache nil=%v, want %v", rc == nil, tt.wantNil)
			}
			if r, ok := rc.(*Redis); ok {
				r.Close()
			}
		})
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := config.DefaultConfig()
	cfg.ResultCache = "redis"
	cfg.RedisAddr = addr

	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected connection error")
	}
}
