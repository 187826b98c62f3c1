package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

// NewClient dials REDIS_URL (redis:// or rediss://) and pings it once.
func NewClient(ctx context.Context, log *logger.Logger, url string) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: missing REDIS_URL", apierr.ErrConfiguration)
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REDIS_URL: %v", apierr.ErrConfiguration, err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apierr.Upstream("redis ping", err)
	}
	log.With("service", "Redis").Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}
