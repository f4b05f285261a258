package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meritrack/backend/internal/models"
	"github.com/meritrack/backend/pkg/cache"
)

// Page is one page of the event listing.
type Page struct {
	Events []models.EventView `json:"events"`
	Total  int                `json:"total"`
}

type cachedPage struct {
	Page     Page      `json:"page"`
	CachedAt time.Time `json:"cachedAt"`
}

// ListCache serves event listings from Redis. Entries are fresh for ttl and
// kept for staleTTL so a copy can be served while the database is failing.
type ListCache struct {
	cache    *cache.Cache
	ttl      time.Duration
	staleTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewListCache creates the event list cache.
func NewListCache(c *cache.Cache, ttl, staleTTL time.Duration, logger *zap.Logger) *ListCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleTTL < ttl {
		staleTTL = ttl
	}
	return &ListCache{cache: c, ttl: ttl, staleTTL: staleTTL, logger: logger, now: time.Now}
}

// Key builds the cache key for a listing query.
func Key(f ListFilter) string {
	return fmt.Sprintf("list:%d:%d:%s:%s:%s", f.Page, f.Limit, f.Category, f.Status, f.Search)
}

// Fetch returns the page for key, calling load when the cached copy is missing,
// expired or refresh is set. A stale copy is returned if load fails.
// fromCache reports whether the result came from Redis.
func (l *ListCache) Fetch(ctx context.Context, key string, refresh bool, load func(ctx context.Context) (*Page, error)) (page *Page, fromCache bool, err error) {
	var entry cachedPage
	cached := false
	if err := l.cache.Get(ctx, key, &entry); err == nil {
		cached = true
	} else if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrUnavailable) {
		l.logger.Warn("event cache read failed", zap.Error(err))
	}

	if cached && !refresh && l.now().Sub(entry.CachedAt) < l.ttl {
		return &entry.Page, true, nil
	}

	fresh, err := load(ctx)
	if err != nil {
		if cached {
			l.logger.Warn("serving stale event listing", zap.Error(err), zap.Time("cached_at", entry.CachedAt))
			return &entry.Page, true, nil
		}
		return nil, false, err
	}

	if err := l.cache.Set(ctx, key, cachedPage{Page: *fresh, CachedAt: l.now()}, l.staleTTL); err != nil {
		l.logger.Warn("event cache write failed", zap.Error(err))
	}
	return fresh, false, nil
}

// Invalidate drops every cached listing.
func (l *ListCache) Invalidate(ctx context.Context) {
	if err := l.cache.Flush(ctx); err != nil {
		l.logger.Warn("event cache invalidation failed", zap.Error(err))
	}
}
