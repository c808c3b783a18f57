package token

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"searchgate.io/internal/model"
)

type cacheKey struct {
	app  model.AppUUID
	uuid model.TokenUUID
}

// CachingLocator memoises lookups of a slower locator. Entries live for the token's own
// ttl (seconds) or the default ttl; misses are not cached.
type CachingLocator struct {
	next  Locator
	cache *ttlcache.Cache[cacheKey, model.Token]
}

// NewCachingLocator wraps next. Call Stop to release the expiry goroutine.
func NewCachingLocator(next Locator, defaultTTL time.Duration) *CachingLocator {
	if defaultTTL <= 0 {
		defaultTTL = model.DefaultTokenTTL * time.Second
	}
	cache := ttlcache.New[cacheKey, model.Token](
		ttlcache.WithTTL[cacheKey, model.Token](defaultTTL),
		ttlcache.WithDisableTouchOnHit[cacheKey, model.Token](),
	)
	go cache.Start()
	return &CachingLocator{next: next, cache: cache}
}

func (c *CachingLocator) IsValid() bool { return c != nil && c.next != nil && c.next.IsValid() }

func (c *CachingLocator) TokenByUUID(ctx context.Context, app model.AppUUID, uuid model.TokenUUID) (*model.Token, error) {
	key := cacheKey{app: app, uuid: uuid}
	if item := c.cache.Get(key); item != nil {
		t := item.Value()
		return &t, nil
	}
	t, err := c.next.TokenByUUID(ctx, app, uuid)
	if err != nil || t == nil {
		return t, err
	}
	ttl := ttlcache.DefaultTTL
	if t.TTL > 0 {
		ttl = time.Duration(t.TTL) * time.Second
	}
	c.cache.Set(key, *t, ttl)
	return t, nil
}

// Invalidate drops a cached token, used after the token is replaced or deleted.
func (c *CachingLocator) Invalidate(app model.AppUUID, uuid model.TokenUUID) {
	c.cache.Delete(cacheKey{app: app, uuid: uuid})
}

// InvalidateApp drops every cached token of an application.
func (c *CachingLocator) InvalidateApp(app model.AppUUID) {
	for _, key := range c.cache.Keys() {
		if key.app == app {
			c.cache.Delete(key)
		}
	}
}

// Stop halts the expiry loop.
func (c *CachingLocator) Stop() { c.cache.Stop() }
