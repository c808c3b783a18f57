package token

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"searchgate.io/internal/model"
)

// CounterStore holds request-limit counters. Increment must be atomic and apply the expiry
// (when > 0) in the same operation.
type CounterStore interface {
	Count(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, expire time.Duration) (int64, error)
}

var limitPattern = regexp.MustCompile(`(\d+)(K|MM|M)?`)

// Limit is a parsed requests_limit entry.
type Limit struct {
	Hits int64
	// TimeKey buckets the counter; empty for unit-less limits.
	TimeKey string
	// ExpireSeconds is the bucket lifetime; values <= 0 mean no expiry.
	ExpireSeconds int
}

// HitsAndTimePosition parses "<count><K|M|MM>?/<s|i|h|d|m|y>?" relative to now.
// ok is false when the entry has no leading count.
func HitsAndTimePosition(entry string, now time.Time) (Limit, bool) {
	number, unit, _ := strings.Cut(entry, "/")
	m := limitPattern.FindStringSubmatch(number)
	if m == nil {
		return Limit{}, false
	}
	hits, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Limit{}, false
	}
	switch m[2] {
	case "K":
		hits *= 1_000
	case "M":
		hits *= 1_000_000
	case "MM":
		hits *= 1_000_000_000
	}

	timeKey := ""
	expire := int64(-1)
	loc := now.Location()
	switch unit {
	case "s":
		timeKey = now.Format("2006-01-02T15:04:05")
		expire = 1
	case "i":
		timeKey = now.Format("2006-01-02T15:04")
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, loc).Add(time.Minute)
		expire = next.Unix() - now.Unix()
	case "h":
		timeKey = now.Format("2006-01-02T15")
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc).Add(time.Hour)
		expire = next.Unix() - now.Unix()
	case "d":
		timeKey = now.Format("2006-01-02")
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc)
		expire = next.Unix() - now.Unix()
	case "m":
		timeKey = now.Format("2006-01")
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
		expire = next.Unix() - now.Unix()
	case "y":
		timeKey = now.Format("2006")
		next := time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
		expire = next.Unix() - now.Unix()
	}
	return Limit{Hits: hits, TimeKey: timeKey, ExpireSeconds: int(expire) + 1}, true
}

// CounterKey returns the storage key of a token's bucket.
func CounterKey(uuid model.TokenUUID, timeKey string) string {
	return fmt.Sprintf("token_requests_limit_%s_%s", uuid.ComposeUUID(), timeKey)
}

// RequestsLimit enforces the requests_limit metadata. Validation counts the request as a
// side effect.
type RequestsLimit struct {
	Counters CounterStore
	Now      func() time.Time
}

func (RequestsLimit) Name() string { return "requests_limit" }

func (v RequestsLimit) IsTokenValid(ctx context.Context, t model.Token, _ Request) (bool, error) {
	entries := t.MetadataStrings("requests_limit")
	if len(entries) == 0 {
		return true, nil
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now()
	}
	for _, entry := range entries {
		limit, ok := HitsAndTimePosition(entry, now)
		if !ok {
			continue
		}
		key := CounterKey(t.UUID, limit.TimeKey)
		count, err := v.Counters.Count(ctx, key)
		if err != nil {
			return false, model.Transport("requests limit count", err)
		}
		if count >= limit.Hits {
			return false, nil
		}
		var expire time.Duration
		if limit.ExpireSeconds > 0 {
			expire = time.Duration(limit.ExpireSeconds) * time.Second
		}
		if _, err := v.Counters.Increment(ctx, key, expire); err != nil {
			return false, model.Transport("requests limit increment", err)
		}
	}
	return true, nil
}

// MemoryCounters is a process-local CounterStore.
type MemoryCounters struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, int64]
}

// NewMemoryCounters returns a started in-memory counter store.
func NewMemoryCounters() *MemoryCounters {
	cache := ttlcache.New[string, int64](
		ttlcache.WithDisableTouchOnHit[string, int64](),
	)
	go cache.Start()
	return &MemoryCounters{cache: cache}
}

func (m *MemoryCounters) Count(_ context.Context, key string) (int64, error) {
	item := m.cache.Get(key)
	if item == nil {
		return 0, nil
	}
	return item.Value(), nil
}

// Increment keeps the expiry of an existing bucket and sets it on a new one.
func (m *MemoryCounters) Increment(_ context.Context, key string, expire time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl := ttlcache.NoTTL
	if expire > 0 {
		ttl = expire
	}
	item := m.cache.Get(key)
	if item == nil {
		m.cache.Set(key, 1, ttl)
		return 1, nil
	}
	next := item.Value() + 1
	if expire > 0 {
		ttl = time.Until(item.ExpiresAt())
		if ttl <= 0 {
			m.cache.Set(key, 1, expire)
			return 1, nil
		}
	}
	m.cache.Set(key, next, ttl)
	return next, nil
}

// Stop halts the expiry loop.
func (m *MemoryCounters) Stop() { m.cache.Stop() }
