package handlers

import (
	"sync"
	"time"
)

// bucket is a simple fixed-window request counter keyed by identity or
// IP (§5 "rate limiting is per-identity on the write path and per-IP
// on read paths"). No suitable rate-limiting library ships in the
// example corpus, so this is a minimal stdlib implementation.
type bucket struct {
	mu       sync.Mutex
	tokens   map[string]*window
	limit    int
	interval time.Duration
}

type window struct {
	count int
	reset time.Time
}

func newBucket(limit int, interval time.Duration) *bucket {
	return &bucket{tokens: make(map[string]*window), limit: limit, interval: interval}
}

// Allow reports whether key may proceed, incrementing its counter.
func (b *bucket) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	w, ok := b.tokens[key]
	if !ok || now.After(w.reset) {
		w = &window{count: 0, reset: now.Add(b.interval)}
		b.tokens[key] = w
	}
	if w.count >= b.limit {
		return false
	}
	w.count++
	return true
}
