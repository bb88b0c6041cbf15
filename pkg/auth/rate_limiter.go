package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether a keyed request may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindowLimiter implements in-process sliding window rate limiting
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	windows    map[string]*window
	limit      int
	windowSize time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

type window struct {
	requests []time.Time
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:    make(map[string]*window),
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

// StartSweeper drops idle keys every interval until Stop is called
func (l *SlidingWindowLimiter) StartSweeper(interval time.Duration) {
	l.mu.Lock()
	if l.done != nil {
		l.mu.Unlock()
		return
	}
	l.done = make(chan struct{})
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stopChan:
				return
			}
		}
	}()
}

// Stop ends the sweeper and waits for it to exit. It is safe to call more than once.
func (l *SlidingWindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })

	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Allow checks if a request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.windowSize)

	w, exists := l.windows[key]
	if !exists {
		w = &window{}
		l.windows[key] = w
	}

	// Requests are appended in time order, so the expired ones form a prefix
	i := 0
	for i < len(w.requests) && !w.requests[i].After(windowStart) {
		i++
	}
	w.requests = w.requests[i:]

	if len(w.requests) >= l.limit {
		return false, nil
	}

	w.requests = append(w.requests, now)
	return true, nil
}

// Reset clears the window for a key
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Sweep drops keys with no requests inside the current window
func (l *SlidingWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.windowSize)
	removed := 0
	for key, w := range l.windows {
		if len(w.requests) == 0 || !w.requests[len(w.requests)-1].After(windowStart) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
