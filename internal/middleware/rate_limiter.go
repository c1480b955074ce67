package middleware

import (
	"net/http"
	"sync"
	"time"

	"clawpos/internal/apierror"

	"github.com/gin-gonic/gin"
)

// ── Fixed-window rate limiter ─────────────────────────────────────────────────
// One counter per client IP per window. Expired entries are purged by a
// goroutine owned by the limiter.

type windowEntry struct {
	count     int
	windowEnd time.Time
}

type ipLimiter struct {
	limit  int
	window time.Duration
	msg    string

	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

func newIPLimiter(limit int, window time.Duration, msg string) *ipLimiter {
	l := &ipLimiter{
		limit:   limit,
		window:  window,
		msg:     msg,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
	go l.purgeLoop(5 * time.Minute)
	return l
}

// allow counts one request for ip and reports whether it fits the window.
func (l *ipLimiter) allow(ip string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[ip]
	if !ok || now.After(e.windowEnd) {
		e = &windowEntry{windowEnd: now.Add(l.window)}
		l.entries[ip] = e
	}
	e.count++
	return e.count <= l.limit, e.windowEnd
}

func (l *ipLimiter) purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for ip, e := range l.entries {
		if now.After(e.windowEnd) {
			delete(l.entries, ip)
		}
	}
}

func (l *ipLimiter) purgeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		l.purge()
	}
}

func (l *ipLimiter) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, windowEnd := l.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", windowEnd.UTC().Format(http.TimeFormat))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New(l.msg))
			return
		}
		c.Next()
	}
}

// LoginRateLimiter limits login attempts to 20 per minute per IP.
func LoginRateLimiter() gin.HandlerFunc {
	return newIPLimiter(20, time.Minute, "Too many login attempts, try again in a minute").handler()
}

// RateLimiter limits every request to limit per window per IP.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	return newIPLimiter(limit, window, "Too many requests, try again shortly").handler()
}
