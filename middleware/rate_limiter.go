// middleware/rate_limiter.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/HSouheill/nairobi_verified/models"
)

type endpointLimit struct {
	limit rate.Limit
	burst int
}

type RateLimiter struct {
	limiters       map[string]*rate.Limiter
	blockedIPs     map[string]time.Time
	mu             sync.Mutex
	defaultLimit   rate.Limit
	defaultBurst   int
	blockDuration  time.Duration
	endpointLimits map[string]endpointLimit
	exempt         []string
	now            func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		blockedIPs:    make(map[string]time.Time),
		defaultLimit:  rate.Every(100 * time.Millisecond), // 10 requests per second
		defaultBurst:  20,
		blockDuration: 5 * time.Minute,
		endpointLimits: map[string]endpointLimit{
			// brute force protection
			"/api/auth/login":    {limit: rate.Every(2 * time.Second), burst: 5},
			"/api/auth/register": {limit: rate.Every(500 * time.Millisecond), burst: 5},
		},
		// static files and provider callbacks are never limited
		exempt: []string{"/uploads/", "/api/subscriptions/mpesa-callback"},
		now:    time.Now,
	}
}

// SetEndpointLimit overrides the limit for a route path
func (r *RateLimiter) SetEndpointLimit(path string, limit rate.Limit, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpointLimits[path] = endpointLimit{limit: limit, burst: burst}
}

// Cleanup drops expired blocks hourly until ctx is done
func (r *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *RateLimiter) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for ip, blockUntil := range r.blockedIPs {
		if now.After(blockUntil) {
			delete(r.blockedIPs, ip)
			r.resetLocked(ip)
		}
	}
}

// resetLocked removes every limiter belonging to ip
func (r *RateLimiter) resetLocked(ip string) {
	for key := range r.limiters {
		if strings.HasPrefix(key, ip+"|") {
			delete(r.limiters, key)
		}
	}
}

func (r *RateLimiter) isExempt(path string) bool {
	for _, prefix := range r.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func tooManyRequests(c echo.Context, message string, retryAfter time.Time) error {
	return c.JSON(http.StatusTooManyRequests, models.Response{
		Status:  http.StatusTooManyRequests,
		Message: message,
		Data:    map[string]string{"retryAfter": retryAfter.Format(time.RFC3339)},
	})
}

func (r *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.isExempt(c.Request().URL.Path) {
				return next(c)
			}
			ip := c.RealIP()

			r.mu.Lock()
			if blockUntil, blocked := r.blockedIPs[ip]; blocked {
				if r.now().Before(blockUntil) {
					r.mu.Unlock()
					return tooManyRequests(c, "IP address blocked due to too many requests", blockUntil)
				}
				delete(r.blockedIPs, ip)
				r.resetLocked(ip)
			}
			r.mu.Unlock()

			if !r.getLimiter(ip, c.Path()).Allow() {
				r.mu.Lock()
				blockUntil := r.now().Add(r.blockDuration)
				r.blockedIPs[ip] = blockUntil
				r.mu.Unlock()

				c.Logger().Warnf("Rate limit exceeded by %s on %s", ip, c.Path())
				return tooManyRequests(c, "Too many requests", blockUntil)
			}

			return next(c)
		}
	}
}

// getLimiter returns the bucket for ip on path. Routes with their own limit
// get a separate bucket so a strict login limit does not eat the default one.
func (r *RateLimiter) getLimiter(ip, path string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ip + "|*"
	limit, burst := r.defaultLimit, r.defaultBurst
	if endpoint, ok := r.endpointLimits[path]; ok {
		key = ip + "|" + path
		limit, burst = endpoint.limit, endpoint.burst
	}

	limiter, exists := r.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(limit, burst)
		r.limiters[key] = limiter
	}
	return limiter
}
