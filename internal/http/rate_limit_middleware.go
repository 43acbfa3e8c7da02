package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) rateDecision
	Close()
}

// rateDecision is the outcome of one hit against a window.
type rateDecision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

func allowAll() rateDecision {
	return rateDecision{allowed: true, remaining: -1}
}

func decide(hits int64, limit int, resetAt time.Time) rateDecision {
	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	return rateDecision{allowed: hits <= int64(limit), remaining: remaining, resetAt: resetAt}
}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = r.rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(req.Context(), route+"|"+key, limit, window)
		setRateHeaders(w.Header(), limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, rateMetricKey(key))
			if wait := time.Until(decision.resetAt); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, r.rateLimitKeyUser, next))
}

func setRateHeaders(h http.Header, limit int, d rateDecision) {
	if d.remaining < 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	if !d.resetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))
	}
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func (r *Router) rateLimitKeyIP(req *http.Request) string {
	host := r.proxies.clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateMetricKey keeps only the key kind ("ip", "user") as a metric label.
func rateMetricKey(key string) string {
	if kind, _, ok := strings.Cut(key, ":"); ok && kind != "" {
		return kind
	}
	if key == "" {
		return "unknown"
	}
	return key
}
