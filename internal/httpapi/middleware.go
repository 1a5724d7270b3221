// internal/httpapi/middleware.go
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"lendhub/internal/apperr"
	"lendhub/internal/membership"
	"lendhub/internal/metrics"
	"lendhub/internal/web"
	"lendhub/pkg/logger"
)

// requireRole resolves the caller and rejects roles without the capability.
func requireRole(members membership.Service, allowed func(membership.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := web.CallerID(r)
			if err != nil {
				web.Error(w, err)
				return
			}
			member, err := members.GetMember(r.Context(), caller)
			if apperr.Is(err, apperr.KindNotFound) {
				web.Forbidden(w, "unknown caller")
				return
			}
			if err != nil {
				web.Error(w, err)
				return
			}
			if !allowed(member.Role) {
				web.Forbidden(w, "role "+string(member.Role)+" may not do this")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerLimiter keeps one token bucket per caller.
type callerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	byCaller map[string]*rate.Limiter
}

func newCallerLimiter(limit rate.Limit, burst int) *callerLimiter {
	return &callerLimiter{limit: limit, burst: burst, byCaller: make(map[string]*rate.Limiter)}
}

func (l *callerLimiter) allow(caller string) bool {
	l.mu.Lock()
	lim, ok := l.byCaller[caller]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byCaller[caller] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *callerLimiter) middleware(route string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(r.Header.Get(web.CallerHeader)) {
				if m != nil {
					m.RateLimited(route)
				}
				w.Header().Set("Retry-After", "1")
				web.JSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "too many requests",
					"kind":  "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request at debug, or warn for 5xx.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := log.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Debug("request served")
		})
	}
}
