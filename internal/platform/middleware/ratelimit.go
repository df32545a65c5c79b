package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// sweepInterval is the minimum gap between scans for idle buckets.
const sweepInterval = time.Minute

// IPLimiter throttles requests per client IP with a token bucket each.
// Buckets idle longer than the eviction TTL are dropped by a sweep that runs
// at most once per sweepInterval.
type IPLimiter struct {
	limit     rate.Limit
	perMinute int
	burst     int
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	rejected  atomic.Uint64
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows perMinute requests per IP with the given burst.
func NewIPLimiter(perMinute, burst int, logger *slog.Logger) *IPLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPLimiter{
		limit:     rate.Limit(float64(perMinute) / 60),
		perMinute: perMinute,
		burst:     burst,
		ttl:       10 * time.Minute,
		logger:    logger,
		now:       time.Now,
		visitors:  make(map[string]*visitor),
	}
}

// Allow consumes one token for ip.
func (l *IPLimiter) Allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.evict(now)
		l.lastSweep = now
	}
	l.mu.Unlock()

	if v.limiter.AllowN(now, 1) {
		return true
	}
	l.rejected.Add(1)
	return false
}

// evict must be called with mu held.
func (l *IPLimiter) evict(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
		}
	}
}

// Stats returns the tracked IP count and total rejections.
func (l *IPLimiter) Stats() (int, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors), l.rejected.Load()
}

// retryAfterSeconds is the time to refill one token.
func (l *IPLimiter) retryAfterSeconds() int {
	return max(int(math.Ceil(60/float64(l.perMinute))), 1)
}

// Middleware answers 429 once an IP's bucket is empty. Client IP comes from
// the metadata middleware.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if !l.Allow(ip) {
			l.logger.WarnContext(ctx, "login rate limit exceeded",
				"client_ip", ip,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			httputil.WriteErrorCode(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
