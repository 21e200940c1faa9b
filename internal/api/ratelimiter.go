package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow() bool
}

// retryAfterHinter is implemented by limiters that can estimate when the next token is available.
type retryAfterHinter interface {
	RetryAfter() time.Duration
}

type limiterAdapter struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &limiterAdapter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (l *limiterAdapter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// RetryAfter estimates the wait until one token refills.
func (l *limiterAdapter) RetryAfter() time.Duration {
	if l == nil || l.limiter == nil || l.limiter.Limit() <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

func rateLimitMiddleware(limiter rateLimiter, logger *zap.Logger, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := time.Second
		if hinter, ok := limiter.(retryAfterHinter); ok {
			retryAfter = hinter.RetryAfter()
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

		if logger != nil {
			logger.Debug("request rate limited",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
			)
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
