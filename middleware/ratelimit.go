package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/hyphasys/mcp-go/protocol"
)

// RateLimitOption configures RateLimit.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	keyFunc func(ctx context.Context, req *protocol.Request) string
	logger  Logger
}

// WithRateLimitKeyFunc derives the bucket key from the request, enabling
// per-method or per-client budgets. The default is a single global bucket.
func WithRateLimitKeyFunc(fn func(ctx context.Context, req *protocol.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) { c.keyFunc = fn }
}

// WithRateLimitLogger logs rejected requests.
func WithRateLimitLogger(l Logger) RateLimitOption {
	return func(c *rateLimitConfig) { c.logger = l }
}

// RateLimit bounds request throughput with a token bucket of rate tokens per
// second and the given burst headroom. Rejected requests are answered with a
// rate-limited error instead of reaching the dispatcher; notifications over
// budget are silently dropped.
func RateLimit(rate, burst int, opts ...RateLimitOption) Middleware {
	cfg := &rateLimitConfig{
		keyFunc: func(context.Context, *protocol.Request) string { return "global" },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			key := cfg.keyFunc(ctx, req)
			if !limiter.Allow(ctx, key) {
				if cfg.logger != nil {
					cfg.logger.Warn("rate limit exceeded", F("method", req.Method), F("key", key))
				}
				if req.IsNotification() {
					return nil, nil
				}
				return protocol.NewErrorResponse(req.ID, protocol.NewRateLimited("rate limit exceeded")), nil
			}
			return next(ctx, req)
		}
	}
}

// RateLimitByMethod gives every method its own bucket.
func RateLimitByMethod(rate, burst int, opts ...RateLimitOption) Middleware {
	return RateLimit(rate, burst, append([]RateLimitOption{
		WithRateLimitKeyFunc(func(_ context.Context, req *protocol.Request) string {
			return req.Method
		}),
	}, opts...)...)
}
