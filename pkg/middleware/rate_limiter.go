package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit is the sustained rate in requests per second
	Limit rate.Limit
	// Burst is how many requests a fresh key may make at once
	Burst int
	// IdleExpiry drops the bucket of a key not seen for this long
	IdleExpiry time.Duration
	// KeyFunc names the bucket a request draws from
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions allows 5 req/s with bursts of 10 per caller
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:      5,
		Burst:      10,
		IdleExpiry: time.Hour,
		KeyFunc:    CallerKey,
	}
}

// CallerKey buckets authenticated requests by identity and the rest by client IP
func CallerKey(c *gin.Context) string {
	if identity := c.GetString(IdentityKey); identity != "" {
		return "identity:" + identity
	}
	return "ip:" + c.ClientIP()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller key
type RateLimiter struct {
	opts RateLimiterOptions
	log  *logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewRateLimiter creates a limiter; zero option fields take their defaults
func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		o := options[0]
		if o.Limit > 0 {
			opts.Limit = o.Limit
		}
		if o.Burst > 0 {
			opts.Burst = o.Burst
		}
		if o.IdleExpiry > 0 {
			opts.IdleExpiry = o.IdleExpiry
		}
		if o.KeyFunc != nil {
			opts.KeyFunc = o.KeyFunc
		}
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	return &RateLimiter{
		opts:    opts,
		log:     log.WithComponent("rate_limiter"),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
}

// Stop ends the sweep goroutine started by Middleware
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Allow reports whether key may proceed now
func (r *RateLimiter) Allow(key string) bool {
	return r.bucket(key).AllowN(r.now(), 1)
}

// wait reports how long key must wait for its next token, or 0 when it may
// proceed now. A granted token is consumed.
func (r *RateLimiter) wait(key string) time.Duration {
	now := r.now()
	res := r.bucket(key).ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64)
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// Middleware rejects callers over their budget with 429 and a Retry-After
// rounded up to whole seconds
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	r.startOnce.Do(func() { go r.sweepLoop() })

	return func(c *gin.Context) {
		key := r.opts.KeyFunc(c)
		delay := r.wait(key)
		if delay <= 0 {
			c.Next()
			return
		}

		retry := int64(math.Ceil(delay.Seconds()))
		if retry < 1 || delay == time.Duration(math.MaxInt64) {
			retry = 1
		}
		r.log.Warn("Rate limit exceeded",
			"caller", key,
			"path", c.Request.URL.Path,
			"retry_after_s", retry,
		)
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.opts.Burst))
		_ = c.Error(errors.NewRateLimitedError("Too many requests. Please try again later."))
		c.Abort()
	}
}

func (r *RateLimiter) bucket(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.opts.Limit, r.opts.Burst)}
		r.buckets[key] = b
	}
	b.lastSeen = r.now()
	return b.limiter
}

// sweep forgets keys idle for longer than IdleExpiry and returns how many it dropped
func (r *RateLimiter) sweep() int {
	cutoff := r.now().Add(-r.opts.IdleExpiry)

	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for k, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, k)
			dropped++
		}
	}
	return dropped
}

func (r *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				r.log.Debug("Dropped idle rate limit buckets", "count", n)
			}
		}
	}
}
