package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/utils"
)

const limiterIdle = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

// RateLimitMiddleware applies a token bucket per client IP.
func RateLimitMiddleware(cfg *config.AppConfig) gin.HandlerFunc {
	perMinute := max(cfg.RateLimitPerMinute, 1)
	pool := &limiterPool{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
	}

	return func(ctx *gin.Context) {
		if !pool.get(ctx.ClientIP()).Allow() {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for k, l := range p.limiters {
		if now.After(l.expires) {
			delete(p.limiters, k)
		}
	}

	l, ok := p.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter
}
