package utils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/aiblog/config"
)

var redisClient *redis.Client

// InitRedis connects the shared Redis client. When no host is configured, or
// the server does not answer, Redis stays disabled and callers fall back to
// process memory or skip caching.
func InitRedis(cfg *config.AppConfig) *redis.Client {
	if cfg.RedisHost == "" {
		redisClient = nil
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		Logger.Warn("redis unavailable, running without it", zap.String("addr", rc.Options().Addr), zap.Error(err))
		_ = rc.Close()
		redisClient = nil
		return nil
	}
	redisClient = rc
	return rc
}

// SetRedis replaces the shared client.
func SetRedis(rc *redis.Client) {
	redisClient = rc
}

// GetRedis returns the shared client, or nil when Redis is disabled.
func GetRedis() *redis.Client {
	return redisClient
}
