// Package cache wraps Redis for the translation memo and ingress run counters.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
	}, nil
}

// memoKey addresses one (language pair, text) cell translation. Texts are
// hashed so long cells stay within key limits.
func memoKey(sourceLang, targetLang, text string) string {
	sum := sha1.Sum([]byte(text))
	return fmt.Sprintf("memo:%s:%s:%s", sourceLang, targetLang, hex.EncodeToString(sum[:]))
}

// GetTranslation returns a memoized translation. Any Redis failure is logged
// and reported as a miss; the memo never blocks a run.
func (c *CacheService) GetTranslation(ctx context.Context, sourceLang, targetLang, text string) (string, bool) {
	key := memoKey(sourceLang, targetLang, text)

	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Debug("Translation memo get failed", zap.String("key", key), zap.Error(err))
		return "", false
	}

	return value, true
}

// SetTranslation memoizes one translated cell. Failures are logged only.
func (c *CacheService) SetTranslation(ctx context.Context, sourceLang, targetLang, text, translated string) {
	key := memoKey(sourceLang, targetLang, text)

	if err := c.client.Set(ctx, key, translated, constants.CacheTTL.TranslationMemo).Err(); err != nil {
		c.logger.Debug("Translation memo set failed", zap.String("key", key), zap.Error(err))
	}
}

// IncrementRunCount is the coarse ingress check-and-increment: it bumps the
// client's active run counter and returns the new value. The counter expires
// on its own so a crashed run cannot wedge a client permanently.
func (c *CacheService) IncrementRunCount(ctx context.Context, clientID string) (int64, error) {
	key := fmt.Sprintf("runs:%s", clientID)

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.NewCacheError("run counter incr failed", "incr", key, err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, constants.CacheTTL.RunCounter).Err(); err != nil {
			c.logger.Warn("Run counter expire failed", zap.String("key", key), zap.Error(err))
		}
	}

	return count, nil
}

// DecrementRunCount releases one run slot for the client.
func (c *CacheService) DecrementRunCount(ctx context.Context, clientID string) {
	key := fmt.Sprintf("runs:%s", clientID)

	count, err := c.client.Decr(ctx, key).Result()
	if err != nil {
		c.logger.Warn("Run counter decr failed", zap.String("key", key), zap.Error(err))
		return
	}
	if count < 0 {
		// Counter expired mid-run; clamp instead of going negative.
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("Run counter reset failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}
