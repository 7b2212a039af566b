package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/wrdsb/user-directory-api/internal/core/port"
)

const defaultLookupKeyPrefix = "directory:lookup:id_number"

// LookupCacheConfig defines key prefix and entry lifetime for the lookup cache.
type LookupCacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// LookupCache memoizes alternate-identifier to user-id resolutions in Redis.
type LookupCache struct {
	client *red.Client
	cfg    LookupCacheConfig
}

// NewLookupCache wires a Redis-backed lookup cache.
func NewLookupCache(client *red.Client, cfg LookupCacheConfig) *LookupCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultLookupKeyPrefix
	}
	return &LookupCache{client: client, cfg: cfg}
}

// GetUserID returns the cached user id for the identifier.
func (c *LookupCache) GetUserID(ctx context.Context, idNumber string) (int64, bool, error) {
	value, err := c.client.Get(ctx, c.key(idNumber)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get lookup entry: %w", err)
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached user id: %w", err)
	}

	return userID, true, nil
}

// SetUserID stores the resolution with the configured TTL.
func (c *LookupCache) SetUserID(ctx context.Context, idNumber string, userID int64) error {
	if err := c.client.Set(ctx, c.key(idNumber), strconv.FormatInt(userID, 10), c.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis set lookup entry: %w", err)
	}
	return nil
}

// Invalidate drops the cached resolution for the identifier.
func (c *LookupCache) Invalidate(ctx context.Context, idNumber string) error {
	if err := c.client.Del(ctx, c.key(idNumber)).Err(); err != nil {
		return fmt.Errorf("redis del lookup entry: %w", err)
	}
	return nil
}

func (c *LookupCache) key(idNumber string) string {
	return fmt.Sprintf("%s:%s", c.cfg.KeyPrefix, idNumber)
}

var _ port.LookupCache = (*LookupCache)(nil)
