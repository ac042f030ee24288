package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbase/portfolio-ledger/internal/config"
	"github.com/finbase/portfolio-ledger/internal/models"
)

// Client wraps the Redis client with portfolio snapshot caching. The
// service works without it: callers hold a nil *Client when Redis is down
// and fall through to the database.
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func snapshotKey(portfolioID string) string {
	return fmt.Sprintf("portfolio:%s:snapshot", portfolioID)
}

// SetSnapshot caches a reconciled portfolio view with TTL.
func (c *Client) SetSnapshot(ctx context.Context, snap *models.PortfolioSnapshot, ttl time.Duration) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.rdb.Set(ctx, snapshotKey(snap.PortfolioID), jsonData, ttl).Err()
}

// GetSnapshot retrieves a cached portfolio view. Returns redis.Nil when
// the snapshot is absent or expired.
func (c *Client) GetSnapshot(ctx context.Context, portfolioID string) (*models.PortfolioSnapshot, error) {
	jsonData, err := c.rdb.Get(ctx, snapshotKey(portfolioID)).Bytes()
	if err != nil {
		return nil, err
	}

	var snap models.PortfolioSnapshot
	if err := json.Unmarshal(jsonData, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// InvalidateSnapshot drops the cached view after a reconcile pass so the
// next read rebuilds it from the store.
func (c *Client) InvalidateSnapshot(ctx context.Context, portfolioID string) error {
	return c.rdb.Del(ctx, snapshotKey(portfolioID)).Err()
}

// IsCacheMiss reports whether an error from GetSnapshot means the key was
// simply absent rather than Redis being unreachable.
func IsCacheMiss(err error) bool {
	return err == redis.Nil
}
