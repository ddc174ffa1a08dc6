// Package redisx holds Redis-backed adapters: the credit balance cache and the
// per-user balance update channel.
package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

const (
	balanceKeyPrefix  = "credits:balance:"
	updateChannelBase = "user_updates:"

	// BalanceUpdatedType is the type field of balance refresh messages.
	BalanceUpdatedType = "balance_updated"
)

// BalanceKey is the cache key for a user's balance.
func BalanceKey(userID string) string { return balanceKeyPrefix + userID }

// UpdateChannel is the pub/sub channel carrying a user's balance updates.
func UpdateChannel(userID string) string { return updateChannelBase + userID }

// BalanceUpdate is published on UpdateChannel after every confirmed balance.
type BalanceUpdate struct {
	Type    string `json:"type"`
	Balance int64  `json:"balance"`
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisx.NewClient: %w", err)
	}
	return redis.NewClient(opt), nil
}

// BalanceCache implements domain.BalanceCache with a TTL per entry.
type BalanceCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ domain.BalanceCache = (*BalanceCache)(nil)

// NewBalanceCache builds a cache; a non-positive ttl keeps entries forever.
func NewBalanceCache(rdb redis.UniversalClient, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	s, err := c.rdb.Get(ctx, BalanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("op=balance_cache.get: %w", err)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Unreadable entries count as a miss and are overwritten on refresh.
		return 0, false, nil
	}
	return v, true, nil
}

// Set stores the balance.
func (c *BalanceCache) Set(ctx context.Context, userID string, balance int64) error {
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, BalanceKey(userID), balance, ttl).Err(); err != nil {
		return fmt.Errorf("op=balance_cache.set: %w", err)
	}
	return nil
}

// Notifier publishes balance refreshes on the user's update channel.
type Notifier struct {
	rdb redis.UniversalClient
}

var _ domain.BalanceNotifier = (*Notifier)(nil)

// NewNotifier builds a Notifier.
func NewNotifier(rdb redis.UniversalClient) *Notifier { return &Notifier{rdb: rdb} }

// NotifyBalance publishes a balance_updated message.
func (n *Notifier) NotifyBalance(ctx context.Context, userID string, balance int64) error {
	b, err := json.Marshal(BalanceUpdate{Type: BalanceUpdatedType, Balance: balance})
	if err != nil {
		return fmt.Errorf("op=notifier.publish: %w", err)
	}
	if err := n.rdb.Publish(ctx, UpdateChannel(userID), b).Err(); err != nil {
		return fmt.Errorf("op=notifier.publish: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to a user's update channel. The caller closes it.
func (n *Notifier) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return n.rdb.Subscribe(ctx, UpdateChannel(userID))
}
