// Package cache keeps recent slot query results in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clinic-scheduler/internal/availability"
)

const (
	keyPrefix     = "scheduler:slots:"
	generationKey = "scheduler:slots:generation"
)

// Finder answers slot queries.
type Finder interface {
	FindSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
}

// SlotCache wraps a Finder with a Redis read-through cache. Entries are keyed
// by the query, the current minute and a generation counter that writers bump
// through Invalidate.
type SlotCache struct {
	client *redis.Client
	next   Finder
	clock  availability.Clock
	ttl    time.Duration
	log    *zap.Logger
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, next Finder, clock availability.Clock, ttl time.Duration, log *zap.Logger) *SlotCache {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = availability.SystemClock{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SlotCache{client: client, next: next, clock: clock, ttl: ttl, log: log.Named("cache")}
}

// FindSlots serves from Redis when possible. Redis errors never fail the query.
func (c *SlotCache) FindSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("read cache generation", zap.Error(err))
		return c.next.FindSlots(ctx, q)
	}
	key := Key(q, c.clock.Now(), gen)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var slots []availability.Slot
		if err := json.Unmarshal(raw, &slots); err == nil {
			return slots, nil
		}
		c.log.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("read cache", zap.Error(err))
	}

	slots, err := c.next.FindSlots(ctx, q)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(slots); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("write cache", zap.Error(err))
		}
	}
	return slots, nil
}

// Invalidate makes every cached entry unreachable.
func (c *SlotCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

// Key derives the cache key of a query evaluated at now. The minute is rounded
// up the same way the engine rounds the first slot of today, so every instant
// sharing a key also shares an answer.
func Key(q availability.Query, now time.Time, generation int64) string {
	q = q.WithDefaults()
	parts := []string{
		strconv.FormatInt(generation, 10),
		availability.CeilMinute(now).Format("2006-01-02T15:04"),
		strconv.Itoa(q.SpecializationID),
		optionalInt(q.ProviderID),
		optionalDate(q.DateFrom),
		optionalDate(q.DateTo),
		strconv.Itoa(q.SlotDurationMinutes),
		strconv.Itoa(q.MaxResults),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optionalDate(v *time.Time) string {
	if v == nil {
		return "-"
	}
	return v.Format(availability.DateLayout)
}
