package security

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBanPrefix = "lumicat:ban:"

// RedisBanRegistry is a BanRegistry backed by Redis, for deployments where
// multiple instances must share ban state. Temporary bans map to keys with
// a TTL, permanent bans to keys without one, so expiry is handled by Redis
// itself.
//
// Redis errors fail closed for lookups made on the request path.
type RedisBanRegistry struct {
	client *redis.Client
}

// RedisBanConfig configures the Redis connection.
type RedisBanConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBanRegistry connects to Redis and returns the registry.
func NewRedisBanRegistry(cfg RedisBanConfig) *RedisBanRegistry {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisBanRegistry{client: client}
}

// Ping verifies connectivity.
func (r *RedisBanRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisBanRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisBanRegistry) IsBanned(ip string, now time.Time) bool {
	n, err := r.client.Exists(context.Background(), redisBanPrefix+ip).Result()
	if err != nil {
		// Fail closed: an unreachable registry must not open the gate.
		return true
	}
	return n > 0
}

func (r *RedisBanRegistry) Ban(ip string, until time.Time) {
	ttl := time.Until(until)
	if ttl <= 0 {
		return
	}
	r.client.Set(context.Background(), redisBanPrefix+ip, "1", ttl)
}

func (r *RedisBanRegistry) BanPermanent(ip string) {
	r.client.Set(context.Background(), redisBanPrefix+ip, "permanent", 0)
}

func (r *RedisBanRegistry) Unban(ip string) bool {
	n, err := r.client.Del(context.Background(), redisBanPrefix+ip).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (r *RedisBanRegistry) ListActive(now time.Time) []string {
	ctx := context.Background()
	var ips []string
	iter := r.client.Scan(ctx, 0, redisBanPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ips = append(ips, strings.TrimPrefix(iter.Val(), redisBanPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil
	}
	sort.Strings(ips)
	return ips
}
