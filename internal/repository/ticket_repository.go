package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"signage-fleet-server/internal/domain"
)

type TicketKind string

const (
	TicketSocket      TicketKind = "socket"
	TicketPairingCode TicketKind = "pairing-code"
	TicketMagicLink   TicketKind = "magic-link"
)

// TicketRepository holds short-lived single-use secrets that map to a device.
type TicketRepository interface {
	// Put stores a ticket. It fails with ErrConflict if the key is taken.
	Put(ctx context.Context, kind TicketKind, key, deviceID string, ttl time.Duration) error
	// Consume returns and deletes a ticket. Missing or expired tickets yield
	// ErrNotFound.
	Consume(ctx context.Context, kind TicketKind, key string) (string, error)
	Close() error
}

func ticketKey(kind TicketKind, key string) string {
	return fmt.Sprintf("ticket:%s:%s", kind, key)
}

// NewTicketRepository returns a Redis-backed store when a client is given and
// an in-process one otherwise.
func NewTicketRepository(client *redis.Client) TicketRepository {
	if client == nil {
		return NewMemoryTicketRepository()
	}
	return &redisTicketRepository{client: client}
}

type redisTicketRepository struct {
	client *redis.Client
}

func (r *redisTicketRepository) Put(ctx context.Context, kind TicketKind, key, deviceID string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, ticketKey(kind, key), deviceID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store ticket: %w", err)
	}
	if !ok {
		return fmt.Errorf("ticket: %w", domain.ErrConflict)
	}
	return nil
}

func (r *redisTicketRepository) Consume(ctx context.Context, kind TicketKind, key string) (string, error) {
	deviceID, err := r.client.GetDel(ctx, ticketKey(kind, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("ticket: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume ticket: %w", err)
	}
	return deviceID, nil
}

func (r *redisTicketRepository) Close() error {
	return nil
}

type memoryTicketRepository struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

func NewMemoryTicketRepository() TicketRepository {
	cache := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &memoryTicketRepository{cache: cache}
}

func (r *memoryTicketRepository) Put(_ context.Context, kind TicketKind, key, deviceID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := ticketKey(kind, key)
	if item := r.cache.Get(k); item != nil && !item.IsExpired() {
		return fmt.Errorf("ticket: %w", domain.ErrConflict)
	}
	r.cache.Set(k, deviceID, ttl)
	return nil
}

func (r *memoryTicketRepository) Consume(_ context.Context, kind TicketKind, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.cache.GetAndDelete(ticketKey(kind, key))
	if !ok || item == nil || item.IsExpired() {
		return "", fmt.Errorf("ticket: %w", domain.ErrNotFound)
	}
	return item.Value(), nil
}

func (r *memoryTicketRepository) Close() error {
	r.cache.Stop()
	return nil
}
