package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lokrise/checkout/pkg/redis"
)

const defaultGuestTTL = 30 * 24 * time.Hour

type guestKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(guestToken string) string
	CartMigrationKey(guestToken string) string
}

// GuestStore keeps guest carts as JSON documents in Redis.
type GuestStore struct {
	kv  guestKV
	ttl time.Duration
}

func NewGuestStore(kv guestKV, ttl time.Duration) (*GuestStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		ttl = defaultGuestTTL
	}
	return &GuestStore{kv: kv, ttl: ttl}, nil
}

// Load returns the guest lines; a missing cart is empty.
func (s *GuestStore) Load(ctx context.Context, guestToken string) ([]Line, error) {
	raw, err := s.kv.Get(ctx, s.kv.GuestCartKey(guestToken))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return []Line{}, nil
		}
		return nil, fmt.Errorf("load guest cart: %w", err)
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return lines, nil
}

// Save replaces the guest cart and refreshes its TTL. Saving no lines deletes the cart.
func (s *GuestStore) Save(ctx context.Context, guestToken string, lines []Line) error {
	key := s.kv.GuestCartKey(guestToken)
	if len(lines) == 0 {
		return s.kv.Del(ctx, key)
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.kv.Set(ctx, key, payload, s.ttl); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

func (s *GuestStore) Clear(ctx context.Context, guestToken string) error {
	return s.kv.Del(ctx, s.kv.GuestCartKey(guestToken))
}

// claimMigration sets the migration marker for a guest token; false means another
// call is migrating this cart right now.
func (s *GuestStore) claimMigration(ctx context.Context, guestToken, userID string, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, s.kv.CartMigrationKey(guestToken), userID, ttl)
}

func (s *GuestStore) releaseMigration(ctx context.Context, guestToken string) error {
	return s.kv.Del(ctx, s.kv.CartMigrationKey(guestToken))
}
