package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// Delivery is the recorded outcome of a webhook delivery. Pending is set
// while the first attempt is still being processed.
type Delivery struct {
	Pending bool            `json:"-"`
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
}

// DeliveryStore remembers webhook delivery ids so replays get the first
// response instead of writing twice.
type DeliveryStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDeliveryStore(client *redis.Client, ttl time.Duration) *DeliveryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DeliveryStore{client: client, prefix: "webhook:delivery:", ttl: ttl}
}

func (s *DeliveryStore) key(id string) string {
	return s.prefix + id
}

// Lookup returns the recorded delivery, if any.
func (s *DeliveryStore) Lookup(ctx context.Context, id string) (Delivery, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, fmt.Errorf("lookup delivery: %w", err)
	}
	if raw == pendingMarker {
		return Delivery{Pending: true}, true, nil
	}
	var d Delivery
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Delivery{}, false, fmt.Errorf("decode delivery: %w", err)
	}
	return d, true, nil
}

// Claim marks the delivery as in flight. It returns false when another
// request already holds or finished it.
func (s *DeliveryStore) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(id), pendingMarker, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	return ok, nil
}

// Store records the final response for the delivery.
func (s *DeliveryStore) Store(ctx context.Context, id string, status int, body []byte) error {
	encoded, err := json.Marshal(Delivery{Status: status, Body: json.RawMessage(body)})
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("store delivery: %w", err)
	}
	return nil
}

// Release forgets a claim so the sender may retry after a failure.
func (s *DeliveryStore) Release(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}
