package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("oauth state not found or expired")

// StateStore keeps one-time OAuth state values that map back to the doctor who started the flow.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func stateKey(state string) string {
	return "oauth:state:" + state
}

// Issue creates a random state bound to ownerID.
func (s *StateStore) Issue(ctx context.Context, ownerID uuid.UUID) (string, error) {
	state := uuid.NewString()
	if err := s.client.Set(ctx, stateKey(state), ownerID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

// Consume returns the owner bound to state and deletes it, so a state works once.
func (s *StateStore) Consume(ctx context.Context, state string) (uuid.UUID, error) {
	val, err := s.client.GetDel(ctx, stateKey(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrStateNotFound
		}
		return uuid.Nil, fmt.Errorf("consume oauth state: %w", err)
	}

	owner, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt oauth state value: %w", err)
	}
	return owner, nil
}
