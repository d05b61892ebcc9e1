package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// PresenceStore tracks which personas currently hold a live connection.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

const presenceKeyPrefix = "presence:"

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 90 * time.Second
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// Touch marks the persona online for one TTL. Connections call it on
// connect and on every heartbeat.
func (p *PresenceStore) Touch(ctx context.Context, personaID uuid.UUID) error {
	return p.client.Set(ctx, presenceKeyPrefix+personaID.String(), time.Now().UTC().Format(time.RFC3339), p.ttl).Err()
}

func (p *PresenceStore) Clear(ctx context.Context, personaID uuid.UUID) error {
	return p.client.Del(ctx, presenceKeyPrefix+personaID.String()).Err()
}

func (p *PresenceStore) IsOnline(ctx context.Context, personaID uuid.UUID) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKeyPrefix+personaID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
