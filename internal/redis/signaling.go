package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrSlotTaken is returned when a room already has an active call.
var ErrSlotTaken = errors.New("room already has an active call")

// CallSlotStore guards the one-active-call-per-room rule across instances.
// The slot holds the active call id and expires on its own so a crashed
// caller cannot block the room forever.
type CallSlotStore struct {
	client *goredis.Client
}

const callSlotKey = "call:active:"

func NewCallSlotStore(client *goredis.Client) *CallSlotStore {
	return &CallSlotStore{client: client}
}

// Claim reserves the room's slot for callID.
func (s *CallSlotStore) Claim(ctx context.Context, roomID, callID uuid.UUID, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, callSlotKey+roomID.String(), callID.String(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotTaken
	}
	return nil
}

// Extend refreshes the slot's TTL while the call is still the holder.
func (s *CallSlotStore) Extend(ctx context.Context, roomID, callID uuid.UUID, ttl time.Duration) error {
	holder, err := s.Holder(ctx, roomID)
	if err != nil {
		return err
	}
	if holder != callID {
		return nil
	}
	return s.client.Expire(ctx, callSlotKey+roomID.String(), ttl).Err()
}

// Holder returns the call holding the room's slot, or uuid.Nil.
func (s *CallSlotStore) Holder(ctx context.Context, roomID uuid.UUID) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, callSlotKey+roomID.String()).Result()
	if err == goredis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}

var releaseScript = goredis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Release frees the slot only if callID still holds it.
func (s *CallSlotStore) Release(ctx context.Context, roomID, callID uuid.UUID) error {
	return releaseScript.Run(ctx, s.client, []string{callSlotKey + roomID.String()}, callID.String()).Err()
}
