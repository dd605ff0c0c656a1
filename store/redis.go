package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps presence in Redis: one set of member emails per join
// code, plus a plain key for the owner. Key layout is shared with the
// survey backend, so both can serve the same sessions.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func usersKey(joinCode string) string {
	return joinCode + ":users"
}

func ownerKey(joinCode string) string {
	return joinCode + ":owner_sid"
}

func (s *RedisStore) Join(ctx context.Context, joinCode, email string) error {
	return s.client.SAdd(ctx, usersKey(joinCode), email).Err()
}

func (s *RedisStore) Leave(ctx context.Context, joinCode, email string) error {
	return s.client.SRem(ctx, usersKey(joinCode), email).Err()
}

func (s *RedisStore) IsJoined(ctx context.Context, joinCode, email string) (bool, error) {
	return s.client.SIsMember(ctx, usersKey(joinCode), email).Result()
}

func (s *RedisStore) Count(ctx context.Context, joinCode string) (int, error) {
	n, err := s.client.SCard(ctx, usersKey(joinCode)).Result()
	return int(n), err
}

func (s *RedisStore) SetOwner(ctx context.Context, joinCode, ownerID string) error {
	return s.client.Set(ctx, ownerKey(joinCode), ownerID, 0).Err()
}

func (s *RedisStore) Owner(ctx context.Context, joinCode string) (string, error) {
	owner, err := s.client.Get(ctx, ownerKey(joinCode)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}

func (s *RedisStore) Clear(ctx context.Context, joinCode string) error {
	return s.client.Del(ctx, usersKey(joinCode), ownerKey(joinCode)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
