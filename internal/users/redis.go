package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	emailPrefix    = "user:email:"
	usernamePrefix = "user:name:"
)

// RedisStore implements Store using Redis. Records are keyed by email with
// a username index pointing back at the email key.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed user store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

func (s *RedisStore) UpsertByEmail(ctx context.Context, user User) (*User, error) {
	if user.Email == "" {
		return nil, errors.New("email is required")
	}

	now := s.clock()
	existing, err := s.getByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	record := user
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		if record.FullName == "" {
			record.FullName = existing.FullName
		}
		if record.AWSIdentityID == "" {
			record.AWSIdentityID = existing.AWSIdentityID
		}
		// A stale username index would break lookups after a rename.
		if existing.Username != record.Username {
			if err := s.client.Del(ctx, usernamePrefix+existing.Username).Err(); err != nil {
				return nil, fmt.Errorf("dropping old username index: %w", err)
			}
		}
	} else {
		record.ID = uuid.NewString()
		record.CreatedAt = now
	}
	record.IsActive = true
	record.LastLoginAt = now

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding user: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, emailPrefix+record.Email, data, 0)
	pipe.Set(ctx, usernamePrefix+record.Username, record.Email, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	email, err := s.client.Get(ctx, usernamePrefix+username).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("looking up username: %w", err)
	}
	return s.getByEmail(ctx, email)
}

func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) getByEmail(ctx context.Context, email string) (*User, error) {
	data, err := s.client.Get(ctx, emailPrefix+email).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshaling user: %w", err)
	}
	return &user, nil
}
