package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory, for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byName  map[string]string // username -> email
	clock   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string]User),
		byName:  make(map[string]string),
		clock:   time.Now,
	}
}

func (s *MemoryStore) UpsertByEmail(ctx context.Context, user User) (*User, error) {
	if user.Email == "" {
		return nil, errors.New("email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	record := user
	if existing, ok := s.byEmail[user.Email]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		if record.FullName == "" {
			record.FullName = existing.FullName
		}
		if record.AWSIdentityID == "" {
			record.AWSIdentityID = existing.AWSIdentityID
		}
		if existing.Username != record.Username {
			delete(s.byName, existing.Username)
		}
	} else {
		record.ID = uuid.NewString()
		record.CreatedAt = now
	}
	record.IsActive = true
	record.LastLoginAt = now

	s.byEmail[record.Email] = record
	s.byName[record.Username] = record.Email
	return &record, nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.byName[username]
	if !ok {
		return nil, fmt.Errorf("%s: %w", username, ErrNotFound)
	}
	user := s.byEmail[email]
	return &user, nil
}

func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}
