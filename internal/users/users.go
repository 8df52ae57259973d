// Package users stores LangChef user records. Accounts are provisioned
// lazily: the first successful device authorization creates the record, and
// later logins refresh the profile fields.
package users

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is a LangChef account.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	AWSIdentityID string    `json:"aws_identity_id,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	LastLoginAt   time.Time `json:"last_login_at"`
}

// Store persists user records.
type Store interface {
	// UpsertByEmail creates the user on first login or refreshes the
	// profile fields on subsequent logins, keyed by email. The returned
	// record always carries the stable ID and CreatedAt.
	UpsertByEmail(ctx context.Context, user User) (*User, error)

	// GetByUsername looks up a user by username, returning ErrNotFound
	// when absent.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// CheckHealth verifies the backing store is reachable.
	CheckHealth(ctx context.Context) error
}
