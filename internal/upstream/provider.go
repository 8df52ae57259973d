// Package upstream talks to the identity provider that actually authorizes
// users (an AWS-SSO-shaped OIDC issuer). The auth service proxies the
// device grant to it and never stores provider tokens.
package upstream

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Registration is a dynamically registered OAuth client at the provider.
type Registration struct {
	ClientID     string
	ClientSecret string
	ExpiresAt    time.Time
}

// Profile is the identity of an authorized user as reported by the
// provider's userinfo endpoint.
type Profile struct {
	ID       string `json:"sub"`
	Username string `json:"preferred_username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
}

// Provider is the identity-provider surface the auth service depends on.
type Provider interface {
	// RegisterClient performs dynamic client registration.
	RegisterClient(ctx context.Context) (*Registration, error)

	// StartDeviceAuthorization begins a device grant for the registered
	// client.
	StartDeviceAuthorization(ctx context.Context, clientID, clientSecret string) (*oauth2.DeviceAuthResponse, error)

	// CreateToken makes exactly one token attempt for the device code.
	// Pending and terminal conditions surface as the sentinel errors in
	// this package; the call never waits for the user.
	CreateToken(ctx context.Context, clientID, clientSecret, deviceCode string) (*oauth2.Token, error)

	// Profile fetches the authorized user's identity.
	Profile(ctx context.Context, accessToken string) (*Profile, error)

	// CheckHealth verifies the provider is reachable.
	CheckHealth(ctx context.Context) error
}
