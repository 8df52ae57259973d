package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	registrationPath = "/client/register"
	deviceAuthPath   = "/device_authorization"
	tokenPath        = "/token"
	userInfoPath     = "/userinfo"
	healthCheckPath  = "/.well-known/openid-configuration"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	defaultTimeout = 10 * time.Second

	clientName = "LangChef Platform"
)

// OIDCProvider implements Provider against an OIDC issuer that supports
// dynamic client registration and the device grant.
type OIDCProvider struct {
	client          *http.Client
	registrationURL string
	deviceAuthURL   string
	tokenURL        string
	userInfoURL     string
	healthURL       string
	startURL        string
}

var _ Provider = (*OIDCProvider)(nil)

// OIDCConfig configures an OIDCProvider.
type OIDCConfig struct {
	// IssuerURL is the provider base URL.
	IssuerURL string

	// StartURL is the portal start URL forwarded with device authorization
	// requests, as AWS SSO expects. Optional for other providers.
	StartURL string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// NewOIDCProvider creates a provider client for the given issuer.
func NewOIDCProvider(cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	issuerURL := strings.TrimSuffix(cfg.IssuerURL, "/")
	if _, err := url.Parse(issuerURL); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &OIDCProvider{
		client:          client,
		registrationURL: issuerURL + registrationPath,
		deviceAuthURL:   issuerURL + deviceAuthPath,
		tokenURL:        issuerURL + tokenPath,
		userInfoURL:     issuerURL + userInfoPath,
		healthURL:       issuerURL + healthCheckPath,
		startURL:        cfg.StartURL,
	}, nil
}

// registrationResponse is the provider's dynamic registration reply.
type registrationResponse struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at"`
}

func (p *OIDCProvider) RegisterClient(ctx context.Context) (*Registration, error) {
	body, err := json.Marshal(map[string]any{
		"client_name": clientName,
		"client_type": "public",
		"scopes":      []string{"openid"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.registrationURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}

	var reg registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return nil, fmt.Errorf("decoding registration response: %w", err)
	}

	result := &Registration{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
	}
	if reg.ClientSecretExpiresAt > 0 {
		result.ExpiresAt = time.Unix(reg.ClientSecretExpiresAt, 0)
	}
	return result, nil
}

func (p *OIDCProvider) StartDeviceAuthorization(ctx context.Context, clientID, clientSecret string) (*oauth2.DeviceAuthResponse, error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: p.deviceAuthURL,
			TokenURL:      p.tokenURL,
		},
		Scopes: []string{"openid"},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	opts := []oauth2.AuthCodeOption{}
	if p.startURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("start_url", p.startURL))
	}

	auth, err := cfg.DeviceAuth(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("starting device authorization: %w", err)
	}
	return auth, nil
}

// tokenResponse covers both the success and error shapes of the provider's
// token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (p *OIDCProvider) CreateToken(ctx context.Context, clientID, clientSecret, deviceCode string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {deviceGrantType},
		"device_code":   {deviceCode},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	var body tokenResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decoding token response (status %s): %w", strconv.Itoa(resp.StatusCode), err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrSlowDown
	}
	if body.Error != "" {
		switch body.Error {
		case "authorization_pending":
			return nil, ErrAuthorizationPending
		case "slow_down":
			return nil, ErrSlowDown
		case "expired_token":
			return nil, ErrExpiredToken
		case "access_denied":
			return nil, ErrAccessDenied
		default:
			return nil, fmt.Errorf("token request failed: %s", body.Error)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	token := &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
	}
	if body.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return token, nil
}

func (p *OIDCProvider) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding user profile: %w", err)
	}
	return &profile, nil
}

func (p *OIDCProvider) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity provider health check returned status %d", resp.StatusCode)
	}
	return nil
}
