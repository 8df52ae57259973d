// Package authapi is the HTTP client for the LangChef auth service. It owns
// the wire shapes of the /api/auth endpoints and converts error responses
// into tagged codes so the rest of the client never string-matches bodies.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	registerClientPath      = "/api/auth/register-client"
	deviceAuthorizationPath = "/api/auth/device-authorization"
	tokenPath               = "/api/auth/token"
	refreshPath             = "/api/auth/refresh"

	defaultTimeout = 10 * time.Second
)

// API is the endpoint surface the polling client depends on.
type API interface {
	// RegisterClient obtains fresh client credentials.
	RegisterClient(ctx context.Context) (*ClientCredentials, error)

	// StartDeviceAuthorization begins the device grant for the given
	// credentials.
	StartDeviceAuthorization(ctx context.Context, creds *ClientCredentials) (*DeviceAuthorization, error)

	// PollToken performs a single token poll. A nil error means the grant
	// succeeded; otherwise the error is an *Error carrying the classified
	// code, or a plain transport error.
	PollToken(ctx context.Context, creds *ClientCredentials, deviceCode string) (*TokenGrant, error)

	// Refresh exchanges the given access token for a new one.
	Refresh(ctx context.Context, accessToken string) (*TokenGrant, error)
}

// Client implements API against a LangChef auth service base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a client for the auth service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func (c *Client) RegisterClient(ctx context.Context) (*ClientCredentials, error) {
	var creds ClientCredentials
	if err := c.post(ctx, registerClientPath, nil, "", &creds); err != nil {
		return nil, fmt.Errorf("registering client: %w", err)
	}
	return &creds, nil
}

func (c *Client) StartDeviceAuthorization(ctx context.Context, creds *ClientCredentials) (*DeviceAuthorization, error) {
	body := map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	}
	var auth DeviceAuthorization
	if err := c.post(ctx, deviceAuthorizationPath, body, "", &auth); err != nil {
		return nil, fmt.Errorf("starting device authorization: %w", err)
	}
	return &auth, nil
}

func (c *Client) PollToken(ctx context.Context, creds *ClientCredentials, deviceCode string) (*TokenGrant, error) {
	body := map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"device_code":   deviceCode,
	}
	var grant TokenGrant
	if err := c.post(ctx, tokenPath, body, "", &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *Client) Refresh(ctx context.Context, accessToken string) (*TokenGrant, error) {
	var grant TokenGrant
	if err := c.post(ctx, refreshPath, nil, accessToken, &grant); err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return &grant, nil
}

// post sends a JSON request and decodes a JSON response. Non-2xx responses
// are converted into *Error values with a classified code.
func (c *Client) post(ctx context.Context, path string, body any, bearer string, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorBody is the FastAPI-style error envelope used by the auth service.
type errorBody struct {
	Detail string `json:"detail"`
}

func (c *Client) parseError(resp *http.Response) error {
	apiErr := &Error{
		Code:       ErrorCodeServerError,
		StatusCode: resp.StatusCode,
	}

	// 429 is the rate-limit signal per RFC 8628 even without a body.
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.Code = ErrorCodeSlowDown
		return apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
		apiErr.Code = classifyDetail(body.Detail)
	}
	return apiErr
}
