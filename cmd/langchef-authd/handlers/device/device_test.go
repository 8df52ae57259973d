package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/upstream"
)

type mockProvider struct {
	startDeviceAuthorization func(ctx context.Context, clientID, clientSecret string) (*oauth2.DeviceAuthResponse, error)
}

func (m *mockProvider) RegisterClient(ctx context.Context) (*upstream.Registration, error) {
	return nil, errors.New("not implemented in mock")
}

func (m *mockProvider) StartDeviceAuthorization(ctx context.Context, clientID, clientSecret string) (*oauth2.DeviceAuthResponse, error) {
	if m.startDeviceAuthorization != nil {
		return m.startDeviceAuthorization(ctx, clientID, clientSecret)
	}
	return nil, errors.New("not implemented in mock")
}

func (m *mockProvider) CreateToken(ctx context.Context, clientID, clientSecret, deviceCode string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented in mock")
}

func (m *mockProvider) Profile(ctx context.Context, accessToken string) (*upstream.Profile, error) {
	return nil, errors.New("not implemented in mock")
}

func (m *mockProvider) CheckHealth(ctx context.Context) error { return nil }

func postJSON(t *testing.T, body map[string]string) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/auth/device-authorization", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestDeviceAuthorizationHandler(t *testing.T) {
	now := time.Unix(1700000000, 0)

	h := New(Config{
		Provider: &mockProvider{
			startDeviceAuthorization: func(_ context.Context, clientID, clientSecret string) (*oauth2.DeviceAuthResponse, error) {
				if clientID != "client-1" || clientSecret != "secret-1" {
					t.Errorf("credentials = %q/%q, want client-1/secret-1", clientID, clientSecret)
				}
				return &oauth2.DeviceAuthResponse{
					DeviceCode:              "dc-1",
					UserCode:                "WDJB-MJHT",
					VerificationURI:         "https://sso.example.com/verify",
					VerificationURIComplete: "https://sso.example.com/verify?user_code=WDJB-MJHT",
					Expiry:                  now.Add(600 * time.Second),
					Interval:                5,
				}, nil
			},
		},
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return now },
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postJSON(t, map[string]string{
		"client_id":     "client-1",
		"client_secret": "secret-1",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var auth authapi.DeviceAuthorization
	if err := json.NewDecoder(w.Body).Decode(&auth); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if auth.DeviceCode != "dc-1" || auth.UserCode != "WDJB-MJHT" {
		t.Errorf("codes = %q/%q", auth.DeviceCode, auth.UserCode)
	}
	if auth.ExpiresIn != 600 {
		t.Errorf("expires_in = %d, want 600", auth.ExpiresIn)
	}
	if auth.Interval != 5 {
		t.Errorf("interval = %d, want 5", auth.Interval)
	}
	if auth.VerificationURIComplete == "" {
		t.Error("verification_uri_complete missing")
	}
}

func TestDeviceAuthorizationDefaultsInterval(t *testing.T) {
	h := New(Config{
		Provider: &mockProvider{
			startDeviceAuthorization: func(context.Context, string, string) (*oauth2.DeviceAuthResponse, error) {
				return &oauth2.DeviceAuthResponse{
					DeviceCode:      "dc-1",
					UserCode:        "WDJB-MJHT",
					VerificationURI: "https://sso.example.com/verify",
					Expiry:          time.Now().Add(time.Hour),
				}, nil
			},
		},
		Logger: zerolog.Nop(),
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postJSON(t, map[string]string{
		"client_id":     "client-1",
		"client_secret": "secret-1",
	}))

	var auth authapi.DeviceAuthorization
	if err := json.NewDecoder(w.Body).Decode(&auth); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if auth.Interval != defaultInterval {
		t.Errorf("interval = %d, want %d", auth.Interval, defaultInterval)
	}
}

func TestDeviceAuthorizationErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		fail       bool
		wantDetail string
	}{
		{
			name:       "missing credentials",
			body:       map[string]string{"client_id": "client-1"},
			wantDetail: "client_id and client_secret are required",
		},
		{
			name:       "upstream failure",
			body:       map[string]string{"client_id": "c", "client_secret": "s"},
			fail:       true,
			wantDetail: "Failed to start device authorization",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Config{
				Provider: &mockProvider{
					startDeviceAuthorization: func(context.Context, string, string) (*oauth2.DeviceAuthResponse, error) {
						if tt.fail {
							return nil, errors.New("upstream exploded")
						}
						t.Fatal("provider called despite invalid request")
						return nil, nil
					},
				},
				Logger: zerolog.Nop(),
			})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, postJSON(t, tt.body))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var body struct {
				Detail string `json:"detail"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", body.Detail, tt.wantDetail)
			}
		})
	}
}
