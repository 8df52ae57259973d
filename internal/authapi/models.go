package authapi

// ClientCredentials are issued by the auth service for one client instance.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// DeviceAuthorization is the device authorization response per RFC 8628
// section 3.2, as relayed by the auth service.
type DeviceAuthorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// User identifies the authenticated LangChef user.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// TokenGrant is the successful token response. ExpiresIn may be zero when
// the server omits it; callers apply their own default.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}
