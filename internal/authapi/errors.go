package authapi

import "fmt"

// ErrorCode identifies a token-endpoint error per RFC 8628 section 3.5.
// The LangChef auth service reports these as HTTP 400 responses with a
// "detail" field, or as a bare HTTP 429 for rate limiting.
type ErrorCode string

const (
	// ErrorCodeAuthorizationPending indicates the user has not yet approved
	// the request; the client should keep polling.
	ErrorCodeAuthorizationPending ErrorCode = "authorization_pending"

	// ErrorCodeSlowDown indicates the client is polling too fast and must
	// increase its interval before the next attempt.
	ErrorCodeSlowDown ErrorCode = "slow_down"

	// ErrorCodeExpiredToken indicates the device code has expired and the
	// flow must be restarted from the beginning.
	ErrorCodeExpiredToken ErrorCode = "expired_token"

	// ErrorCodeAccessDenied indicates the user rejected the authorization
	// request.
	ErrorCodeAccessDenied ErrorCode = "access_denied"

	// ErrorCodeServerError covers any response that does not carry one of
	// the recognized detail codes. Treated as transient by callers.
	ErrorCodeServerError ErrorCode = "server_error"
)

// Error is a classified token-endpoint error. Response bodies are parsed
// exactly once, here at the HTTP boundary; callers match on Code and never
// inspect raw detail strings.
type Error struct {
	Code       ErrorCode
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth server returned %s (HTTP %d)", e.Code, e.StatusCode)
}

// classifyDetail maps a server detail string to a tagged error code.
func classifyDetail(detail string) ErrorCode {
	switch ErrorCode(detail) {
	case ErrorCodeAuthorizationPending, ErrorCodeSlowDown, ErrorCodeExpiredToken, ErrorCodeAccessDenied:
		return ErrorCode(detail)
	default:
		return ErrorCodeServerError
	}
}
