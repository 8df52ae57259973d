// Package deviceauth implements the client side of the OAuth 2.0 Device
// Authorization Grant per RFC 8628: it registers a client, starts device
// authorization, hands the verification URL to the user, and polls the token
// endpoint with server-driven backoff until a terminal outcome. In-flight
// state is persisted so an interrupted flow resumes instead of restarting.
package deviceauth

import (
	"math"
	"time"
)

const (
	// HardTimeout bounds a flow's total wall-clock duration regardless of
	// the server-stated expiry, to keep the user from waiting on a login
	// that is never going to complete.
	HardTimeout = 10 * time.Minute

	// DefaultPollInterval applies when the server omits interval.
	DefaultPollInterval = 5 * time.Second

	// pendingGrowthCount is the number of consecutive authorization_pending
	// responses after which the interval grows gently. Carried over from
	// the web client as-is.
	pendingGrowthCount = 20

	pendingGrowthFactor    = 1.2
	pendingIntervalCeiling = 15.0 // seconds

	// slow_down handling per RFC 8628 section 3.5: the interval must grow
	// by at least 5 seconds.
	slowDownIncrement = 5.0
	slowDownFactor    = 1.5

	// transientErrorThreshold is the consecutive transient-failure count
	// that triggers exponential backoff.
	transientErrorThreshold = 3
	errorGrowthFactor       = 2.0
	errorIntervalCeiling    = 30.0 // seconds
)

// Session is the persisted state of one device authorization flow. It is
// written whole to storage on every mutation so the flow survives restarts.
type Session struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret"`
	DeviceCode              string    `json:"device_code"`
	UserCode                string    `json:"user_code"`
	VerificationURI         string    `json:"verification_uri"`
	VerificationURIComplete string    `json:"verification_uri_complete,omitempty"`
	Interval                float64   `json:"interval"` // seconds, never decreases
	StartedAt               time.Time `json:"started_at"`
	ExpiresAt               time.Time `json:"expires_at"`
	PollCount               int       `json:"poll_count"`
	ConsecutiveErrors       int       `json:"consecutive_errors"`
	ConsecutivePending      int       `json:"consecutive_pending"`
}

// PollInterval returns the current interval as a duration.
func (s *Session) PollInterval() time.Duration {
	return time.Duration(s.Interval * float64(time.Second))
}

// Expired reports whether the server-stated device code lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// PastHardDeadline reports whether the client-side wall-clock ceiling has
// been exceeded. Checked before every poll, independent of ExpiresAt.
func (s *Session) PastHardDeadline(now time.Time) bool {
	return now.Sub(s.StartedAt) > HardTimeout
}

// RecordPending notes an authorization_pending response. Any error streak is
// broken; after pendingGrowthCount consecutive pendings the interval grows
// by 20% up to 15 seconds and the counter restarts.
func (s *Session) RecordPending() {
	s.ConsecutivePending++
	s.ConsecutiveErrors = 0
	if s.ConsecutivePending >= pendingGrowthCount {
		s.growInterval(pendingGrowthFactor, pendingIntervalCeiling)
		s.ConsecutivePending = 0
	}
}

// RecordSlowDown applies the RFC 8628 rate-limit signal: the new interval is
// at least 5 seconds longer and at least 1.5x the old one. Both streak
// counters reset.
func (s *Session) RecordSlowDown() {
	next := math.Max(s.Interval+slowDownIncrement, s.Interval*slowDownFactor)
	if next > s.Interval {
		s.Interval = next
	}
	s.ConsecutivePending = 0
	s.ConsecutiveErrors = 0
}

// RecordTransientError notes a network or unexpected server failure. Three
// in a row double the interval up to 30 seconds and reset the counter.
func (s *Session) RecordTransientError() {
	s.ConsecutiveErrors++
	if s.ConsecutiveErrors >= transientErrorThreshold {
		s.growInterval(errorGrowthFactor, errorIntervalCeiling)
		s.ConsecutiveErrors = 0
	}
}

// growInterval scales the interval, honoring both the given ceiling and the
// invariant that the interval never decreases. An interval already above the
// ceiling (from a slow_down, which has no ceiling) stays where it is.
func (s *Session) growInterval(factor, ceiling float64) {
	next := math.Min(s.Interval*factor, ceiling)
	if next > s.Interval {
		s.Interval = next
	}
}
