package deviceauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/langchef/langchef/internal/authapi"
	"github.com/langchef/langchef/internal/localstate"
	"github.com/langchef/langchef/internal/session"
)

// ErrSuperseded is returned from Login when another Login or Logout took
// over the client while setup calls were in flight.
var ErrSuperseded = errors.New("login superseded by a newer request")

// startupDelay is the pause between opening the verification URL and the
// first poll, giving the browser window time to appear.
const defaultStartupDelay = 2 * time.Second

const defaultRequestTimeout = 10 * time.Second

// timerFunc schedules fn after d and returns a cancel func. Injected in
// tests to drive the flow deterministically.
type timerFunc func(d time.Duration, fn func()) (stop func() bool)

// Client drives the device authorization flow. Exactly one pending poll
// timer exists at any time: every path that schedules a poll first cancels
// the previous timer, and a generation counter makes stale callbacks no-ops.
type Client struct {
	api            authapi.API
	store          localstate.Store
	sessions       *session.Manager
	openURL        func(url string) error
	notify         func(Event)
	log            zerolog.Logger
	clock          func() time.Time
	after          timerFunc
	startupDelay   time.Duration
	requestTimeout time.Duration

	mu        sync.Mutex
	state     State
	sess      *Session
	stopTimer func() bool
	gen       uint64
	done      chan struct{}
	message   string
}

// Option configures a Client.
type Option func(*Client)

// WithNotify sets the event callback. Events are delivered outside the
// client's lock; the callback must not call back into the client.
func WithNotify(fn func(Event)) Option {
	return func(c *Client) { c.notify = fn }
}

// WithURLOpener sets the function used to open the verification URL.
func WithURLOpener(fn func(url string) error) Option {
	return func(c *Client) { c.openURL = fn }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.clock = fn }
}

// WithTimer overrides poll scheduling.
func WithTimer(fn timerFunc) Option {
	return func(c *Client) { c.after = fn }
}

// WithStartupDelay overrides the delay before the first poll.
func WithStartupDelay(d time.Duration) Option {
	return func(c *Client) { c.startupDelay = d }
}

// NewClient creates a polling client. The session manager receives the
// granted token on success.
func NewClient(api authapi.API, store localstate.Store, sessions *session.Manager, opts ...Option) *Client {
	c := &Client{
		api:            api,
		store:          store,
		sessions:       sessions,
		openURL:        func(string) error { return errors.New("no URL opener configured") },
		notify:         func(Event) {},
		log:            zerolog.Nop(),
		clock:          time.Now,
		startupDelay:   defaultStartupDelay,
		requestTimeout: defaultRequestTimeout,
		state:          StateIdle,
	}
	c.after = func(d time.Duration, fn func()) func() bool {
		t := time.AfterFunc(d, fn)
		return t.Stop
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login starts (or resumes) a device authorization flow. It returns once
// polling has been scheduled; the eventual outcome arrives asynchronously
// via events and Wait. Only setup-phase failures are returned here — any
// previous in-flight flow is cancelled first.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	c.cancelPollLocked()
	gen := c.gen
	c.closeDoneLocked()
	c.done = make(chan struct{})
	c.message = ""

	if c.resumeLocked(gen) {
		sess := c.sess
		c.mu.Unlock()
		c.notify(Event{
			State:           StatePolling,
			UserCode:        sess.UserCode,
			VerificationURI: sess.VerificationURI,
		})
		return nil
	}

	c.state = StateRegistering
	c.mu.Unlock()

	creds, err := c.api.RegisterClient(ctx)
	if err != nil {
		c.failSetup(gen, err)
		return fmt.Errorf("%s: %w", MsgStartFailed, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state = StateAuthorizing
	c.mu.Unlock()

	auth, err := c.api.StartDeviceAuthorization(ctx, creds)
	if err != nil {
		c.failSetup(gen, err)
		return fmt.Errorf("%s: %w", MsgStartFailed, err)
	}

	now := c.clock()
	interval := float64(auth.Interval)
	if interval <= 0 {
		interval = DefaultPollInterval.Seconds()
	}
	sess := &Session{
		ClientID:                creds.ClientID,
		ClientSecret:            creds.ClientSecret,
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         auth.VerificationURI,
		VerificationURIComplete: auth.VerificationURIComplete,
		Interval:                interval,
		StartedAt:               now,
		ExpiresAt:               now.Add(time.Duration(auth.ExpiresIn) * time.Second),
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.sess = sess
	c.persistLocked()

	// Open the verification page exactly once per flow. Failure is not
	// fatal: the user can still enter the code manually.
	target := sess.VerificationURIComplete
	if target == "" {
		target = sess.VerificationURI
	}
	manual := false
	if err := c.openURL(target); err != nil {
		manual = true
		c.log.Warn().Err(err).Msg("could not open verification URL, falling back to manual code entry")
	}

	c.state = StatePolling
	c.scheduleLocked(gen, c.startupDelay)
	c.mu.Unlock()

	c.log.Info().
		Str("user_code", sess.UserCode).
		Str("verification_uri", sess.VerificationURI).
		Msg("device authorization started")
	c.notify(Event{
		State:           StatePolling,
		UserCode:        sess.UserCode,
		VerificationURI: sess.VerificationURI,
		ManualEntry:     manual,
	})
	return nil
}

// Resume picks up a persisted, still-valid flow without starting a new one.
// It returns whether polling was resumed. An expired persisted flow is
// discarded silently.
func (c *Client) Resume() bool {
	c.mu.Lock()
	if c.state == StatePolling {
		c.mu.Unlock()
		return true
	}
	c.cancelPollLocked()
	gen := c.gen
	resumed := c.resumeLocked(gen)
	if resumed {
		c.closeDoneLocked()
		c.done = make(chan struct{})
		c.message = ""
	}
	sess := c.sess
	c.mu.Unlock()

	if resumed {
		c.notify(Event{
			State:           StatePolling,
			UserCode:        sess.UserCode,
			VerificationURI: sess.VerificationURI,
		})
	}
	return resumed
}

// Logout cancels any in-flight flow and clears both the device-auth state
// and the authenticated session. Safe to call in any state; never fails.
func (c *Client) Logout() {
	c.mu.Lock()
	c.cancelPollLocked()
	c.sess = nil
	c.state = StateIdle
	c.message = ""
	_ = c.store.Delete(localstate.KeyPollingState)
	c.closeDoneLocked()
	c.mu.Unlock()

	c.sessions.Clear()
	c.log.Debug().Msg("logged out")
}

// Result is the terminal outcome of a flow.
type Result struct {
	State   State
	Message string
}

// Wait blocks until the current flow reaches a terminal state, the flow is
// cancelled, or ctx expires.
func (c *Client) Wait(ctx context.Context) (Result, error) {
	c.mu.Lock()
	done := c.done
	state := c.state
	message := c.message
	c.mu.Unlock()

	if done == nil || state.Terminal() || state == StateIdle {
		return Result{State: state, Message: message}, nil
	}

	select {
	case <-ctx.Done():
		return Result{State: state}, ctx.Err()
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return Result{State: c.state, Message: c.message}, nil
	}
}

// Status is a snapshot for the user-facing status indicator.
type Status struct {
	State           State
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	Remaining       time.Duration // until the device code expires
	Message         string
}

// Status returns the current flow snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Message: c.message}
	if c.sess != nil {
		st.UserCode = c.sess.UserCode
		st.VerificationURI = c.sess.VerificationURI
		st.Interval = c.sess.PollInterval()
		if remaining := c.sess.ExpiresAt.Sub(c.clock()); remaining > 0 {
			st.Remaining = remaining
		}
	}
	return st
}

// resumeLocked loads the persisted session and, when still valid, moves the
// client into POLLING with the persisted interval and counters.
func (c *Client) resumeLocked(gen uint64) bool {
	data, err := c.store.Get(localstate.KeyPollingState)
	if err != nil {
		return false
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		_ = c.store.Delete(localstate.KeyPollingState)
		return false
	}
	if sess.Expired(c.clock()) {
		_ = c.store.Delete(localstate.KeyPollingState)
		return false
	}

	c.sess = &sess
	c.state = StatePolling
	c.scheduleLocked(gen, sess.PollInterval())
	c.log.Info().Str("user_code", sess.UserCode).Msg("resumed device authorization polling")
	return true
}

// poll performs one token attempt and reschedules or terminates.
func (c *Client) poll(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StatePolling || c.sess == nil {
		c.mu.Unlock()
		return
	}

	// The wall-clock ceiling wins over everything, including backoff.
	if c.sess.PastHardDeadline(c.clock()) {
		c.finishLocked(StateTimedOut, MsgTimedOut)
		c.mu.Unlock()
		c.notify(Event{State: StateTimedOut, Message: MsgTimedOut})
		return
	}

	creds := &authapi.ClientCredentials{
		ClientID:     c.sess.ClientID,
		ClientSecret: c.sess.ClientSecret,
	}
	deviceCode := c.sess.DeviceCode
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	grant, err := c.api.PollToken(ctx, creds, deviceCode)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.state != StatePolling || c.sess == nil {
		c.mu.Unlock()
		return
	}
	c.sess.PollCount++

	if err == nil {
		ttl := time.Duration(grant.ExpiresIn) * time.Second
		if err := c.sessions.Establish(grant.User, grant.AccessToken, ttl); err != nil {
			c.log.Warn().Err(err).Msg("could not persist authenticated session")
		}
		c.finishLocked(StateSucceeded, "")
		c.mu.Unlock()
		c.log.Info().Msg("device authorization succeeded")
		c.notify(Event{State: StateSucceeded})
		return
	}

	var apiErr *authapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case authapi.ErrorCodeAuthorizationPending:
			c.sess.RecordPending()
		case authapi.ErrorCodeSlowDown:
			c.sess.RecordSlowDown()
			c.log.Debug().Float64("interval", c.sess.Interval).Msg("server requested slow down")
		case authapi.ErrorCodeExpiredToken:
			c.finishLocked(StateExpired, MsgExpired)
			c.mu.Unlock()
			c.notify(Event{State: StateExpired, Message: MsgExpired})
			return
		case authapi.ErrorCodeAccessDenied:
			c.finishLocked(StateDenied, MsgDenied)
			c.mu.Unlock()
			c.notify(Event{State: StateDenied, Message: MsgDenied})
			return
		default:
			c.sess.RecordTransientError()
			c.log.Debug().Err(err).Int("consecutive_errors", c.sess.ConsecutiveErrors).
				Msg("transient error while polling")
		}
	} else {
		c.sess.RecordTransientError()
		c.log.Debug().Err(err).Int("consecutive_errors", c.sess.ConsecutiveErrors).
			Msg("transient error while polling")
	}

	c.persistLocked()
	c.scheduleLocked(gen, c.sess.PollInterval())
	c.mu.Unlock()
}

// failSetup records a setup-phase failure as a terminal ERRORED state.
func (c *Client) failSetup(gen uint64, err error) {
	c.log.Error().Err(err).Msg(MsgStartFailed)
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.finishLocked(StateErrored, MsgStartFailed)
	c.mu.Unlock()
	c.notify(Event{State: StateErrored, Message: MsgStartFailed})
}

// finishLocked moves to a terminal state: the timer is dead, the persisted
// device-auth record is gone, and waiters are released.
func (c *Client) finishLocked(state State, message string) {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.state = state
	c.message = message
	c.sess = nil
	_ = c.store.Delete(localstate.KeyPollingState)
	c.closeDoneLocked()
}

func (c *Client) closeDoneLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// cancelPollLocked invalidates the current generation and stops any pending
// timer. A callback that already fired sees the stale generation and bails.
func (c *Client) cancelPollLocked() {
	c.gen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

func (c *Client) scheduleLocked(gen uint64, d time.Duration) {
	c.stopTimer = c.after(d, func() { c.poll(gen) })
}

func (c *Client) persistLocked() {
	data, err := json.Marshal(c.sess)
	if err != nil {
		c.log.Warn().Err(err).Msg("could not encode polling state")
		return
	}
	if err := c.store.Put(localstate.KeyPollingState, data); err != nil {
		c.log.Warn().Err(err).Msg("could not persist polling state")
	}
}
