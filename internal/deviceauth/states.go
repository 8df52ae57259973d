package deviceauth

// State identifies where a device authorization flow is in its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateRegistering State = "registering"
	StateAuthorizing State = "authorizing"
	StatePolling     State = "polling"
	StateSucceeded   State = "succeeded"
	StateDenied      State = "denied"
	StateExpired     State = "expired"
	StateTimedOut    State = "timed_out"
	StateErrored     State = "errored"
)

// Terminal reports whether the state ends the current flow. A new Login
// starts a fresh session from any terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateDenied, StateExpired, StateTimedOut, StateErrored:
		return true
	}
	return false
}

// User-facing messages for terminal outcomes. Raw server error text is never
// surfaced; each cause gets its own fixed line.
const (
	MsgDenied      = "authentication was denied"
	MsgExpired     = "authentication session expired"
	MsgTimedOut    = "authentication timed out"
	MsgStartFailed = "failed to start login process"
)

// Event is delivered to the notify callback on state transitions and on
// status-relevant changes during polling.
type Event struct {
	State State

	// UserCode and VerificationURI are set while a flow is in progress so
	// the caller can render the verification prompt.
	UserCode        string
	VerificationURI string

	// ManualEntry is set when opening the verification URL failed and the
	// user must enter the code by hand.
	ManualEntry bool

	// Message carries the fixed user-facing line for terminal failures.
	Message string
}
