package sessions

import "fmt"

// Status is the lifecycle state of an access session.
type Status string

const (
	StatusRequested       Status = "requested"
	StatusAwaitingConsent Status = "awaiting_consent"
	StatusActive          Status = "active"
	StatusEnded           Status = "ended"
	StatusExpired         Status = "expired"
)

// OpenStatuses are the states that hold the per-farmer session slot.
var OpenStatuses = []Status{StatusRequested, StatusAwaitingConsent, StatusActive}

// Open reports whether s holds the farmer's session slot.
func (s Status) Open() bool {
	return s == StatusRequested || s == StatusAwaitingConsent || s == StatusActive
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusExpired
}

// Event drives a transition between statuses.
type Event string

const (
	EventDispatched        Event = "dispatched"
	EventDispatchFailed    Event = "dispatch_failed"
	EventVerified          Event = "verified"
	EventRejectedOTP       Event = "rejected_otp"
	EventAttemptsExhausted Event = "attempts_exhausted"
	EventTimeout           Event = "timeout"
	EventSuperseded        Event = "superseded"
	EventEnd               Event = "end"
	EventRevoke            Event = "revoke"
)

// EndReason records why a session left the open states.
type EndReason string

const (
	ReasonEnded             EndReason = "ended"
	ReasonRevoked           EndReason = "revoked"
	ReasonTimeout           EndReason = "timeout"
	ReasonChallengeTimeout  EndReason = "challenge_timeout"
	ReasonAttemptsExhausted EndReason = "attempts_exhausted"
	ReasonSuperseded        EndReason = "superseded"
	ReasonDispatchFailed    EndReason = "dispatch_failed"
)

type edge struct {
	from  Status
	event Event
}

var transitions = map[edge]Status{
	{StatusRequested, EventDispatched}:     StatusAwaitingConsent,
	{StatusRequested, EventDispatchFailed}: StatusExpired,
	{StatusRequested, EventTimeout}:        StatusExpired,
	{StatusRequested, EventSuperseded}:     StatusExpired,

	{StatusAwaitingConsent, EventVerified}:          StatusActive,
	{StatusAwaitingConsent, EventRejectedOTP}:       StatusAwaitingConsent,
	{StatusAwaitingConsent, EventAttemptsExhausted}: StatusExpired,
	{StatusAwaitingConsent, EventTimeout}:           StatusExpired,
	{StatusAwaitingConsent, EventSuperseded}:        StatusExpired,

	{StatusActive, EventEnd}:     StatusEnded,
	{StatusActive, EventRevoke}:  StatusEnded,
	{StatusActive, EventTimeout}: StatusExpired,
}

// Transition returns the status reached by applying event in from.
// Illegal transitions return ErrInvalidState.
func Transition(from Status, event Event) (Status, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s session", ErrInvalidState, event, from)
	}
	return to, nil
}

func reasonFor(from Status, event Event) EndReason {
	switch event {
	case EventEnd:
		return ReasonEnded
	case EventRevoke:
		return ReasonRevoked
	case EventTimeout:
		if from == StatusActive {
			return ReasonTimeout
		}
		return ReasonChallengeTimeout
	case EventAttemptsExhausted:
		return ReasonAttemptsExhausted
	case EventSuperseded:
		return ReasonSuperseded
	case EventDispatchFailed:
		return ReasonDispatchFailed
	}
	return ""
}
