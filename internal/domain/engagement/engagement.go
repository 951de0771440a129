package engagement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State represents engagement lifecycle state.
type State string

const (
	StateCreated             State = "CREATED"
	StateCompleted           State = "COMPLETED"
	StatePendingVerification State = "PENDING_VERIFICATION"
	StateVerified            State = "VERIFIED"
	StateExpired             State = "EXPIRED"
	StateFailed              State = "FAILED"
)

var validTransitions = map[State][]State{
	StateCreated:             {StateCompleted, StateFailed, StateExpired},
	StateCompleted:           {StatePendingVerification, StateFailed, StateExpired},
	StatePendingVerification: {StateVerified, StateFailed, StateExpired},
	StateVerified:            {},
	StateExpired:             {},
	StateFailed:              {},
}

// CanTransition validates a state transition against the transition table.
// An unknown target state yields false. An unknown from state is a
// programmer error and panics.
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		panic(fmt.Sprintf("engagement: invalid from state: %s", from))
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the allowed targets from a state.
func ValidTransitions(from State) []State {
	allowed := validTransitions[from]
	out := make([]State, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(s State) bool {
	return len(validTransitions[s]) == 0
}

// IsActiveState reports whether a state is non-terminal.
func IsActiveState(s State) bool {
	return !IsTerminal(s)
}

// CanStartVerification reports whether verification may begin from a state.
func CanStartVerification(s State) bool {
	return s == StateCompleted
}

// IsVerificationState reports whether a state belongs to the verification phase.
func IsVerificationState(s State) bool {
	return s == StatePendingVerification || s == StateVerified
}

// HistoryEntry records one state transition.
type HistoryEntry struct {
	State       State           `json:"state"`
	Timestamp   time.Time       `json:"timestamp"`
	TriggeredBy string          `json:"triggeredBy"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Verification holds the token challenge attached when verification starts.
type Verification struct {
	Token          string     `json:"token"`
	TokenExpiresAt time.Time  `json:"tokenExpiresAt"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"maxAttempts"`
	LastAttempt    *time.Time `json:"lastAttempt,omitempty"`
}

// Engagement represents one session's attempt to complete a verifiable
// action within a bounded time window.
type Engagement struct {
	ID            uuid.UUID      `json:"id"`
	SessionID     string         `json:"sessionId"`
	CurrentState  State          `json:"currentState"`
	PreviousState State          `json:"previousState"`
	CreatedAt     time.Time      `json:"createdAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	VerifiedAt    *time.Time     `json:"verifiedAt,omitempty"`
	StateHistory  []HistoryEntry `json:"stateHistory"`
	Verification  *Verification  `json:"verification,omitempty"`
}

// New creates an engagement in CREATED with a single-entry history.
func New(sessionID string, ttl time.Duration) *Engagement {
	now := time.Now().UTC()
	meta, _ := json.Marshal(map[string]string{"action": "engagement_created"})
	return &Engagement{
		ID:            uuid.New(),
		SessionID:     sessionID,
		CurrentState:  StateCreated,
		PreviousState: StateCreated,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		StateHistory: []HistoryEntry{{
			State:       StateCreated,
			Timestamp:   now,
			TriggeredBy: "system",
			Metadata:    meta,
		}},
	}
}

// IsExpired reports whether the engagement window has passed.
func (e *Engagement) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Transition applies a state transition. It returns false without mutating
// current state when the transition is illegal or the engagement is
// terminal. An engagement past its expiry window is forced into EXPIRED
// before anything else; the requested transition is then rejected.
func (e *Engagement) Transition(to State, triggeredBy string, metadata json.RawMessage) bool {
	now := time.Now().UTC()

	if e.IsExpired(now) {
		e.forceExpire(now, "expired_before_transition")
		return false
	}

	if IsTerminal(e.CurrentState) {
		return false
	}
	if !CanTransition(e.CurrentState, to) {
		return false
	}

	e.PreviousState = e.CurrentState
	e.CurrentState = to

	switch to {
	case StateCompleted:
		e.CompletedAt = &now
	case StateVerified:
		e.VerifiedAt = &now
	}

	e.StateHistory = append(e.StateHistory, HistoryEntry{
		State:       to,
		Timestamp:   now,
		TriggeredBy: triggeredBy,
		Metadata:    metadata,
	})
	return true
}

// CheckExpiry forces a stale non-terminal engagement into EXPIRED.
// It returns whether a transition occurred.
func (e *Engagement) CheckExpiry() bool {
	now := time.Now().UTC()
	if !e.IsExpired(now) || IsTerminal(e.CurrentState) {
		return false
	}
	e.forceExpire(now, "engagement_expired")
	return true
}

func (e *Engagement) forceExpire(now time.Time, reason string) {
	if IsTerminal(e.CurrentState) {
		return
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"reason":    reason,
		"expiredAt": e.ExpiresAt,
	})
	e.PreviousState = e.CurrentState
	e.CurrentState = StateExpired
	e.StateHistory = append(e.StateHistory, HistoryEntry{
		State:       StateExpired,
		Timestamp:   now,
		TriggeredBy: "timeout",
		Metadata:    meta,
	})
}

// PrepareForVerification moves a COMPLETED engagement into
// PENDING_VERIFICATION and attaches the token challenge. Calling it again
// while the challenge is pending is a no-op returning true, so repeated
// verification attempts accumulate against the same challenge. Any other
// state returns false.
func (e *Engagement) PrepareForVerification(token string, tokenTTL time.Duration, maxAttempts int) bool {
	if e.CurrentState == StatePendingVerification && e.Verification != nil {
		return true
	}
	if !CanStartVerification(e.CurrentState) {
		return false
	}

	meta, _ := json.Marshal(map[string]string{"action": "verification_prepared"})
	if !e.Transition(StatePendingVerification, "verification", meta) {
		return false
	}
	e.Verification = &Verification{
		Token:          token,
		TokenExpiresAt: time.Now().UTC().Add(tokenTTL),
		Attempts:       0,
		MaxAttempts:    maxAttempts,
	}
	return true
}

// Clone returns a deep copy. Records handed to callers are always clones;
// only the service mutates canonical state.
func (e *Engagement) Clone() *Engagement {
	out := *e
	out.StateHistory = make([]HistoryEntry, len(e.StateHistory))
	for i, h := range e.StateHistory {
		out.StateHistory[i] = h
		if h.Metadata != nil {
			out.StateHistory[i].Metadata = append(json.RawMessage(nil), h.Metadata...)
		}
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	if e.VerifiedAt != nil {
		t := *e.VerifiedAt
		out.VerifiedAt = &t
	}
	if e.Verification != nil {
		v := *e.Verification
		if v.LastAttempt != nil {
			t := *v.LastAttempt
			v.LastAttempt = &t
		}
		out.Verification = &v
	}
	return &out
}

// Validate checks engagement integrity and returns human-readable findings.
// The expired-but-not-EXPIRED finding should never fire in practice because
// every access path forces expiry first; it exists as a regression guard.
func (e *Engagement) Validate() []string {
	var errs []string

	if e.ID == uuid.Nil {
		errs = append(errs, "invalid engagement ID")
	}
	if strings.TrimSpace(e.SessionID) == "" {
		errs = append(errs, "session ID is required")
	}

	if len(e.StateHistory) == 0 {
		errs = append(errs, "state history is empty")
	} else if e.StateHistory[len(e.StateHistory)-1].State != e.CurrentState {
		errs = append(errs, "current state does not match last history entry")
	}

	for i := 0; i+1 < len(e.StateHistory); i++ {
		from := e.StateHistory[i].State
		to := e.StateHistory[i+1].State
		if _, ok := validTransitions[from]; !ok {
			errs = append(errs, fmt.Sprintf("unknown state at step %d: %s", i, from))
			continue
		}
		if !CanTransition(from, to) {
			errs = append(errs, fmt.Sprintf("invalid transition at step %d: %s -> %s", i, from, to))
		}
	}

	if e.CurrentState != StateExpired && e.IsExpired(time.Now().UTC()) {
		errs = append(errs, "engagement is expired but not in EXPIRED state - system integrity violation")
	}

	return errs
}
