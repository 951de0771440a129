package engagement

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTransitionTable(t *testing.T) {
	legal := map[State][]State{
		StateCreated:             {StateCompleted, StateFailed, StateExpired},
		StateCompleted:           {StatePendingVerification, StateFailed, StateExpired},
		StatePendingVerification: {StateVerified, StateFailed, StateExpired},
		StateVerified:            {},
		StateExpired:             {},
		StateFailed:              {},
	}
	all := []State{StateCreated, StateCompleted, StatePendingVerification, StateVerified, StateExpired, StateFailed}

	for from, allowed := range legal {
		allowedSet := make(map[State]bool)
		for _, s := range allowed {
			allowedSet[s] = true
		}
		for _, to := range all {
			if CanTransition(from, to) != allowedSet[to] {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, !allowedSet[to], allowedSet[to])
			}
		}
	}
}

func TestCanTransitionUnknownTarget(t *testing.T) {
	if CanTransition(StateCreated, State("BOGUS")) {
		t.Fatal("unknown target state must not be transitionable")
	}
}

func TestCanTransitionUnknownFromPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown from state")
		}
	}()
	CanTransition(State("BOGUS"), StateCompleted)
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []State{StateVerified, StateExpired, StateFailed} {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
		if IsActiveState(s) {
			t.Errorf("%s should not be active", s)
		}
	}
	for _, s := range []State{StateCreated, StateCompleted, StatePendingVerification} {
		if IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanStartVerification(t *testing.T) {
	if !CanStartVerification(StateCompleted) {
		t.Fatal("COMPLETED should allow verification start")
	}
	for _, s := range []State{StateCreated, StatePendingVerification, StateVerified, StateExpired, StateFailed} {
		if CanStartVerification(s) {
			t.Errorf("%s should not allow verification start", s)
		}
	}
}

func TestNewEngagement(t *testing.T) {
	e := New("s1", 30*time.Minute)

	if e.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if e.CurrentState != StateCreated {
		t.Fatalf("expected CREATED, got %s", e.CurrentState)
	}
	if len(e.StateHistory) != 1 || e.StateHistory[0].State != StateCreated {
		t.Fatal("expected single-entry history seeded with CREATED")
	}
	if e.StateHistory[0].TriggeredBy != "system" {
		t.Fatalf("expected system trigger, got %s", e.StateHistory[0].TriggeredBy)
	}
	window := e.ExpiresAt.Sub(e.CreatedAt)
	if window < 29*time.Minute || window > 31*time.Minute {
		t.Fatalf("expected ~30m window, got %s", window)
	}
}

func TestTransitionUpdatesHistoryAndTimestamps(t *testing.T) {
	e := New("s1", 30*time.Minute)

	if !e.Transition(StateCompleted, "user", nil) {
		t.Fatal("CREATED -> COMPLETED should succeed")
	}
	if e.CurrentState != StateCompleted || e.PreviousState != StateCreated {
		t.Fatalf("unexpected states: current=%s previous=%s", e.CurrentState, e.PreviousState)
	}
	if e.CompletedAt == nil {
		t.Fatal("expected completedAt set")
	}
	if last := e.StateHistory[len(e.StateHistory)-1]; last.State != e.CurrentState {
		t.Fatalf("history tail %s != current %s", last.State, e.CurrentState)
	}
}

func TestTransitionIllegalIsNoOp(t *testing.T) {
	e := New("s1", 30*time.Minute)
	before := len(e.StateHistory)

	if e.Transition(StateVerified, "user", nil) {
		t.Fatal("CREATED -> VERIFIED should be rejected")
	}
	if e.CurrentState != StateCreated {
		t.Fatalf("state mutated on illegal transition: %s", e.CurrentState)
	}
	if len(e.StateHistory) != before {
		t.Fatal("history appended on illegal transition")
	}
}

func TestTransitionTerminalIsNoOp(t *testing.T) {
	e := New("s1", 30*time.Minute)
	e.Transition(StateFailed, "system", nil)

	for _, to := range []State{StateCompleted, StateVerified, StateExpired, StateFailed} {
		if e.Transition(to, "user", nil) {
			t.Fatalf("terminal engagement transitioned to %s", to)
		}
	}
	if e.CurrentState != StateFailed {
		t.Fatalf("terminal state mutated: %s", e.CurrentState)
	}
}

func TestTransitionForcesExpiry(t *testing.T) {
	e := New("s1", 30*time.Minute)
	e.ExpiresAt = time.Now().UTC().Add(-time.Second)

	if e.Transition(StateCompleted, "user", nil) {
		t.Fatal("transition past expiry should fail")
	}
	if e.CurrentState != StateExpired {
		t.Fatalf("expected forced EXPIRED, got %s", e.CurrentState)
	}
	last := e.StateHistory[len(e.StateHistory)-1]
	if last.State != StateExpired || last.TriggeredBy != "timeout" {
		t.Fatalf("unexpected forced-expiry history entry: %+v", last)
	}
}

func TestCheckExpiry(t *testing.T) {
	e := New("s1", 30*time.Minute)
	if e.CheckExpiry() {
		t.Fatal("fresh engagement should not expire")
	}

	e.ExpiresAt = time.Now().UTC().Add(-time.Second)
	if !e.CheckExpiry() {
		t.Fatal("stale engagement should expire")
	}
	if e.CurrentState != StateExpired {
		t.Fatalf("expected EXPIRED, got %s", e.CurrentState)
	}
	if e.CheckExpiry() {
		t.Fatal("expiry check on terminal engagement should be a no-op")
	}
}

func TestPrepareForVerification(t *testing.T) {
	e := New("s1", 30*time.Minute)

	if e.PrepareForVerification("tok-123", 5*time.Minute, 3) {
		t.Fatal("prepare from CREATED should fail")
	}

	e.Transition(StateCompleted, "user", nil)
	if !e.PrepareForVerification("tok-123", 5*time.Minute, 3) {
		t.Fatal("prepare from COMPLETED should succeed")
	}
	if e.CurrentState != StatePendingVerification {
		t.Fatalf("expected PENDING_VERIFICATION, got %s", e.CurrentState)
	}
	if e.Verification == nil || e.Verification.Token != "tok-123" || e.Verification.MaxAttempts != 3 {
		t.Fatalf("unexpected verification metadata: %+v", e.Verification)
	}

	// Re-preparing while pending keeps the original challenge.
	if !e.PrepareForVerification("tok-456", 5*time.Minute, 3) {
		t.Fatal("re-prepare while pending should be a no-op success")
	}
	if e.Verification.Token != "tok-123" {
		t.Fatalf("challenge token replaced: %s", e.Verification.Token)
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := New("s1", 30*time.Minute)
	e.Transition(StateCompleted, "user", json.RawMessage(`{"evidence":"x"}`))
	e.PrepareForVerification("tok-123", 5*time.Minute, 3)

	c := e.Clone()
	c.Transition(StateFailed, "verification", nil)
	c.Verification.Attempts = 2
	c.StateHistory[0].Metadata = json.RawMessage(`{}`)

	if e.CurrentState != StatePendingVerification {
		t.Fatalf("clone mutation leaked into original: %s", e.CurrentState)
	}
	if e.Verification.Attempts != 0 {
		t.Fatal("clone verification mutation leaked into original")
	}
	if string(e.StateHistory[0].Metadata) == "{}" {
		t.Fatal("clone metadata mutation leaked into original")
	}
}

func TestValidate(t *testing.T) {
	e := New("s1", 30*time.Minute)
	if errs := e.Validate(); len(errs) != 0 {
		t.Fatalf("fresh engagement should validate clean, got %v", errs)
	}

	t.Run("blank session", func(t *testing.T) {
		bad := New("  ", 30*time.Minute)
		if errs := bad.Validate(); len(errs) == 0 {
			t.Fatal("expected finding for blank session id")
		}
	})

	t.Run("history mismatch", func(t *testing.T) {
		bad := New("s1", 30*time.Minute)
		bad.CurrentState = StateCompleted
		if errs := bad.Validate(); len(errs) == 0 {
			t.Fatal("expected finding for state/history mismatch")
		}
	})

	t.Run("illegal history pair", func(t *testing.T) {
		bad := New("s1", 30*time.Minute)
		bad.StateHistory = append(bad.StateHistory, HistoryEntry{State: StateVerified, Timestamp: time.Now().UTC()})
		bad.CurrentState = StateVerified
		if errs := bad.Validate(); len(errs) == 0 {
			t.Fatal("expected finding for illegal history transition")
		}
	})

	// Regression guard: the forcing behavior on every access path means a
	// non-EXPIRED engagement past its window should never be observable.
	t.Run("integrity violation", func(t *testing.T) {
		bad := New("s1", 30*time.Minute)
		bad.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		found := false
		for _, msg := range bad.Validate() {
			if msg == "engagement is expired but not in EXPIRED state - system integrity violation" {
				found = true
			}
		}
		if !found {
			t.Fatal("expected integrity violation finding")
		}
	})
}
