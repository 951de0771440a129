package engagement

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/seekreap/engagement-hub/internal/domain/engagement"
	"github.com/seekreap/engagement-hub/internal/domain/event"
	"github.com/seekreap/engagement-hub/internal/domain/fraud"
)

// Service is the only mutator of engagement records. A per-session mutex
// serializes every operation touching the same session; operations on
// distinct sessions run fully in parallel. Expiry is enforced on every
// access path before any state is observed or mutated.
//
// Atomicity holds within a single process. Horizontal scaling would require
// a distributed lock and a shared store behind the same interfaces.
type Service struct {
	store         domain.Store
	fraudChecker  fraud.Checker
	events        event.Publisher
	engagementTTL time.Duration
	tokenTTL      time.Duration
	maxAttempts   int
	logger        zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a keyed mutex with a waiter count so idle entries can be
// dropped from the lock map without racing late acquirers.
type sessionLock struct {
	sync.Mutex
	refs int
}

// NewService creates an engagement service. A nil fraud checker accepts all
// evidence; a nil publisher disables lifecycle events.
func NewService(store domain.Store, fraudChecker fraud.Checker, events event.Publisher, engagementTTL, tokenTTL time.Duration, maxAttempts int, logger zerolog.Logger) *Service {
	if fraudChecker == nil {
		fraudChecker = fraud.NopChecker{}
	}
	return &Service{
		store:         store,
		fraudChecker:  fraudChecker,
		events:        events,
		engagementTTL: engagementTTL,
		tokenTTL:      tokenTTL,
		maxAttempts:   maxAttempts,
		logger:        logger.With().Str("service", "engagement").Logger(),
		locks:         make(map[string]*sessionLock),
	}
}

// acquireSession locks the session's mutex, creating it if absent.
func (s *Service) acquireSession(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

// acquireExisting locks the session's mutex only if one already exists.
// The re-entry operations require it: a missing lock means no engagement
// was ever created for the session (or its lifecycle already ended).
func (s *Service) acquireExisting(sessionID string) *sessionLock {
	s.mu.Lock()
	l := s.locks[sessionID]
	if l != nil {
		l.refs++
	}
	s.mu.Unlock()

	if l == nil {
		return nil
	}
	l.Lock()
	return l
}

// release unlocks the session mutex. With dropIfIdle, the map entry is
// removed once the last holder releases it; purely a memory bound, since a
// fresh mutex is equivalent to the old one when nothing is protected by it.
func (s *Service) release(sessionID string, l *sessionLock, dropIfIdle bool) {
	l.Unlock()
	s.mu.Lock()
	l.refs--
	if dropIfIdle && l.refs == 0 && s.locks[sessionID] == l {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

// Create creates a new engagement for the session. At most one non-terminal
// engagement may exist per session at any instant.
func (s *Service) Create(ctx context.Context, sessionID string) (*domain.Engagement, error) {
	l := s.acquireSession(sessionID)
	defer s.release(sessionID, l, false)

	active, _, err := s.activeLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrActiveEngagementExists
	}

	e := domain.New(sessionID, s.engagementTTL)
	if err := s.store.Insert(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("engagement_id", e.ID.String()).
		Str("session_id", sessionID).
		Time("expires_at", e.ExpiresAt).
		Msg("engagement created")
	s.publish("engagement.created", e)
	return e, nil
}

// GetActive returns the session's active engagement, or nil. An engagement
// whose window just passed is forced into EXPIRED and reported as nil.
func (s *Service) GetActive(ctx context.Context, sessionID string) (*domain.Engagement, error) {
	l := s.acquireExisting(sessionID)
	if l == nil {
		// No lock means no active engagement can exist for the session;
		// reading without one is safe.
		return nil, nil
	}
	defer s.release(sessionID, l, false)

	active, _, err := s.activeLocked(ctx, sessionID)
	return active, err
}

// GetByID returns an engagement by id with an ownership check against the
// session. Unlike GetActive, an expired record is still returned after the
// forced transition.
func (s *Service) GetByID(ctx context.Context, sessionID string, id uuid.UUID) (*domain.Engagement, error) {
	l := s.acquireExisting(sessionID)
	if l != nil {
		defer s.release(sessionID, l, false)
	}

	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.SessionID != sessionID {
		return nil, nil
	}
	if e.CheckExpiry() {
		if err := s.store.Update(ctx, e); err != nil {
			return nil, err
		}
		s.publish("engagement.expired", e)
	}
	return e, nil
}

// Complete records submitted evidence and transitions the engagement to
// COMPLETED. The fraud checker runs first; its assessment is recorded in
// the transition metadata.
func (s *Service) Complete(ctx context.Context, sessionID string, evidence json.RawMessage) (*domain.Engagement, error) {
	l := s.acquireExisting(sessionID)
	if l == nil {
		return nil, domain.ErrNoActiveSession
	}
	defer s.release(sessionID, l, false)

	e, justExpired, err := s.activeLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if justExpired != nil {
		return nil, domain.ErrEngagementExpired
	}
	if e == nil {
		return nil, domain.ErrNoActiveEngagement
	}

	assessment, err := s.fraudChecker.Assess(ctx, e, evidence)
	if err != nil {
		s.logger.Warn().Err(err).Str("engagement_id", e.ID.String()).Msg("fraud check failed")
		assessment = nil
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"evidenceSubmitted": true,
		"evidence":          evidence,
		"fraudAssessment":   assessment,
	})

	if !e.Transition(domain.StateCompleted, "user", meta) {
		// Expiry between the check above and the transition is the only
		// way current state moved; anything else is an illegal request.
		if e.CurrentState == domain.StateExpired {
			if err := s.store.Update(ctx, e); err != nil {
				return nil, err
			}
			s.publish("engagement.expired", e)
			return nil, domain.ErrEngagementExpired
		}
		return nil, domain.ErrCompletionFailed
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("engagement_id", e.ID.String()).
		Str("session_id", sessionID).
		Msg("engagement completed")
	s.publish("engagement.completed", e)
	return e, nil
}

// PrepareVerification issues the verification challenge for the session's
// active engagement, transitioning COMPLETED to PENDING_VERIFICATION. The
// token comes from the caller (the delivery channel is an external
// collaborator); Verify later compares attempts against it.
func (s *Service) PrepareVerification(ctx context.Context, sessionID, token string) (*domain.Engagement, error) {
	l := s.acquireExisting(sessionID)
	if l == nil {
		return nil, domain.ErrNoActiveSession
	}
	defer s.release(sessionID, l, false)

	e, justExpired, err := s.activeLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if justExpired != nil {
		return nil, domain.ErrEngagementExpired
	}
	if e == nil {
		return nil, domain.ErrNoActiveEngagement
	}

	if !e.PrepareForVerification(token, s.tokenTTL, s.maxAttempts) {
		return nil, domain.ErrVerificationNotReady
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("engagement_id", e.ID.String()).
		Str("session_id", sessionID).
		Time("token_expires_at", e.Verification.TokenExpiresAt).
		Msg("verification prepared")
	s.publish("engagement.pending_verification", e)
	return e, nil
}

// Verify checks a verification token against the engagement's challenge and
// transitions to VERIFIED on success. A call from COMPLETED issues the
// challenge from the supplied token first; wrong tokens accumulate attempts
// until maxAttempts fails the engagement.
func (s *Service) Verify(ctx context.Context, sessionID, token string) (*domain.Engagement, error) {
	l := s.acquireExisting(sessionID)
	if l == nil {
		return nil, domain.ErrNoActiveSession
	}
	defer s.release(sessionID, l, false)

	e, justExpired, err := s.activeLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if justExpired != nil {
		return nil, domain.ErrEngagementExpired
	}
	if e == nil {
		return nil, domain.ErrNoActiveEngagement
	}

	if !e.PrepareForVerification(token, s.tokenTTL, s.maxAttempts) {
		return nil, domain.ErrVerificationNotReady
	}
	if e.Verification == nil {
		return nil, domain.ErrVerificationMetadata
	}

	now := time.Now().UTC()
	if e.Verification.Token != token {
		e.Verification.Attempts++
		e.Verification.LastAttempt = &now

		if e.Verification.Attempts >= e.Verification.MaxAttempts {
			meta, _ := json.Marshal(map[string]string{"reason": "max_verification_attempts_exceeded"})
			e.Transition(domain.StateFailed, "verification", meta)
			if err := s.store.Update(ctx, e); err != nil {
				return nil, err
			}
			s.logger.Warn().
				Str("engagement_id", e.ID.String()).
				Str("session_id", sessionID).
				Msg("verification attempts exhausted")
			s.publish("engagement.failed", e)
			return nil, domain.ErrMaxAttemptsExceeded
		}

		if err := s.store.Update(ctx, e); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidToken
	}

	if e.Verification.TokenExpiresAt.Before(now) {
		if err := s.store.Update(ctx, e); err != nil {
			return nil, err
		}
		return nil, domain.ErrTokenExpired
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"attempts":   e.Verification.Attempts,
		"verifiedAt": now,
	})
	if !e.Transition(domain.StateVerified, "verification", meta) {
		// Unreachable given the checks above; kept as a guard.
		if err := s.store.Update(ctx, e); err != nil {
			return nil, err
		}
		return nil, domain.ErrVerificationFailed
	}
	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("engagement_id", e.ID.String()).
		Str("session_id", sessionID).
		Int("attempts", e.Verification.Attempts).
		Msg("engagement verified")
	s.publish("engagement.verified", e)
	return e, nil
}

// ForceExpire pushes the active engagement's window into the past and runs
// the expiry check. Admin and test hook. Returns whether a transition
// occurred.
func (s *Service) ForceExpire(ctx context.Context, sessionID string) (bool, error) {
	l := s.acquireExisting(sessionID)
	if l == nil {
		return false, nil
	}
	defer s.release(sessionID, l, true)

	e, err := s.store.FindActiveBySession(ctx, sessionID)
	if err != nil || e == nil {
		return false, err
	}

	e.ExpiresAt = time.Now().UTC().Add(-time.Second)
	expired := e.CheckExpiry()
	if err := s.store.Update(ctx, e); err != nil {
		return false, err
	}
	if expired {
		s.publish("engagement.expired", e)
	}
	return expired, nil
}

// IsVerificationReady reports whether the session's active engagement can
// begin verification.
func (s *Service) IsVerificationReady(ctx context.Context, sessionID string) bool {
	e, err := s.GetActive(ctx, sessionID)
	if err != nil || e == nil {
		return false
	}
	return domain.CanStartVerification(e.CurrentState)
}

// Validate runs the diagnostic integrity checks. No mutation.
func (s *Service) Validate(e *domain.Engagement) []string {
	return e.Validate()
}

// All returns every stored engagement. Admin and debugging hook.
func (s *Service) All(ctx context.Context) ([]*domain.Engagement, error) {
	return s.store.All(ctx)
}

// SweepExpired forces expiry on every stale active engagement. Driven by
// the background ticker in cmd/server; individual requests do not depend on
// it because every access path checks expiry itself.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	sessions := make(map[string]struct{})
	for _, e := range all {
		if domain.IsActiveState(e.CurrentState) && e.IsExpired(now) {
			sessions[e.SessionID] = struct{}{}
		}
	}

	expired := 0
	for sessionID := range sessions {
		l := s.acquireSession(sessionID)
		_, justExpired, err := s.activeLocked(ctx, sessionID)
		s.release(sessionID, l, justExpired != nil)
		if err != nil {
			return expired, err
		}
		if justExpired != nil {
			expired++
		}
	}
	return expired, nil
}

// activeLocked finds the session's non-terminal engagement and enforces
// expiry on it. Must be called with the session lock held. Returns the
// engagement when it is still active, or separately when this call just
// forced it into EXPIRED.
func (s *Service) activeLocked(ctx context.Context, sessionID string) (active, justExpired *domain.Engagement, err error) {
	e, err := s.store.FindActiveBySession(ctx, sessionID)
	if err != nil || e == nil {
		return nil, nil, err
	}
	if e.CheckExpiry() {
		if err := s.store.Update(ctx, e); err != nil {
			return nil, nil, err
		}
		s.publish("engagement.expired", e)
		return nil, e, nil
	}
	return e, nil, nil
}

func (s *Service) publish(eventType string, e *domain.Engagement) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"engagementId":  e.ID.String(),
		"sessionId":     e.SessionID,
		"currentState":  e.CurrentState,
		"previousState": e.PreviousState,
		"expiresAt":     e.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal engagement event")
		return
	}
	s.events.Publish(event.New(eventType, e.SessionID, data))
}
