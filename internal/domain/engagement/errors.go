package engagement

// Error is a typed domain error carrying a stable machine-readable code and
// an HTTP-style status hint. Callers branch on Code; the HTTP adapter maps
// Status 1:1.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrActiveEngagementExists = &Error{Code: "ACTIVE_ENGAGEMENT_EXISTS", Message: "session already has an active engagement", Status: 409}
	ErrNoActiveSession        = &Error{Code: "NO_ACTIVE_SESSION", Message: "no active session found", Status: 404}
	ErrNoActiveEngagement     = &Error{Code: "NO_ACTIVE_ENGAGEMENT", Message: "no active engagement found", Status: 404}
	ErrEngagementExpired      = &Error{Code: "ENGAGEMENT_EXPIRED", Message: "engagement has expired", Status: 410}
	ErrCompletionFailed       = &Error{Code: "COMPLETION_FAILED", Message: "cannot complete engagement", Status: 400}
	ErrVerificationNotReady   = &Error{Code: "VERIFICATION_NOT_READY", Message: "engagement is not ready for verification", Status: 400}
	ErrVerificationMetadata   = &Error{Code: "VERIFICATION_METADATA_MISSING", Message: "verification metadata not found", Status: 500}
	ErrMaxAttemptsExceeded    = &Error{Code: "MAX_ATTEMPTS_EXCEEDED", Message: "maximum verification attempts exceeded", Status: 429}
	ErrInvalidToken           = &Error{Code: "INVALID_TOKEN", Message: "invalid verification token", Status: 401}
	ErrTokenExpired           = &Error{Code: "TOKEN_EXPIRED", Message: "verification token has expired", Status: 401}
	ErrVerificationFailed     = &Error{Code: "VERIFICATION_FAILED", Message: "verification transition failed", Status: 500}
)
