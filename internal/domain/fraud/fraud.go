package fraud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/seekreap/engagement-hub/internal/domain/engagement"
)

// Assessment is the outcome of a fraud check on submitted evidence.
type Assessment struct {
	Score       float64   `json:"score"`
	Flagged     bool      `json:"flagged"`
	Reasons     []string  `json:"reasons,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Checker is the hook the engagement service calls when evidence is
// submitted. Implementations must not mutate the engagement.
type Checker interface {
	Assess(ctx context.Context, e *engagement.Engagement, evidence json.RawMessage) (*Assessment, error)
}

// NopChecker accepts everything.
type NopChecker struct{}

func (NopChecker) Assess(ctx context.Context, e *engagement.Engagement, evidence json.RawMessage) (*Assessment, error) {
	return &Assessment{EvaluatedAt: time.Now().UTC()}, nil
}
