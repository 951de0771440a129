package fraud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/rs/zerolog"

	"github.com/seekreap/engagement-hub/internal/domain/engagement"
	domainFraud "github.com/seekreap/engagement-hub/internal/domain/fraud"
)

// Rule is a weighted expression evaluated against submitted evidence.
type Rule struct {
	Name       string
	Expression string
	Weight     float64
}

// RuleChecker scores evidence with expression rules. The score is the sum
// of the weights of matched rules; at or above the threshold the evidence
// is flagged.
type RuleChecker struct {
	rules     []Rule
	threshold float64
	logger    zerolog.Logger
}

// NewRuleChecker creates a rule-based fraud checker.
func NewRuleChecker(rules []Rule, threshold float64, logger zerolog.Logger) *RuleChecker {
	return &RuleChecker{
		rules:     rules,
		threshold: threshold,
		logger:    logger.With().Str("service", "fraud").Logger(),
	}
}

// DefaultRules covers the common self-evident evidence anomalies.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "empty_evidence", Expression: "evidence_size == 0", Weight: 0.5},
		{Name: "self_reported_failure", Expression: "failed == true", Weight: 0.8},
		{Name: "suspicious_duration", Expression: "duration_ms < 500", Weight: 0.4},
	}
}

// Assess evaluates each rule against the evidence payload. A rule that
// fails to parse or evaluate is skipped; rules operate on best effort over
// opaque evidence.
func (c *RuleChecker) Assess(ctx context.Context, e *engagement.Engagement, evidence json.RawMessage) (*domainFraud.Assessment, error) {
	params := buildEvidenceParams(evidence)
	params["session_id"] = e.SessionID
	params["engagement_age_seconds"] = time.Now().UTC().Sub(e.CreatedAt).Seconds()

	assessment := &domainFraud.Assessment{EvaluatedAt: time.Now().UTC()}
	for _, rule := range c.rules {
		expr, err := govaluate.NewEvaluableExpression(rule.Expression)
		if err != nil {
			c.logger.Warn().Err(err).Str("rule", rule.Name).Msg("invalid fraud rule expression")
			continue
		}
		result, err := expr.Evaluate(params)
		if err != nil {
			continue
		}
		matched, ok := result.(bool)
		if !ok || !matched {
			continue
		}
		assessment.Score += rule.Weight
		assessment.Reasons = append(assessment.Reasons, rule.Name)
	}
	assessment.Flagged = assessment.Score >= c.threshold

	if assessment.Flagged {
		c.logger.Warn().
			Str("engagement_id", e.ID.String()).
			Float64("score", assessment.Score).
			Strs("reasons", assessment.Reasons).
			Msg("evidence flagged")
	}
	return assessment, nil
}

func buildEvidenceParams(evidence json.RawMessage) map[string]interface{} {
	params := map[string]interface{}{
		"evidence_size": float64(len(evidence)),
	}
	if len(evidence) == 0 {
		return params
	}
	var raw interface{}
	if err := json.Unmarshal(evidence, &raw); err != nil {
		return params
	}
	if m, ok := raw.(map[string]interface{}); ok {
		for k, v := range m {
			params[k] = v
		}
		flattenParams("", m, params)
	}
	return params
}

func flattenParams(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flattenParams(key, vv, out)
		default:
			out[key] = vv
		}
	}
}
