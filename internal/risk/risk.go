// Package risk folds perspective results into a single risk score.
package risk

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/baby-monitor/internal/perspective"
)

// DefaultMinConfidence is the notification threshold used when none is configured.
const DefaultMinConfidence = 0.7

// proneIdleScore is the fixed score for a prone, motionless child.
const proneIdleScore = 0.6

// Reasons reported in an Evaluation.
const (
	ReasonAnalysisFailed = "analysis_failed"
	ReasonNoAnalysis     = "no_analysis"
	ReasonDetectedDanger = "detected_danger"
	ReasonProneIdle      = "prolonged_prone_idle"
	ReasonNormal         = "normal"
)

// Evaluation is the aggregated risk for one frame.
type Evaluation struct {
	RiskScore float64 `json:"risk_score"`
	Message   string  `json:"message"`
	Reason    string  `json:"reason"`
}

// Evaluator scores analyses and applies the notification threshold.
type Evaluator struct {
	minConfidence float64
}

// NewEvaluator returns an Evaluator that notifies at or above minConfidence.
// A non-positive value selects DefaultMinConfidence.
func NewEvaluator(minConfidence float64) *Evaluator {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Evaluator{minConfidence: minConfidence}
}

// MinConfidence returns the notification threshold.
func (e *Evaluator) MinConfidence() float64 { return e.minConfidence }

// Evaluate scores a. The score is the maximum over the contributing results:
// danger contributes its confidence and prone+idle contributes 0.6. Messages
// are joined with ", " and reasons with "+" in result order.
func (e *Evaluator) Evaluate(a *perspective.Aggregated) Evaluation {
	if a == nil {
		return Evaluation{Message: "analysis result unavailable", Reason: ReasonAnalysisFailed}
	}
	if len(a.Analyses) == 0 {
		return Evaluation{Message: "analysis result was empty", Reason: ReasonNoAnalysis}
	}

	var (
		score    float64
		messages []string
		reasons  []string
	)
	for _, r := range a.Analyses {
		switch {
		case r.Status == perspective.StatusDanger:
			score = max(score, r.Confidence)
			messages = append(messages, fmt.Sprintf("danger detected from %s perspective", r.Perspective))
			reasons = append(reasons, ReasonDetectedDanger)
		case r.Posture == perspective.PostureProne && r.Action == perspective.ActionIdle:
			score = max(score, proneIdleScore)
			messages = append(messages, fmt.Sprintf("prolonged prone posture detected from %s perspective", r.Perspective))
			reasons = append(reasons, ReasonProneIdle)
		}
	}

	if len(messages) == 0 {
		return Evaluation{Message: "state normal", Reason: ReasonNormal}
	}
	return Evaluation{
		RiskScore: score,
		Message:   strings.Join(messages, ", "),
		Reason:    strings.Join(reasons, "+"),
	}
}

// ShouldNotify reports whether ev reaches the threshold, inclusive.
func (e *Evaluator) ShouldNotify(ev Evaluation) bool {
	notify := ev.RiskScore >= e.minConfidence
	log.Debug().
		Float64("riskScore", ev.RiskScore).
		Float64("threshold", e.minConfidence).
		Bool("notify", notify).
		Msg("Notification decision")
	return notify
}
