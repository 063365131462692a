package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Verdict is the structured secondary assessment of an opportunity, either
// model-produced or rule-based. All bounds are enforced before persistence.
type Verdict struct {
	AIScore             float64  `json:"ai_score"`
	RiskLevel           int      `json:"risk_level"`
	ExecutionDifficulty string   `json:"execution_difficulty"`
	RecommendedAction   string   `json:"recommended_action"`
	Confidence          float64  `json:"confidence"`
	KeyFactors          []string `json:"key_factors"`
	Warnings            []string `json:"warnings"`
	ExecutionPriority   string   `json:"execution_priority"`
	Reasoning           string   `json:"reasoning"`
	AnalysisTimestamp   string   `json:"analysis_timestamp"`
	ModelUsed           string   `json:"model_used"`
}

const (
	maxKeyFactors   = 5
	maxWarnings     = 3
	maxReasoningLen = 500
)

// parseVerdict extracts the first JSON object from a model reply and
// sanitizes it. Model output is untrusted: every field is clamped or
// defaulted.
func parseVerdict(reply, model string, now time.Time) (Verdict, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end <= start {
		return Verdict{}, fmt.Errorf("no JSON object in model reply")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode model reply: %w", err)
	}
	return sanitize(v, model, now), nil
}

func sanitize(v Verdict, model string, now time.Time) Verdict {
	v.AIScore = clamp(v.AIScore, 1, 10)
	v.RiskLevel = int(clamp(float64(v.RiskLevel), 1, 5))
	v.Confidence = clamp(v.Confidence, 0, 1)
	if !oneOf(v.ExecutionDifficulty, "easy", "medium", "hard") {
		v.ExecutionDifficulty = "medium"
	}
	if !oneOf(v.RecommendedAction, "execute", "monitor", "skip") {
		v.RecommendedAction = "monitor"
	}
	if !oneOf(v.ExecutionPriority, "high", "medium", "low") {
		v.ExecutionPriority = "medium"
	}
	if len(v.KeyFactors) > maxKeyFactors {
		v.KeyFactors = v.KeyFactors[:maxKeyFactors]
	}
	if len(v.Warnings) > maxWarnings {
		v.Warnings = v.Warnings[:maxWarnings]
	}
	if v.Reasoning == "" {
		v.Reasoning = "analysis completed"
	}
	if len(v.Reasoning) > maxReasoningLen {
		v.Reasoning = v.Reasoning[:maxReasoningLen]
	}
	v.AnalysisTimestamp = now.Format(time.RFC3339)
	v.ModelUsed = model
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// fallbackVerdict is the deterministic rule-based score used whenever the
// model is unavailable or its reply cannot be parsed. Derived from profit
// percentage, risk score and time-to-event only, so repeated calls with the
// same inputs agree.
func fallbackVerdict(profitPct, riskScore, hoursToEvent float64, now time.Time) Verdict {
	score := 5.0
	if profitPct > 5 {
		score += 2
	} else if profitPct > 3 {
		score += 1
	}
	if riskScore < 3 {
		score += 1
	} else if riskScore > 7 {
		score -= 2
	}
	if hoursToEvent < 2 {
		score -= 1
	} else if hoursToEvent > 48 {
		score += 1
	}
	score = clamp(score, 1, 10)

	action := "skip"
	if score >= 7 {
		action = "execute"
	} else if score >= 4 {
		action = "monitor"
	}
	priority := "low"
	if score >= 8 {
		priority = "high"
	} else if score >= 5 {
		priority = "medium"
	}
	return Verdict{
		AIScore:             score,
		RiskLevel:           int(clamp(riskScore/2, 1, 5)),
		ExecutionDifficulty: "medium",
		RecommendedAction:   action,
		Confidence:          0.6,
		KeyFactors:          []string{"profit_margin", "risk_assessment", "time_factor"},
		Warnings:            []string{"model analysis unavailable, rule-based assessment used"},
		ExecutionPriority:   priority,
		Reasoning:           fmt.Sprintf("rule-based assessment: %.1f/10 from profit margin, risk and timing", score),
		AnalysisTimestamp:   now.Format(time.RFC3339),
		ModelUsed:           "rule_based_fallback",
	}
}
