package detector

import (
	"time"

	"arbscan/internal/market"
	"arbscan/internal/models"
)

const baseRiskScore = 5.0

// RiskInputs carries the signals the scorer reads. Reliability is optional;
// a missing or empty slice contributes nothing.
type RiskInputs struct {
	CommenceTime time.Time
	Sport        string
	Book         market.Book
	Reliability  []models.BookmakerStatus
}

// ScoreRisk produces a 1-10 heuristic risk score for an opportunity on the
// given market. A sub-signal that cannot be computed (zero commence time,
// empty book) simply contributes nothing; scoring never fails.
func ScoreRisk(now time.Time, in RiskInputs, volatileSports map[string]struct{}) float64 {
	score := baseRiskScore

	if !in.CommenceTime.IsZero() {
		hours := in.CommenceTime.Sub(now).Hours()
		switch {
		case hours < 1:
			score += 2
		case hours < 24:
			score += 1
		case hours > 168:
			score += 1
		}
	}

	switch n := len(in.Book); {
	case n >= 4:
		score -= 1
	case n == 2:
		score += 1
	}

	oldest := 0.0
	for _, quote := range in.Book {
		if quote.CapturedAt.IsZero() {
			continue
		}
		age := now.Sub(quote.CapturedAt).Minutes()
		if age > oldest {
			oldest = age
		}
	}
	if oldest > 10 {
		score += 1
	}
	if oldest > 30 {
		score += 2
	}

	if _, ok := volatileSports[in.Sport]; ok {
		score += 0.5
	}

	if len(in.Reliability) > 0 {
		sum := 0.0
		for _, st := range in.Reliability {
			sum += st.ReliabilityScore
		}
		if sum/float64(len(in.Reliability)) < 4 {
			score += 0.5
		}
	}

	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
