package detector

import (
	"math"
	"sort"
	"time"

	"arbscan/internal/market"
)

type CalculatorConfig struct {
	// MinProfitPct is the floor below which a priced market is not worth
	// surfacing, in percent.
	MinProfitPct float64
	// TotalStake is the notional used for the stake split.
	TotalStake float64
	// TTL bounds how long a detected opportunity stays actionable.
	TTL time.Duration
}

// Candidate is a priced arbitrage on one market, ready for persistence.
// Stakes and Odds map bookmaker -> outcome; each outcome appears under the
// single bookmaker whose price was used.
type Candidate struct {
	MarketType       string
	ProfitPercentage float64
	TotalStake       float64
	ExpectedProfit   float64
	Stakes           map[string]map[string]float64
	Odds             map[string]map[string]float64
	DetectedAt       time.Time
	ExpiresAt        time.Time
}

// Calculate decides whether book contains a risk-free price disagreement and
// if so computes the stake split. Pure function: persistence is the caller's
// job. Returns false when no opportunity exists.
//
// When several bookmakers quote the identical best price for an outcome, the
// lexicographically smallest bookmaker identifier wins, so results do not
// depend on map iteration order.
func Calculate(marketType string, book market.Book, now time.Time, cfg CalculatorConfig) (Candidate, bool) {
	if len(book) < 2 {
		return Candidate{}, false
	}

	bookmakers := make([]string, 0, len(book))
	for name := range book {
		bookmakers = append(bookmakers, name)
	}
	sort.Strings(bookmakers)

	outcomeSet := map[string]struct{}{}
	for _, name := range bookmakers {
		for outcome := range book[name].Odds {
			outcomeSet[outcome] = struct{}{}
		}
	}
	if len(outcomeSet) < 2 {
		return Candidate{}, false
	}
	outcomes := make([]string, 0, len(outcomeSet))
	for outcome := range outcomeSet {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	bestOdds := map[string]float64{}
	bestBookmaker := map[string]string{}
	for _, outcome := range outcomes {
		best := 0.0
		for _, name := range bookmakers {
			odds := book[name].Odds[outcome]
			if odds > best {
				best = odds
				bestBookmaker[outcome] = name
			}
		}
		if best > 0 {
			bestOdds[outcome] = best
		}
	}
	// Incomplete market: some outcome has no positive price anywhere.
	if len(bestOdds) != len(outcomes) {
		return Candidate{}, false
	}

	totalImplied := 0.0
	implied := map[string]float64{}
	for outcome, odds := range bestOdds {
		implied[outcome] = 1 / odds
		totalImplied += implied[outcome]
	}
	if totalImplied >= 1.0 {
		return Candidate{}, false
	}

	profitPct := (1 - totalImplied) / totalImplied * 100
	if profitPct < cfg.MinProfitPct {
		return Candidate{}, false
	}

	totalStake := cfg.TotalStake
	if totalStake <= 0 {
		totalStake = 1000
	}

	cand := Candidate{
		MarketType:       marketType,
		ProfitPercentage: round2(profitPct),
		TotalStake:       totalStake,
		ExpectedProfit:   round2(totalStake * profitPct / 100),
		Stakes:           map[string]map[string]float64{},
		Odds:             map[string]map[string]float64{},
		DetectedAt:       now,
		ExpiresAt:        now.Add(cfg.TTL),
	}
	for _, outcome := range outcomes {
		name := bestBookmaker[outcome]
		if cand.Stakes[name] == nil {
			cand.Stakes[name] = map[string]float64{}
			cand.Odds[name] = map[string]float64{}
		}
		cand.Stakes[name][outcome] = round2(implied[outcome] / totalImplied * totalStake)
		cand.Odds[name][outcome] = bestOdds[outcome]
	}
	return cand, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
