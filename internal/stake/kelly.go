// Package stake converts a stored opportunity into a bankroll-aware
// recommendation using fractional Kelly sizing. It never mutates the
// opportunity: allocation is a read-only projection.
package stake

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"arbscan/internal/config"
	"arbscan/internal/models"
)

type Allocator struct {
	Config config.StakeConfig
}

type Leg struct {
	Bookmaker string          `json:"bookmaker"`
	Outcome   string          `json:"outcome"`
	Odds      float64         `json:"odds"`
	Fraction  float64         `json:"kelly_fraction"`
	Stake     decimal.Decimal `json:"stake"`
}

type Allocation struct {
	Legs        []Leg           `json:"legs"`
	TotalStake  decimal.Decimal `json:"total_stake"`
	BankrollPct float64         `json:"bankroll_percentage"`
}

// Allocate sizes each (bookmaker, outcome) leg of the opportunity against
// the given bankroll. Legs whose scaled Kelly fraction is non-positive are
// allocated nothing; positive allocations are floored at the configured
// minimum stake. Bankroll must be positive.
func (a Allocator) Allocate(opp *models.ArbitrageOpportunity, bankroll float64) (Allocation, error) {
	out := Allocation{TotalStake: decimal.Zero}
	if opp == nil {
		return out, fmt.Errorf("nil opportunity")
	}
	if bankroll <= 0 {
		return out, fmt.Errorf("bankroll must be positive, got %v", bankroll)
	}
	var oddsByBook map[string]map[string]float64
	if err := json.Unmarshal(opp.BookmakerOdds, &oddsByBook); err != nil {
		return out, fmt.Errorf("decode bookmaker odds: %w", err)
	}

	bookmakers := make([]string, 0, len(oddsByBook))
	for name := range oddsByBook {
		bookmakers = append(bookmakers, name)
	}
	sort.Strings(bookmakers)

	total := decimal.Zero
	for _, name := range bookmakers {
		outcomes := make([]string, 0, len(oddsByBook[name]))
		for outcome := range oddsByBook[name] {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)
		for _, outcome := range outcomes {
			odds := oddsByBook[name][outcome]
			if odds <= 1 {
				continue
			}
			fraction := a.kellyFraction(odds)
			if fraction <= 0 {
				continue
			}
			amount := bankroll * fraction * (a.Config.MaxStakePct / 100)
			if amount < a.Config.MinStake {
				amount = a.Config.MinStake
			}
			stake := decimal.NewFromFloat(amount).Round(2)
			out.Legs = append(out.Legs, Leg{
				Bookmaker: name,
				Outcome:   outcome,
				Odds:      odds,
				Fraction:  fraction,
				Stake:     stake,
			})
			total = total.Add(stake)
		}
	}
	out.TotalStake = total
	pct, _ := total.Div(decimal.NewFromFloat(bankroll)).Mul(decimal.NewFromInt(100)).Round(4).Float64()
	out.BankrollPct = pct
	return out, nil
}

// kellyFraction computes the safety-scaled Kelly fraction for one leg. The
// assumed true probability is the implied probability inflated by the
// configured edge factor, capped at 0.95 so the sizing never assumes a
// certainty.
func (a Allocator) kellyFraction(odds float64) float64 {
	implied := 1 / odds
	trueProb := implied * (1 + a.Config.EdgeFactor)
	if trueProb > 0.95 {
		trueProb = 0.95
	}
	b := odds - 1
	f := (b*trueProb - (1 - trueProb)) / b
	return f * a.Config.KellyFraction
}
