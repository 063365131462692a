// Package analyzer produces the secondary opportunity score: a language
// model assessment with a deterministic rule-based fallback. Analysis
// failures never fail the calling cycle.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"arbscan/internal/config"
	"arbscan/internal/models"
	"arbscan/internal/repository"
)

const systemPrompt = "You are an expert sports betting arbitrage analyst. " +
	"Analyze the provided opportunity and provide a detailed assessment with scores and recommendations."

type Analyzer struct {
	Repo   repository.Repository
	Chat   ChatClient
	Logger *zap.Logger
	Config config.AnalyzerConfig

	// Now is overridable for tests; defaults to time.Now in UTC.
	Now func() time.Time
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

// RunCycle analyzes a bounded batch of unexpired detected opportunities,
// highest profit first. The batch bound caps call volume to the model. A
// failure on one opportunity skips that item only.
func (a *Analyzer) RunCycle(ctx context.Context) error {
	if a == nil || a.Repo == nil {
		return nil
	}
	batch := a.Config.BatchSize
	if batch <= 0 {
		batch = 5
	}
	items, err := a.Repo.ListUnanalyzedOpportunities(ctx, a.now(), batch)
	if err != nil {
		return fmt.Errorf("list unanalyzed opportunities: %w", err)
	}
	analyzed := 0
	for i := range items {
		if _, err := a.Analyze(ctx, items[i].ID); err != nil {
			if a.Logger != nil {
				a.Logger.Warn("opportunity analysis failed",
					zap.String("opportunity_id", items[i].ID),
					zap.Error(err),
				)
			}
			continue
		}
		analyzed++
	}
	if a.Logger != nil && len(items) > 0 {
		a.Logger.Info("analysis batch complete", zap.Int("analyzed", analyzed), zap.Int("batch", len(items)))
	}
	return nil
}

// Analyze scores one opportunity and persists the verdict, transitioning the
// opportunity to analyzed. Model unavailability or an unparseable reply
// falls back to the rule-based verdict; only persistence errors surface.
func (a *Analyzer) Analyze(ctx context.Context, opportunityID string) (Verdict, error) {
	opp, err := a.Repo.GetOpportunityByID(ctx, opportunityID)
	if err != nil {
		return Verdict{}, err
	}
	if opp == nil {
		return Verdict{}, fmt.Errorf("opportunity %s not found", opportunityID)
	}
	event, err := a.Repo.GetEventByID(ctx, opp.EventID)
	if err != nil {
		return Verdict{}, err
	}
	if event == nil {
		return Verdict{}, fmt.Errorf("event %s not found", opp.EventID)
	}

	now := a.now()
	hoursToEvent := event.CommenceTime.Sub(now).Hours()
	verdict := a.verdict(ctx, opp, event, now, hoursToEvent)

	raw, err := json.Marshal(verdict)
	if err != nil {
		return Verdict{}, err
	}
	if err := a.Repo.UpdateOpportunityAnalysis(ctx, opp.ID, verdict.AIScore, raw); err != nil {
		return Verdict{}, fmt.Errorf("persist analysis: %w", err)
	}
	return verdict, nil
}

func (a *Analyzer) verdict(ctx context.Context, opp *models.ArbitrageOpportunity, event *models.Event, now time.Time, hoursToEvent float64) Verdict {
	profitPct := opp.ProfitPercentage.InexactFloat64()
	fallback := func() Verdict {
		return fallbackVerdict(profitPct, opp.RiskScore, hoursToEvent, now)
	}
	if a.Chat == nil {
		return fallback()
	}
	prompt, err := a.buildPrompt(ctx, opp, event, hoursToEvent)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("prompt build failed, using rule-based verdict", zap.Error(err))
		}
		return fallback()
	}
	reply, err := a.Chat.Complete(ctx, a.Config.Model, systemPrompt, prompt)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("model call failed, using rule-based verdict", zap.Error(err))
		}
		return fallback()
	}
	verdict, err := parseVerdict(reply, a.Config.Model, now)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("model reply unparseable, using rule-based verdict", zap.Error(err))
		}
		return fallback()
	}
	return verdict
}

func (a *Analyzer) buildPrompt(ctx context.Context, opp *models.ArbitrageOpportunity, event *models.Event, hoursToEvent float64) (string, error) {
	var teams []string
	if err := json.Unmarshal(event.Teams, &teams); err != nil {
		return "", fmt.Errorf("decode teams: %w", err)
	}
	reliability := a.bookmakerReliability(ctx, opp)
	conditions := a.marketConditions(ctx, event.Sport)

	reliabilityJSON, _ := json.MarshalIndent(reliability, "", "  ")
	conditionsJSON, _ := json.MarshalIndent(conditions, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this sports betting arbitrage opportunity:\n\n")
	fmt.Fprintf(&b, "OPPORTUNITY DETAILS:\n")
	fmt.Fprintf(&b, "- Profit Percentage: %s%%\n", opp.ProfitPercentage.StringFixed(2))
	fmt.Fprintf(&b, "- Expected Profit: $%s\n", opp.ExpectedProfit.StringFixed(2))
	fmt.Fprintf(&b, "- Risk Score: %.1f/10\n", opp.RiskScore)
	fmt.Fprintf(&b, "- Market Type: %s\n", opp.MarketType)
	fmt.Fprintf(&b, "- Total Stake Required: $%s\n\n", opp.TotalStake.StringFixed(2))
	fmt.Fprintf(&b, "EVENT DETAILS:\n")
	fmt.Fprintf(&b, "- Sport: %s\n", event.Sport)
	fmt.Fprintf(&b, "- Teams: %s\n", strings.Join(teams, " vs "))
	fmt.Fprintf(&b, "- Time to Event: %.1f hours\n", hoursToEvent)
	fmt.Fprintf(&b, "- Event Time: %s\n\n", event.CommenceTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "BOOKMAKER RELIABILITY:\n%s\n\n", reliabilityJSON)
	fmt.Fprintf(&b, "MARKET CONDITIONS:\n%s\n\n", conditionsJSON)
	fmt.Fprintf(&b, "STAKES DISTRIBUTION:\n%s\n\n", opp.BookmakerStakes)
	fmt.Fprintf(&b, "ODDS:\n%s\n\n", opp.BookmakerOdds)
	fmt.Fprintf(&b, `Reply with your analysis in this JSON format:
{
  "ai_score": <score from 1-10>,
  "risk_level": <1-5 scale>,
  "execution_difficulty": "<easy|medium|hard>",
  "recommended_action": "<execute|monitor|skip>",
  "confidence": <0.0-1.0>,
  "key_factors": ["factor1", "factor2", "factor3"],
  "warnings": ["warning1", "warning2"],
  "execution_priority": "<high|medium|low>",
  "reasoning": "<detailed explanation>"
}

Consider profit margin vs risk, bookmaker reliability, time sensitivity,
market volatility and execution complexity.`)
	return b.String(), nil
}

func (a *Analyzer) bookmakerReliability(ctx context.Context, opp *models.ArbitrageOpportunity) map[string]float64 {
	scores := map[string]float64{}
	var stakes map[string]map[string]float64
	if err := json.Unmarshal(opp.BookmakerStakes, &stakes); err != nil {
		return scores
	}
	names := make([]string, 0, len(stakes))
	for name := range stakes {
		names = append(names, name)
		scores[name] = 5.0
	}
	statuses, err := a.Repo.ListBookmakerStatuses(ctx, names)
	if err != nil {
		return scores
	}
	for _, st := range statuses {
		scores[st.Bookmaker] = st.ReliabilityScore
	}
	return scores
}

type marketConditions struct {
	MarketActivity   string  `json:"market_activity"`
	AverageProfit    float64 `json:"average_profit"`
	OpportunityCount int     `json:"opportunity_count"`
}

// marketConditions summarizes the last week of same-sport detections so the
// model sees how busy this market has been. Best effort.
func (a *Analyzer) marketConditions(ctx context.Context, sport string) marketConditions {
	out := marketConditions{MarketActivity: "unknown"}
	recent, err := a.Repo.ListRecentOpportunitiesBySport(ctx, sport, a.now().Add(-7*24*time.Hour), 50)
	if err != nil || len(recent) == 0 {
		if err == nil {
			out.MarketActivity = "low"
		}
		return out
	}
	sum := 0.0
	for _, opp := range recent {
		sum += opp.ProfitPercentage.InexactFloat64()
	}
	out.OpportunityCount = len(recent)
	out.AverageProfit = sum / float64(len(recent))
	switch {
	case len(recent) > 20:
		out.MarketActivity = "high"
	case len(recent) > 10:
		out.MarketActivity = "medium"
	default:
		out.MarketActivity = "low"
	}
	return out
}
