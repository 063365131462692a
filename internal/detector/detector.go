// Package detector runs the arbitrage detection cycle: aggregate fresh odds
// per event, price each market, score risk, and persist de-duplicated
// opportunities.
package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbscan/internal/config"
	"arbscan/internal/market"
	"arbscan/internal/models"
	"arbscan/internal/repository"
)

type Detector struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.DetectorConfig

	// Now is overridable for tests; defaults to time.Now in UTC.
	Now func() time.Time
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Detector) volatileSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Config.VolatileSports))
	for _, s := range d.Config.VolatileSports {
		set[s] = struct{}{}
	}
	return set
}

// errPersist marks store write failures so RunCycle surfaces them to the
// scheduler for backoff instead of skipping the event.
var errPersist = errors.New("persist opportunity")

// RunCycle performs one detection pass over upcoming events. A failure on a
// single event is logged and skipped; failures to list events or to write
// opportunities surface to the scheduler.
func (d *Detector) RunCycle(ctx context.Context) error {
	if d == nil || d.Repo == nil {
		return nil
	}
	now := d.now()
	events, err := d.Repo.ListDetectableEvents(ctx, now, d.Config.EventHorizon, d.Config.MaxEvents)
	if err != nil {
		return fmt.Errorf("list detectable events: %w", err)
	}
	volatile := d.volatileSet()
	detected := 0
	for _, ev := range events {
		n, err := d.detectEvent(ctx, ev, now, volatile)
		if err != nil {
			if errors.Is(err, errPersist) {
				return err
			}
			if d.Logger != nil {
				d.Logger.Warn("event detection failed",
					zap.String("event_id", ev.ID),
					zap.String("sport", ev.Sport),
					zap.Error(err),
				)
			}
			continue
		}
		detected += n
	}
	if d.Logger != nil {
		d.Logger.Info("detection cycle complete",
			zap.Int("events", len(events)),
			zap.Int("opportunities", detected),
		)
	}
	return nil
}

func (d *Detector) detectEvent(ctx context.Context, ev models.Event, now time.Time, volatile map[string]struct{}) (int, error) {
	snapshots, err := d.Repo.ListActiveSnapshots(ctx, ev.ID, now.Add(-d.Config.FreshnessWindow))
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	if len(snapshots) < 2 {
		return 0, nil
	}
	books := market.Aggregate(snapshots, now, d.Config.FreshnessWindow)
	if len(books) == 0 {
		return 0, nil
	}

	calcCfg := CalculatorConfig{
		MinProfitPct: d.Config.MinProfitPct,
		TotalStake:   d.Config.TotalStake,
		TTL:          d.Config.OpportunityTTL,
	}
	created := 0
	for marketType, book := range books {
		cand, ok := Calculate(marketType, book, now, calcCfg)
		if !ok {
			continue
		}
		reliability := d.bookReliability(ctx, book)
		risk := ScoreRisk(now, RiskInputs{
			CommenceTime: ev.CommenceTime,
			Sport:        ev.Sport,
			Book:         book,
			Reliability:  reliability,
		}, volatile)

		opp, err := toModel(ev.ID, cand, risk)
		if err != nil {
			return created, err
		}
		inserted, err := d.Repo.CreateOpportunityIfAbsent(ctx, opp, d.Config.SuppressionWindow, d.Config.RefreshOnBetterPrice)
		if err != nil {
			return created, fmt.Errorf("%w: %w", errPersist, err)
		}
		if inserted {
			created++
			if d.Logger != nil {
				d.Logger.Info("arbitrage opportunity detected",
					zap.String("event_id", ev.ID),
					zap.String("market", marketType),
					zap.Float64("profit_pct", cand.ProfitPercentage),
					zap.Float64("risk_score", risk),
				)
			}
		}
	}
	return created, nil
}

// bookReliability is a best-effort lookup; reliability is an optional risk
// signal and a store error must not sink the event.
func (d *Detector) bookReliability(ctx context.Context, book market.Book) []models.BookmakerStatus {
	names := make([]string, 0, len(book))
	for name := range book {
		names = append(names, name)
	}
	statuses, err := d.Repo.ListBookmakerStatuses(ctx, names)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("bookmaker status lookup failed", zap.Error(err))
		}
		return nil
	}
	return statuses
}

func toModel(eventID string, cand Candidate, risk float64) (*models.ArbitrageOpportunity, error) {
	stakes, err := json.Marshal(cand.Stakes)
	if err != nil {
		return nil, fmt.Errorf("marshal stakes: %w", err)
	}
	odds, err := json.Marshal(cand.Odds)
	if err != nil {
		return nil, fmt.Errorf("marshal odds: %w", err)
	}
	return &models.ArbitrageOpportunity{
		EventID:          eventID,
		MarketType:       cand.MarketType,
		ProfitPercentage: decimal.NewFromFloat(cand.ProfitPercentage),
		TotalStake:       decimal.NewFromFloat(cand.TotalStake),
		BookmakerStakes:  stakes,
		BookmakerOdds:    odds,
		ExpectedProfit:   decimal.NewFromFloat(cand.ExpectedProfit),
		RiskScore:        risk,
		Status:           models.OpportunityStatusDetected,
		DetectedAt:       cand.DetectedAt,
		ExpiresAt:        cand.ExpiresAt,
	}, nil
}

// ExpireDue flips past-due live opportunities to expired. Executed rows are
// terminal and stay untouched. Run from cron so the TTL is honored between
// cleanup cycles.
func (d *Detector) ExpireDue(ctx context.Context) error {
	if d == nil || d.Repo == nil {
		return nil
	}
	n, err := d.Repo.ExpireDueOpportunities(ctx, d.now())
	if err != nil {
		return fmt.Errorf("expire opportunities: %w", err)
	}
	if n > 0 && d.Logger != nil {
		d.Logger.Info("expired opportunities", zap.Int64("count", n))
	}
	return nil
}
