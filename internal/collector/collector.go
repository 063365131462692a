// Package collector ingests odds from the external provider: it normalizes
// quotes, upserts events, appends immutable snapshots, and tracks
// per-bookmaker fetch health.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arbscan/internal/config"
	"arbscan/internal/models"
	"arbscan/internal/oddsfeed"
	"arbscan/internal/repository"
)

// OddsSource is the provider surface the collector consumes.
type OddsSource interface {
	Odds(ctx context.Context, sport string) ([]oddsfeed.EventOdds, error)
}

type Collector struct {
	Source OddsSource
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.CollectorConfig

	// Now and Sleep are overridable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	cooldownUntil time.Time
}

// outcomeAliases folds provider-specific outcome labels onto canonical
// names so quotes from different bookmakers land on the same outcome key.
var outcomeAliases = map[string]string{
	"1":     "home",
	"2":     "away",
	"x":     "draw",
	"draw":  "draw",
	"tie":   "draw",
	"over":  "over",
	"under": "under",
}

func normalizeOutcome(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if mapped, ok := outcomeAliases[key]; ok {
		return mapped
	}
	return key
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Collector) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Collector) cooldown() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownUntil
}

func (c *Collector) setCooldown(until time.Time) {
	min := c.now().Add(c.Config.MinCooldown)
	if until.Before(min) {
		until = min
	}
	c.mu.Lock()
	c.cooldownUntil = until
	c.mu.Unlock()
}

// RunCycle collects odds for every configured sport sequentially, pausing
// between sports to respect the provider's quota. A rate-limit signal arms a
// cooldown gate and ends the cycle early; the gate is re-checked on the next
// tick. Per-sport fetch errors skip that sport only.
func (c *Collector) RunCycle(ctx context.Context) error {
	if c == nil || c.Source == nil || c.Repo == nil {
		return nil
	}
	if until := c.cooldown(); c.now().Before(until) {
		if c.Logger != nil {
			c.Logger.Info("collection skipped, provider cooldown active", zap.Time("until", until))
		}
		return nil
	}

	total := 0
	for i, sport := range c.Config.Sports {
		events, err := c.Source.Odds(ctx, sport)
		var rl *oddsfeed.RateLimitError
		if errors.As(err, &rl) {
			c.setCooldown(rl.Reset)
			if c.Logger != nil {
				c.Logger.Warn("odds provider rate limited",
					zap.String("sport", sport),
					zap.Time("until", rl.Reset),
				)
			}
			return nil
		}
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("sport collection failed", zap.String("sport", sport), zap.Error(err))
			}
			continue
		}
		stored, err := c.storeSport(ctx, events)
		if err != nil {
			return fmt.Errorf("store odds for %s: %w", sport, err)
		}
		total += stored
		if i < len(c.Config.Sports)-1 {
			if err := c.sleep(ctx, c.Config.SportPause); err != nil {
				return err
			}
		}
	}
	if c.Logger != nil {
		c.Logger.Info("odds collection complete", zap.Int("events", total))
	}
	return nil
}

func (c *Collector) storeSport(ctx context.Context, events []oddsfeed.EventOdds) (int, error) {
	allowed := make(map[string]struct{}, len(c.Config.Bookmakers))
	for _, b := range c.Config.Bookmakers {
		allowed[b] = struct{}{}
	}
	now := c.now()
	stored := 0
	contributed := map[string]struct{}{}
	for _, ev := range events {
		snaps, reason := c.normalizeEvent(ev, allowed, now)
		if reason != "" {
			if c.Logger != nil {
				c.Logger.Warn("dropped malformed event",
					zap.String("external_id", ev.ID),
					zap.String("reason", reason),
				)
			}
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		if err := c.storeEvent(ctx, ev, snaps); err != nil {
			return stored, err
		}
		for bookmaker := range snaps {
			contributed[bookmaker] = struct{}{}
		}
		stored++
	}
	for bookmaker := range contributed {
		if err := c.recordBookmaker(ctx, bookmaker, true); err != nil && c.Logger != nil {
			c.Logger.Warn("bookmaker status update failed", zap.String("bookmaker", bookmaker), zap.Error(err))
		}
	}
	return stored, nil
}

type snapshotData struct {
	markets    map[string]map[string]float64
	capturedAt time.Time
}

// normalizeEvent validates one provider event and reshapes its quotes to
// market -> outcome -> price per bookmaker. A non-empty reason means the
// whole event is malformed and must be dropped at ingestion, never coerced.
func (c *Collector) normalizeEvent(ev oddsfeed.EventOdds, allowed map[string]struct{}, now time.Time) (map[string]snapshotData, string) {
	if strings.TrimSpace(ev.ID) == "" {
		return nil, "missing event id"
	}
	if ev.CommenceTime.IsZero() {
		return nil, "missing commence time"
	}
	if strings.TrimSpace(ev.HomeTeam) == "" || strings.TrimSpace(ev.AwayTeam) == "" {
		return nil, "missing participants"
	}
	out := map[string]snapshotData{}
	for _, bk := range ev.Bookmakers {
		if _, ok := allowed[bk.Key]; !ok {
			continue
		}
		markets := map[string]map[string]float64{}
		for _, m := range bk.Markets {
			outcomes := map[string]float64{}
			for _, o := range m.Outcomes {
				if o.Price <= 0 || strings.TrimSpace(o.Name) == "" {
					continue
				}
				outcomes[normalizeOutcome(o.Name)] = o.Price
			}
			if len(outcomes) > 0 {
				markets[m.Key] = outcomes
			}
		}
		if len(markets) == 0 {
			continue
		}
		capturedAt := bk.LastUpdate
		if capturedAt.IsZero() {
			capturedAt = now
		}
		out[bk.Key] = snapshotData{markets: markets, capturedAt: capturedAt}
	}
	return out, ""
}

// storeEvent upserts the event and appends one snapshot per bookmaker in a
// single transaction. Earlier active snapshots for the same (event,
// bookmaker) are flipped inactive; the retention sweep deletes them later.
func (c *Collector) storeEvent(ctx context.Context, ev oddsfeed.EventOdds, snaps map[string]snapshotData) error {
	teams, err := json.Marshal([]string{ev.HomeTeam, ev.AwayTeam})
	if err != nil {
		return err
	}
	return c.Repo.InTx(ctx, func(tx *gorm.DB) error {
		existing, err := c.Repo.FindEventByExternalIDTx(ctx, tx, ev.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &models.Event{
				ExternalID:   ev.ID,
				Sport:        ev.SportKey,
				Teams:        teams,
				CommenceTime: ev.CommenceTime,
				Status:       models.EventStatusUpcoming,
			}
			if err := c.Repo.CreateEventTx(ctx, tx, existing); err != nil {
				return err
			}
		} else if !existing.CommenceTime.Equal(ev.CommenceTime) {
			existing.CommenceTime = ev.CommenceTime
			if err := c.Repo.UpdateEventTx(ctx, tx, existing); err != nil {
				return err
			}
		}
		for bookmaker, snap := range snaps {
			raw, err := json.Marshal(snap.markets)
			if err != nil {
				return err
			}
			item := &models.OddsSnapshot{
				EventID:    existing.ID,
				Bookmaker:  bookmaker,
				OddsData:   raw,
				CapturedAt: snap.capturedAt,
				IsActive:   true,
			}
			if err := c.Repo.InsertOddsSnapshotTx(ctx, tx, item); err != nil {
				return err
			}
			if err := c.Repo.DeactivateOddsSnapshotsTx(ctx, tx, existing.ID, bookmaker, snap.capturedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordBookmaker maintains per-bookmaker fetch health: consecutive errors
// push the status to degraded (>5) then down (>20); any success resets the
// counter. The reliability score drifts toward 10 on success and drops on
// failure, staying inside [1,10].
func (c *Collector) recordBookmaker(ctx context.Context, bookmaker string, success bool) error {
	status, err := c.Repo.GetBookmakerStatus(ctx, bookmaker)
	if err != nil {
		return err
	}
	if status == nil {
		status = &models.BookmakerStatus{
			Bookmaker:        bookmaker,
			ReliabilityScore: 5.0,
			APIStatus:        models.BookmakerUnknown,
		}
	}
	if success {
		now := c.now()
		status.APIStatus = models.BookmakerHealthy
		status.ErrorCount = 0
		status.LastSuccessAt = &now
		status.ReliabilityScore += 0.1
		if status.ReliabilityScore > 10 {
			status.ReliabilityScore = 10
		}
	} else {
		status.ErrorCount++
		status.ReliabilityScore -= 0.5
		if status.ReliabilityScore < 1 {
			status.ReliabilityScore = 1
		}
		if status.ErrorCount > 20 {
			status.APIStatus = models.BookmakerDown
		} else if status.ErrorCount > 5 {
			status.APIStatus = models.BookmakerDegraded
		}
	}
	return c.Repo.SaveBookmakerStatus(ctx, status)
}
