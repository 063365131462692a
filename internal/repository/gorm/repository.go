package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"arbscan/internal/models"
	"arbscan/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- ingestion --------------------------------------------------------------

func (s *Store) FindEventByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Event, error) {
	if tx == nil {
		tx = s.db
	}
	var item models.Event
	err := tx.WithContext(ctx).Where("external_id = ?", externalID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) InsertOddsSnapshotTx(ctx context.Context, tx *gorm.DB, item *models.OddsSnapshot) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) DeactivateOddsSnapshotsTx(ctx context.Context, tx *gorm.DB, eventID, bookmaker string, before time.Time) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).
		Model(&models.OddsSnapshot{}).
		Where("event_id = ?", eventID).
		Where("bookmaker = ?", bookmaker).
		Where("captured_at < ?", before).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

// --- bookmaker health -------------------------------------------------------

func (s *Store) GetBookmakerStatus(ctx context.Context, bookmaker string) (*models.BookmakerStatus, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.BookmakerStatus
	err := s.db.WithContext(ctx).Where("bookmaker = ?", bookmaker).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveBookmakerStatus(ctx context.Context, item *models.BookmakerStatus) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Bookmaker) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) ListBookmakerStatuses(ctx context.Context, bookmakers []string) ([]models.BookmakerStatus, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.BookmakerStatus{})
	if len(bookmakers) > 0 {
		query = query.Where("bookmaker IN ?", bookmakers)
	}
	var items []models.BookmakerStatus
	if err := query.Order("bookmaker asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- detection --------------------------------------------------------------

func (s *Store) ListDetectableEvents(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]models.Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var items []models.Event
	err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("status = ?", models.EventStatusUpcoming).
		Where("commence_time > ?", now).
		Where("commence_time < ?", now.Add(horizon)).
		Order("commence_time asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveSnapshots(ctx context.Context, eventID string, since time.Time) ([]models.OddsSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.OddsSnapshot
	err := s.db.WithContext(ctx).
		Model(&models.OddsSnapshot{}).
		Where("event_id = ?", eventID).
		Where("is_active = ?", true).
		Where("captured_at > ?", since).
		Order("captured_at desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateOpportunityIfAbsent(ctx context.Context, item *models.ArbitrageOpportunity, window time.Duration, refresh bool) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize concurrent detection cycles on the same (event, market)
		// for the duration of this transaction so the window check and the
		// insert are one atomic step.
		lockKey := item.EventID + ":" + item.MarketType
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", lockKey).Error; err != nil {
			return err
		}
		var existing models.ArbitrageOpportunity
		err := tx.
			Where("event_id = ?", item.EventID).
			Where("market_type = ?", item.MarketType).
			Where("status IN ?", models.LiveStatuses).
			Where("detected_at > ?", item.DetectedAt.Add(-window)).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			created = true
			return nil
		}
		if err != nil {
			return err
		}
		if refresh && item.ProfitPercentage.GreaterThan(existing.ProfitPercentage) {
			updates := map[string]any{
				"profit_percentage": item.ProfitPercentage,
				"total_stake":       item.TotalStake,
				"bookmaker_stakes":  item.BookmakerStakes,
				"bookmaker_odds":    item.BookmakerOdds,
				"expected_profit":   item.ExpectedProfit,
				"risk_score":        item.RiskScore,
				"expires_at":        item.ExpiresAt,
			}
			if err := tx.Model(&models.ArbitrageOpportunity{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			item.ID = existing.ID
			created = true
		}
		return nil
	})
	return created, err
}

// --- analysis ---------------------------------------------------------------

func (s *Store) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Event
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOpportunityByID(ctx context.Context, id string) (*models.ArbitrageOpportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ArbitrageOpportunity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListUnanalyzedOpportunities(ctx context.Context, now time.Time, limit int) ([]models.ArbitrageOpportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 10)
	var items []models.ArbitrageOpportunity
	err := s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Where("status = ?", models.OpportunityStatusDetected).
		Where("expires_at > ?", now).
		Order("profit_percentage desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListRecentOpportunitiesBySport(ctx context.Context, sport string, since time.Time, limit int) ([]models.ArbitrageOpportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var items []models.ArbitrageOpportunity
	err := s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Joins("JOIN events ON events.id = arbitrage_opportunities.event_id").
		Where("events.sport = ?", sport).
		Where("arbitrage_opportunities.detected_at > ?", since).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateOpportunityAnalysis(ctx context.Context, id string, aiScore float64, analysis []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ai_score":    aiScore,
			"ai_analysis": analysis,
			"status":      models.OpportunityStatusAnalyzed,
		}).Error
}

// --- expiry and retention ---------------------------------------------------

func (s *Store) ExpireDueOpportunities(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Where("expires_at <= ?", now).
		Where("status IN ?", models.LiveStatuses).
		Update("status", models.OpportunityStatusExpired)
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteOldSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("captured_at < ?", cutoff).
		Delete(&models.OddsSnapshot{})
	return res.RowsAffected, res.Error
}

// --- API queries ------------------------------------------------------------

func (s *Store) opportunityQuery(ctx context.Context, params repository.ListOpportunitiesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ArbitrageOpportunity{})
	if params.Unexpired {
		now := params.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		query = query.Where("expires_at > ?", now)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("arbitrage_opportunities.status = ?", strings.TrimSpace(*params.Status))
	}
	if params.MinProfit != nil {
		query = query.Where("profit_percentage >= ?", *params.MinProfit)
	}
	if params.MaxRisk != nil {
		query = query.Where("risk_score <= ?", *params.MaxRisk)
	}
	if params.Sport != nil && strings.TrimSpace(*params.Sport) != "" {
		query = query.
			Joins("JOIN events ON events.id = arbitrage_opportunities.event_id").
			Where("events.sport = ?", strings.TrimSpace(*params.Sport))
	}
	return query
}

func (s *Store) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.ArbitrageOpportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.ArbitrageOpportunity
	err := s.opportunityQuery(ctx, params).
		Order("profit_percentage desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.opportunityQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) SummarizeOpportunities(ctx context.Context, since, now time.Time) (repository.OpportunitySummary, error) {
	out := repository.OpportunitySummary{SportBreakdown: map[string]int64{}}
	if s == nil || s.db == nil {
		return out, nil
	}
	base := s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Where("detected_at >= ?", since)
	if err := base.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status IN ?", models.LiveStatuses).
		Where("expires_at > ?", now).
		Count(&out.Active).Error; err != nil {
		return out, err
	}
	var agg struct {
		Avg  *float64
		Best *float64
	}
	if err := base.Session(&gorm.Session{}).
		Select("AVG(profit_percentage) AS avg, MAX(profit_percentage) AS best").
		Scan(&agg).Error; err != nil {
		return out, err
	}
	if agg.Avg != nil {
		out.AvgProfitPct = *agg.Avg
	}
	if agg.Best != nil {
		out.BestProfitPct = *agg.Best
	}
	rows := []struct {
		Sport string
		Count int64
	}{}
	if err := s.db.WithContext(ctx).
		Model(&models.ArbitrageOpportunity{}).
		Select("events.sport AS sport, COUNT(arbitrage_opportunities.id) AS count").
		Joins("JOIN events ON events.id = arbitrage_opportunities.event_id").
		Where("arbitrage_opportunities.detected_at >= ?", since).
		Group("events.sport").
		Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		out.SportBreakdown[r.Sport] = r.Count
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Event{})
	if params.Sport != nil && strings.TrimSpace(*params.Sport) != "" {
		query = query.Where("sport = ?", strings.TrimSpace(*params.Sport))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.After != nil && !params.After.IsZero() {
		query = query.Where("commence_time > ?", *params.After)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.Event
	if err := query.Order("commence_time asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}
