package handler

import (
	"context"
	"time"

	"gorm.io/gorm"

	"arbscan/internal/models"
	"arbscan/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Only the API query surface is stateful.
type stubRepo struct {
	opportunities map[string]*models.ArbitrageOpportunity
	listed        []models.ArbitrageOpportunity
	events        []models.Event
	summary       repository.OpportunitySummary

	lastListParams repository.ListOpportunitiesParams
}

func newStubRepo() *stubRepo {
	return &stubRepo{opportunities: map[string]*models.ArbitrageOpportunity{}}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) FindEventByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Event, error) {
	return nil, nil
}
func (s *stubRepo) CreateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error {
	return nil
}
func (s *stubRepo) UpdateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error {
	return nil
}
func (s *stubRepo) InsertOddsSnapshotTx(ctx context.Context, tx *gorm.DB, item *models.OddsSnapshot) error {
	return nil
}
func (s *stubRepo) DeactivateOddsSnapshotsTx(ctx context.Context, tx *gorm.DB, eventID, bookmaker string, before time.Time) error {
	return nil
}

func (s *stubRepo) GetBookmakerStatus(ctx context.Context, bookmaker string) (*models.BookmakerStatus, error) {
	return nil, nil
}
func (s *stubRepo) SaveBookmakerStatus(ctx context.Context, item *models.BookmakerStatus) error {
	return nil
}
func (s *stubRepo) ListBookmakerStatuses(ctx context.Context, bookmakers []string) ([]models.BookmakerStatus, error) {
	return nil, nil
}

func (s *stubRepo) ListDetectableEvents(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]models.Event, error) {
	return nil, nil
}
func (s *stubRepo) ListActiveSnapshots(ctx context.Context, eventID string, since time.Time) ([]models.OddsSnapshot, error) {
	return nil, nil
}
func (s *stubRepo) CreateOpportunityIfAbsent(ctx context.Context, item *models.ArbitrageOpportunity, window time.Duration, refresh bool) (bool, error) {
	return false, nil
}

func (s *stubRepo) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	return nil, nil
}

func (s *stubRepo) GetOpportunityByID(ctx context.Context, id string) (*models.ArbitrageOpportunity, error) {
	if opp, ok := s.opportunities[id]; ok {
		copied := *opp
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) ListUnanalyzedOpportunities(ctx context.Context, now time.Time, limit int) ([]models.ArbitrageOpportunity, error) {
	return nil, nil
}
func (s *stubRepo) ListRecentOpportunitiesBySport(ctx context.Context, sport string, since time.Time, limit int) ([]models.ArbitrageOpportunity, error) {
	return nil, nil
}
func (s *stubRepo) UpdateOpportunityAnalysis(ctx context.Context, id string, aiScore float64, analysis []byte) error {
	return nil
}

func (s *stubRepo) ExpireDueOpportunities(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (s *stubRepo) DeleteOldSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.ArbitrageOpportunity, error) {
	s.lastListParams = params
	return s.listed, nil
}

func (s *stubRepo) CountOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) (int64, error) {
	return int64(len(s.listed)), nil
}

func (s *stubRepo) SummarizeOpportunities(ctx context.Context, since, now time.Time) (repository.OpportunitySummary, error) {
	return s.summary, nil
}

func (s *stubRepo) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.Event, error) {
	return s.events, nil
}

var _ repository.Repository = (*stubRepo)(nil)
