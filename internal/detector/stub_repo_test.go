package detector

import (
	"context"
	"time"

	"gorm.io/gorm"

	"arbscan/internal/models"
	"arbscan/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Only the detection surface is stateful.
type stubRepo struct {
	events        []models.Event
	snapshots     map[string][]models.OddsSnapshot
	statuses      map[string]models.BookmakerStatus
	opportunities []models.ArbitrageOpportunity
	suppressAll   bool
	createErr     error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		snapshots: map[string][]models.OddsSnapshot{},
		statuses:  map[string]models.BookmakerStatus{},
	}
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
	out := make([]models.BookmakerStatus, 0, len(bookmakers))
	for _, name := range bookmakers {
		if st, ok := s.statuses[name]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *stubRepo) ListDetectableEvents(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]models.Event, error) {
	return s.events, nil
}

func (s *stubRepo) ListActiveSnapshots(ctx context.Context, eventID string, since time.Time) ([]models.OddsSnapshot, error) {
	return s.snapshots[eventID], nil
}

func (s *stubRepo) CreateOpportunityIfAbsent(ctx context.Context, item *models.ArbitrageOpportunity, window time.Duration, refresh bool) (bool, error) {
	if s.createErr != nil {
		return false, s.createErr
	}
	if s.suppressAll {
		return false, nil
	}
	for _, existing := range s.opportunities {
		if existing.EventID == item.EventID && existing.MarketType == item.MarketType &&
			item.DetectedAt.Sub(existing.DetectedAt) < window {
			return false, nil
		}
	}
	s.opportunities = append(s.opportunities, *item)
	return true, nil
}

func (s *stubRepo) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	return nil, nil
}
func (s *stubRepo) GetOpportunityByID(ctx context.Context, id string) (*models.ArbitrageOpportunity, error) {
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
	var n int64
	for i := range s.opportunities {
		if s.opportunities[i].ExpiryDue(now) {
			s.opportunities[i].Status = models.OpportunityStatusExpired
			n++
		}
	}
	return n, nil
}
func (s *stubRepo) DeleteOldSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.ArbitrageOpportunity, error) {
	return nil, nil
}
func (s *stubRepo) CountOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) SummarizeOpportunities(ctx context.Context, since, now time.Time) (repository.OpportunitySummary, error) {
	return repository.OpportunitySummary{}, nil
}
func (s *stubRepo) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.Event, error) {
	return nil, nil
}

var _ repository.Repository = (*stubRepo)(nil)
