package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"arbscan/internal/models"
)

type ListOpportunitiesParams struct {
	Status    *string
	Sport     *string
	MinProfit *float64
	MaxRisk   *float64
	// Unexpired filters to opportunities whose expires_at is after Now.
	Unexpired bool
	Now       time.Time
	Limit     int
	Offset    int
}

type ListEventsParams struct {
	Sport  *string
	Status *string
	After  *time.Time
	Limit  int
	Offset int
}

// OpportunitySummary aggregates detection activity over a period.
type OpportunitySummary struct {
	Total          int64            `json:"total_opportunities"`
	Active         int64            `json:"active_opportunities"`
	AvgProfitPct   float64          `json:"average_profit_percentage"`
	BestProfitPct  float64          `json:"best_profit_percentage"`
	SportBreakdown map[string]int64 `json:"sport_breakdown"`
}

// Repository is the persistence surface shared by the collection, detection,
// analysis and cleanup cycles plus the HTTP handlers. All multi-write
// operations go through InTx so a failing cycle rolls back as a unit.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Ingestion.
	FindEventByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Event, error)
	CreateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error
	UpdateEventTx(ctx context.Context, tx *gorm.DB, item *models.Event) error
	InsertOddsSnapshotTx(ctx context.Context, tx *gorm.DB, item *models.OddsSnapshot) error
	DeactivateOddsSnapshotsTx(ctx context.Context, tx *gorm.DB, eventID, bookmaker string, before time.Time) error

	// Bookmaker health. The collector is the only writer.
	GetBookmakerStatus(ctx context.Context, bookmaker string) (*models.BookmakerStatus, error)
	SaveBookmakerStatus(ctx context.Context, item *models.BookmakerStatus) error
	ListBookmakerStatuses(ctx context.Context, bookmakers []string) ([]models.BookmakerStatus, error)

	// Detection.
	ListDetectableEvents(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]models.Event, error)
	ListActiveSnapshots(ctx context.Context, eventID string, since time.Time) ([]models.OddsSnapshot, error)
	// CreateOpportunityIfAbsent inserts item unless a live opportunity for the
	// same (event, market) was detected within window. The check and insert
	// are atomic under concurrent detection cycles. When refresh is true and
	// the existing row has a strictly lower profit percentage, the existing
	// row is updated in place instead of the candidate being discarded.
	// Returns true when item was inserted or refreshed an existing row.
	CreateOpportunityIfAbsent(ctx context.Context, item *models.ArbitrageOpportunity, window time.Duration, refresh bool) (bool, error)

	// Analysis.
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetOpportunityByID(ctx context.Context, id string) (*models.ArbitrageOpportunity, error)
	ListUnanalyzedOpportunities(ctx context.Context, now time.Time, limit int) ([]models.ArbitrageOpportunity, error)
	ListRecentOpportunitiesBySport(ctx context.Context, sport string, since time.Time, limit int) ([]models.ArbitrageOpportunity, error)
	UpdateOpportunityAnalysis(ctx context.Context, id string, aiScore float64, analysis []byte) error

	// Expiry and retention.
	ExpireDueOpportunities(ctx context.Context, now time.Time) (int64, error)
	DeleteOldSnapshots(ctx context.Context, cutoff time.Time) (int64, error)

	// API queries.
	ListOpportunities(ctx context.Context, params ListOpportunitiesParams) ([]models.ArbitrageOpportunity, error)
	CountOpportunities(ctx context.Context, params ListOpportunitiesParams) (int64, error)
	SummarizeOpportunities(ctx context.Context, since, now time.Time) (OpportunitySummary, error)
	ListEvents(ctx context.Context, params ListEventsParams) ([]models.Event, error)
}
