package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OpportunityStatusDetected = "detected"
	OpportunityStatusAnalyzed = "analyzed"
	OpportunityStatusExecuted = "executed"
	OpportunityStatusExpired  = "expired"
)

// LiveStatuses are the states in which an opportunity still counts against
// the dedup suppression window and is eligible for expiry.
var LiveStatuses = []string{OpportunityStatusDetected, OpportunityStatusAnalyzed}

// ArbitrageOpportunity is a detected risk-free stake split across
// bookmakers on one (event, market). BookmakerStakes and BookmakerOdds map
// bookmaker -> outcome -> value; every outcome appears under exactly one
// bookmaker, the one whose price was used. Money-like values are stored as
// numeric to avoid float errors.
type ArbitrageOpportunity struct {
	ID               string          `gorm:"primaryKey;type:uuid" json:"id"`
	EventID          string          `gorm:"type:uuid;not null;index" json:"event_id"`
	MarketType       string          `gorm:"type:varchar(50);not null" json:"market_type"`
	ProfitPercentage decimal.Decimal `gorm:"type:numeric(10,4);not null;index" json:"profit_percentage"`
	TotalStake       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_stake"`
	BookmakerStakes  datatypes.JSON  `gorm:"type:jsonb;not null" json:"bookmaker_stakes"`
	BookmakerOdds    datatypes.JSON  `gorm:"type:jsonb;not null" json:"bookmaker_odds"`
	ExpectedProfit   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"expected_profit"`
	RiskScore        float64         `gorm:"not null;index" json:"risk_score"`
	AIScore          *float64        `gorm:"index" json:"ai_score,omitempty"`
	AIAnalysis       datatypes.JSON  `gorm:"type:jsonb" json:"ai_analysis,omitempty"`
	Status           string          `gorm:"type:varchar(20);not null;default:'detected';index:ix_arb_status_detected" json:"status"`
	DetectedAt       time.Time       `gorm:"type:timestamptz;not null;index:ix_arb_status_detected" json:"detected_at"`
	ExpiresAt        time.Time       `gorm:"type:timestamptz;not null;index" json:"expires_at"`
	ExecutedAt       *time.Time      `gorm:"type:timestamptz" json:"executed_at,omitempty"`
}

func (ArbitrageOpportunity) TableName() string {
	return "arbitrage_opportunities"
}

// ExpiryDue reports whether the sweep should flip this opportunity to
// expired: still live and past its TTL. Terminal rows (executed, expired)
// are never touched.
func (o *ArbitrageOpportunity) ExpiryDue(now time.Time) bool {
	if o.ExpiresAt.After(now) {
		return false
	}
	for _, st := range LiveStatuses {
		if o.Status == st {
			return true
		}
	}
	return false
}

func (o *ArbitrageOpportunity) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
