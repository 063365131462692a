package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BookmakerHealthy  = "healthy"
	BookmakerDegraded = "degraded"
	BookmakerDown     = "down"
	BookmakerUnknown  = "unknown"
)

// BookmakerStatus tracks per-bookmaker fetch reliability. Mutated only by
// the collector; read by risk scoring and the analyzer as a signal.
type BookmakerStatus struct {
	ID               string     `gorm:"primaryKey;type:uuid" json:"id"`
	Bookmaker        string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"bookmaker"`
	ReliabilityScore float64    `gorm:"not null;default:5" json:"reliability_score"`
	APIStatus        string     `gorm:"type:varchar(20);not null;default:'unknown'" json:"api_status"`
	ErrorCount       int        `gorm:"not null;default:0" json:"error_count"`
	LastSuccessAt    *time.Time `gorm:"type:timestamptz" json:"last_success_at,omitempty"`
	RateLimitReset   *time.Time `gorm:"type:timestamptz" json:"rate_limit_reset,omitempty"`
	UpdatedAt        time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (BookmakerStatus) TableName() string {
	return "bookmaker_statuses"
}

func (b *BookmakerStatus) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
