package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OddsSnapshot is one bookmaker's quote sheet for an event at a point in
// time. OddsData maps market type -> outcome -> decimal price. Snapshots are
// immutable once captured; superseded ones are flipped inactive and aged out
// by the retention sweep.
type OddsSnapshot struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	EventID    string         `gorm:"type:uuid;not null;index:ix_odds_event_bookmaker" json:"event_id"`
	Bookmaker  string         `gorm:"type:varchar(50);not null;index:ix_odds_event_bookmaker" json:"bookmaker"`
	OddsData   datatypes.JSON `gorm:"type:jsonb;not null" json:"odds_data"`
	CapturedAt time.Time      `gorm:"type:timestamptz;not null;index:ix_odds_active_recent" json:"captured_at"`
	IsActive   bool           `gorm:"not null;default:true;index:ix_odds_active_recent" json:"is_active"`
}

func (OddsSnapshot) TableName() string {
	return "odds_snapshots"
}

func (s *OddsSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
