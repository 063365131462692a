package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventStatusUpcoming = "upcoming"
	EventStatusLive     = "live"
	EventStatusFinished = "finished"
)

// Event is a sporting event as delivered by the odds provider.
// Created by ingestion; read-only to the detection engine.
type Event struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalID   string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_id"`
	Sport        string         `gorm:"type:varchar(50);not null;index:ix_events_sport_status" json:"sport"`
	Teams        datatypes.JSON `gorm:"type:jsonb;not null" json:"teams"`
	CommenceTime time.Time      `gorm:"type:timestamptz;not null;index" json:"commence_time"`
	Status       string         `gorm:"type:varchar(20);not null;default:'upcoming';index:ix_events_sport_status" json:"status"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
