// Package market turns raw odds snapshots into per-market books that the
// detector can price.
package market

import (
	"encoding/json"
	"time"

	"arbscan/internal/models"
)

// Quote is one bookmaker's latest contribution to a market: outcome name to
// decimal price, plus when the quote was captured.
type Quote struct {
	Bookmaker  string
	Odds       map[string]float64
	CapturedAt time.Time
}

// Book holds all contributing bookmaker quotes for one market, keyed by
// bookmaker identifier.
type Book map[string]Quote

// Aggregate groups the event's active snapshots by market type and
// bookmaker, keeping only the latest snapshot per bookmaker per market and
// only snapshots captured within the freshness window. Markets with fewer
// than two contributing bookmakers are dropped: a single quote carries no
// arbitrage signal. Snapshots whose odds payload does not decode are skipped.
func Aggregate(snapshots []models.OddsSnapshot, now time.Time, freshness time.Duration) map[string]Book {
	cutoff := now.Add(-freshness)
	books := map[string]Book{}
	for _, snap := range snapshots {
		if !snap.IsActive || !snap.CapturedAt.After(cutoff) {
			continue
		}
		var markets map[string]map[string]float64
		if err := json.Unmarshal(snap.OddsData, &markets); err != nil {
			continue
		}
		for marketType, odds := range markets {
			if len(odds) == 0 {
				continue
			}
			book, ok := books[marketType]
			if !ok {
				book = Book{}
				books[marketType] = book
			}
			prev, seen := book[snap.Bookmaker]
			if seen && !snap.CapturedAt.After(prev.CapturedAt) {
				continue
			}
			book[snap.Bookmaker] = Quote{
				Bookmaker:  snap.Bookmaker,
				Odds:       odds,
				CapturedAt: snap.CapturedAt,
			}
		}
	}
	for marketType, book := range books {
		if len(book) < 2 {
			delete(books, marketType)
		}
	}
	return books
}
