package domain

import "time"

// ScrapeState is the per-profile run ledger.
type ScrapeState struct {
	ID            int64     `db:"id"`
	Profile       string    `db:"profile"`
	LastScrapedAt time.Time `db:"last_scraped_at"`
	TotalStored   int64     `db:"total_stored"`
}

// ScrapeStats holds statistics about a single scraper run.
type ScrapeStats struct {
	Profile   string
	State     string
	Found     int
	Visited   int
	Stored    int
	Skipped   int
	Failed    int
	Published int
	Errors    int
	Duration  time.Duration
}
