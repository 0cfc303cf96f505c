package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"instapost/internal/domain"
)

type ScrapeStateStore struct {
	db *sqlx.DB
}

func NewScrapeStateStore(db *sqlx.DB) *ScrapeStateStore {
	return &ScrapeStateStore{db: db}
}

func (s *ScrapeStateStore) Get(ctx context.Context, profile string) (*domain.ScrapeState, error) {
	var state domain.ScrapeState
	query := s.db.Rebind(`
		SELECT id, profile, last_scraped_at, total_stored
		FROM scrape_state
		WHERE profile = ?`)

	err := s.db.GetContext(ctx, &state, query, profile)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for profiles never scraped
		return &domain.ScrapeState{
			Profile:       profile,
			LastScrapedAt: time.Time{},
			TotalStored:   0,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *ScrapeStateStore) Update(ctx context.Context, state *domain.ScrapeState) error {
	query := s.db.Rebind(`
		INSERT INTO scrape_state (profile, last_scraped_at, total_stored)
		VALUES (?, ?, ?)
		ON CONFLICT (profile) DO UPDATE SET
			last_scraped_at = EXCLUDED.last_scraped_at,
			total_stored = EXCLUDED.total_stored`)

	_, err := s.db.ExecContext(ctx, query,
		state.Profile,
		state.LastScrapedAt,
		state.TotalStored,
	)
	return err
}
