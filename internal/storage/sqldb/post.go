package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"instapost/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// EnsureSchema creates the post tables if they do not exist yet.
func (s *PostStore) EnsureSchema(ctx context.Context) error {
	return EnsureSchema(ctx, s.db)
}

// Exists reports whether a post with exactly this caption is stored.
func (s *PostStore) Exists(ctx context.Context, caption string) (bool, error) {
	exec := GetExecutor(ctx, s.db)

	var id int64
	err := sqlx.GetContext(ctx, exec, &id,
		exec.Rebind("SELECT id FROM instagram_posts WHERE caption = ?"),
		caption,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check caption: %w", err)
	}
	return true, nil
}

// Insert stores a new post unless one with the same caption exists.
// A uniqueness violation from a concurrent writer is reported as Skipped.
func (s *PostStore) Insert(ctx context.Context, caption string, imageURL *string) (domain.InsertOutcome, error) {
	exists, err := s.Exists(ctx, caption)
	if err != nil {
		return domain.Skipped, err
	}
	if exists {
		return domain.Skipped, nil
	}
	return s.insertRow(ctx, caption, imageURL)
}

func (s *PostStore) insertRow(ctx context.Context, caption string, imageURL *string) (domain.InsertOutcome, error) {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		exec.Rebind("INSERT INTO instagram_posts (caption, image_url) VALUES (?, ?)"),
		caption, imageURL,
	)
	if isUniqueViolation(err) {
		return domain.Skipped, nil
	}
	if err != nil {
		return domain.Skipped, fmt.Errorf("insert post: %w", err)
	}
	return domain.Stored, nil
}

// Latest returns the newest post, breaking created_at ties by id.
func (s *PostStore) Latest(ctx context.Context) (*domain.Post, error) {
	exec := GetExecutor(ctx, s.db)

	var post domain.Post
	err := sqlx.GetContext(ctx, exec, &post, `
		SELECT id, caption, image_url, created_at
		FROM instagram_posts
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoPosts
	}
	if err != nil {
		return nil, fmt.Errorf("select latest post: %w", err)
	}
	return &post, nil
}

// Count returns the number of stored posts.
func (s *PostStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM instagram_posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}
