package domain

import (
	"errors"
	"time"
)

// ErrNoPosts is returned when the store holds no posts yet.
var ErrNoPosts = errors.New("no posts stored")

// Post is a single caption/image pair captured from a profile.
type Post struct {
	ID        int64     `db:"id" json:"id"`
	Caption   string    `db:"caption" json:"caption"`
	ImageURL  *string   `db:"image_url" json:"image_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasImage reports whether the post carries a non-empty image URL.
func (p *Post) HasImage() bool {
	return p != nil && p.ImageURL != nil && *p.ImageURL != ""
}

// InsertOutcome is the result of an idempotent insert.
type InsertOutcome int

const (
	Stored InsertOutcome = iota
	Skipped
)

func (o InsertOutcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}
