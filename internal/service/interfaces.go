package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"image"

	"instapost/internal/domain"
)

type PostStore interface {
	Insert(ctx context.Context, caption string, imageURL *string) (domain.InsertOutcome, error)
	Latest(ctx context.Context) (*domain.Post, error)
}

type ScrapeStateStore interface {
	Get(ctx context.Context, profile string) (*domain.ScrapeState, error)
	Update(ctx context.Context, state *domain.ScrapeState) error
}

type EventPublisher interface {
	Publish(ctx context.Context, post *domain.Post) error
	Close() error
}

type Summarizer interface {
	Summarize(ctx context.Context, caption string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, text string, imageURL *string) (*domain.Tweet, error)
}

type ImageLoader interface {
	Preview(ctx context.Context, url string) (image.Image, error)
}

type ScrapeRecorder interface {
	PostScraped(outcome string)
	ScrapeRun(err error)
}
