package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"instapost/internal/domain"
)

var (
	ErrNoCaption = errors.New("no caption loaded, show the latest post first")
	ErrNoSummary = errors.New("no summary available, summarize first")
)

// LatestView is what the operator sees for the newest stored post. A failed
// image load is reported in ImageErr and does not fail the view.
type LatestView struct {
	Post     *domain.Post
	Image    image.Image
	ImageErr error
}

// Operator backs the interactive surface: it remembers the post on screen,
// the last summary and the post that summary was generated from. Loading
// another post leaves the summary and its source untouched. It is not safe
// for concurrent use.
type Operator struct {
	posts      PostStore
	summarizer Summarizer
	publisher  Publisher
	images     ImageLoader
	logger     *slog.Logger

	current *domain.Post
	summary string
	source  *domain.Post
}

func NewOperator(
	posts PostStore,
	summarizer Summarizer,
	publisher Publisher,
	images ImageLoader,
	logger *slog.Logger,
) *Operator {
	return &Operator{
		posts:      posts,
		summarizer: summarizer,
		publisher:  publisher,
		images:     images,
		logger:     logger.With("component", "operator"),
	}
}

func (o *Operator) ShowLatest(ctx context.Context) (*LatestView, error) {
	post, err := o.posts.Latest(ctx)
	if err != nil {
		o.logger.Error("error fetching latest post", "error", err)
		return nil, fmt.Errorf("fetch latest post: %w", err)
	}

	o.current = post
	view := &LatestView{Post: post}

	if post.HasImage() && o.images != nil {
		img, err := o.images.Preview(ctx, *post.ImageURL)
		if err != nil {
			o.logger.Error("error loading image", "image_url", *post.ImageURL, "error", err)
			view.ImageErr = err
		} else {
			view.Image = img
		}
	}

	o.logger.Info("latest post shown", "post_id", post.ID)
	return view, nil
}

// Summarize summarizes the caption of the post last shown. The previous
// summary is kept when generation fails.
func (o *Operator) Summarize(ctx context.Context) (string, error) {
	if o.current == nil || strings.TrimSpace(o.current.Caption) == "" {
		return "", ErrNoCaption
	}

	summary, err := o.summarizer.Summarize(ctx, o.current.Caption)
	if err != nil {
		return "", fmt.Errorf("summarize caption: %w", err)
	}

	o.summary = summary
	o.source = o.current
	return summary, nil
}

// Publish posts the current summary, with the image of the post it was
// generated from when withImage is set.
func (o *Operator) Publish(ctx context.Context, withImage bool) (*domain.Tweet, error) {
	if o.summary == "" {
		return nil, ErrNoSummary
	}

	var imageURL *string
	if withImage && o.source.HasImage() {
		imageURL = o.source.ImageURL
	}

	tweet, err := o.publisher.Publish(ctx, o.summary, imageURL)
	if err != nil {
		return nil, fmt.Errorf("publish summary: %w", err)
	}

	o.logger.Info("summary published",
		"tweet_id", tweet.ID,
		"post_id", o.source.ID,
		"with_image", imageURL != nil,
	)
	return tweet, nil
}

func (o *Operator) Current() *domain.Post {
	return o.current
}

func (o *Operator) Summary() string {
	return o.summary
}

// SummarySource returns the post the current summary belongs to.
func (o *Operator) SummarySource() *domain.Post {
	return o.source
}
