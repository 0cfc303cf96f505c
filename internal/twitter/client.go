// Package twitter publishes summaries to X.com through the v2 tweet endpoint,
// attaching an image uploaded through the v1.1 media endpoint when one is
// available.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"instapost/internal/domain"
	"instapost/internal/imaging"
)

const (
	DefaultTweetURL       = "https://api.twitter.com/2/tweets"
	DefaultMediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	EndpointMedia  = "media_upload"
	EndpointTweets = "tweet"
)

var ErrPublishFailed = errors.New("publish failed")

type Credentials struct {
	APIKey            string
	APISecretKey      string
	AccessToken       string
	AccessTokenSecret string
}

type Config struct {
	TweetURL       string
	MediaUploadURL string
	Timeout        time.Duration
	Credentials    Credentials
}

// Recorder receives the HTTP status of each publisher request. A status of
// 0 means no response was received.
type Recorder interface {
	PublisherRequest(endpoint string, status int)
}

type Client struct {
	signed         *http.Client
	plain          *http.Client
	tweetURL       string
	mediaUploadURL string
	recorder       Recorder
	logger         *slog.Logger
}

func New(cfg Config, recorder Recorder, logger *slog.Logger) *Client {
	oauth := oauth1.NewConfig(cfg.Credentials.APIKey, cfg.Credentials.APISecretKey)
	token := oauth1.NewToken(cfg.Credentials.AccessToken, cfg.Credentials.AccessTokenSecret)

	// oauth1 reads the base client from the context.
	base := &http.Client{Timeout: cfg.Timeout}
	signed := oauth.Client(context.WithValue(context.Background(), oauth1.HTTPClient, base), token)
	signed.Timeout = cfg.Timeout

	tweetURL := cfg.TweetURL
	if tweetURL == "" {
		tweetURL = DefaultTweetURL
	}
	mediaURL := cfg.MediaUploadURL
	if mediaURL == "" {
		mediaURL = DefaultMediaUploadURL
	}

	return &Client{
		signed:         signed,
		plain:          &http.Client{Timeout: cfg.Timeout},
		tweetURL:       tweetURL,
		mediaUploadURL: mediaURL,
		recorder:       recorder,
		logger:         logger.With("component", "twitter"),
	}
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type mediaResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// Publish posts text, with the image at imageURL attached when it can be
// fetched and uploaded. Image failures are logged and the tweet goes out
// text-only.
func (c *Client) Publish(ctx context.Context, text string, imageURL *string) (*domain.Tweet, error) {
	var mediaID string
	if imageURL != nil && *imageURL != "" {
		id, err := c.uploadImage(ctx, *imageURL)
		if err != nil {
			c.logger.Error("error attaching image, publishing text only",
				"image_url", *imageURL,
				"error", err,
			)
		} else {
			mediaID = id
		}
	}

	return c.createTweet(ctx, text, mediaID)
}

func (c *Client) uploadImage(ctx context.Context, imageURL string) (string, error) {
	data, err := imaging.Fetch(ctx, c.plain, imageURL)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", "media")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mediaUploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.signed.Do(req)
	if err != nil {
		c.recordStatus(EndpointMedia, 0)
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()
	c.recordStatus(EndpointMedia, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload media: unexpected status: %d: %s", resp.StatusCode, msg)
	}

	var media mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return "", fmt.Errorf("decode media response: %w", err)
	}
	if media.MediaIDString == "" {
		return "", fmt.Errorf("upload media: empty media_id_string")
	}

	c.logger.Info("media uploaded", "media_id", media.MediaIDString)
	return media.MediaIDString, nil
}

func (c *Client) createTweet(ctx context.Context, text, mediaID string) (*domain.Tweet, error) {
	payload := tweetRequest{Text: text}
	if mediaID != "" {
		payload.Media = &tweetMedia{MediaIDs: []string{mediaID}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tweetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.signed.Do(req)
	if err != nil {
		c.recordStatus(EndpointTweets, 0)
		c.logger.Error("error posting tweet", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	defer resp.Body.Close()
	c.recordStatus(EndpointTweets, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("error reading tweet response", "error", err)
		return nil, fmt.Errorf("%w: read tweet response: %w", ErrPublishFailed, err)
	}

	if resp.StatusCode != http.StatusCreated {
		c.logger.Error("error posting tweet",
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return nil, fmt.Errorf("%w: status %d", ErrPublishFailed, resp.StatusCode)
	}

	tweet := &domain.Tweet{Text: text, Raw: json.RawMessage(raw)}
	var parsed tweetResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		tweet.ID = parsed.Data.ID
		if parsed.Data.Text != "" {
			tweet.Text = parsed.Data.Text
		}
	}

	c.logger.Info("tweet posted",
		"tweet_id", tweet.ID,
		"with_media", mediaID != "",
	)
	return tweet, nil
}

func (c *Client) recordStatus(endpoint string, status int) {
	if c.recorder == nil {
		return
	}
	c.recorder.PublisherRequest(endpoint, status)
}
