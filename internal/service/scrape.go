package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"instapost/internal/browser"
	"instapost/internal/config"
	"instapost/internal/domain"
)

// State is a step of a scrape run.
type State string

const (
	StateInit         State = "INIT"
	StateSessionReady State = "SESSION_READY"
	StateLoggedIn     State = "LOGGED_IN"
	StateOnProfile    State = "ON_PROFILE"
	StateIterating    State = "ITERATING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

const (
	outcomeStored  = "stored"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

var errIncompletePost = errors.New("post has no caption or image")

// ScrapeService logs into the platform, walks the newest posts of one
// profile and stores every caption/image pair it has not seen before.
type ScrapeService struct {
	launcher browser.Launcher
	posts    PostStore
	state    ScrapeStateStore
	events   EventPublisher
	recorder ScrapeRecorder
	logger   *slog.Logger
	config   config.ScraperConfig
	profile  string

	current State
	now     func() time.Time
}

func NewScrapeService(
	launcher browser.Launcher,
	posts PostStore,
	state ScrapeStateStore,
	events EventPublisher,
	recorder ScrapeRecorder,
	logger *slog.Logger,
	cfg config.ScraperConfig,
) *ScrapeService {
	profile := ProfileName(cfg.ProfileURL)
	return &ScrapeService{
		launcher: launcher,
		posts:    posts,
		state:    state,
		events:   events,
		recorder: recorder,
		logger:   logger.With("profile", profile),
		config:   cfg,
		profile:  profile,
		current:  StateInit,
		now:      time.Now,
	}
}

// State returns the step the last run reached.
func (s *ScrapeService) State() State {
	return s.current
}

// Run performs one scrape. Failures on a single post are counted and
// skipped; failures to log in, reach the profile or write to the store end
// the run in StateFailed. The browser session is released in every case.
func (s *ScrapeService) Run(ctx context.Context) (stats *domain.ScrapeStats, err error) {
	startTime := s.now()
	stats = &domain.ScrapeStats{Profile: s.profile}
	s.current = StateInit

	s.logger.Info("starting scrape",
		"limit", s.config.Limit,
		"page_interval", s.config.PageInterval,
	)

	defer func() {
		stats.State = string(s.current)
		stats.Duration = s.now().Sub(startTime)
		if s.recorder != nil {
			s.recorder.ScrapeRun(err)
		}
	}()

	drv, err := s.launcher.Launch(ctx)
	if err != nil {
		return stats, s.fail("launch browser", err)
	}
	defer func() {
		if qerr := drv.Quit(); qerr != nil {
			s.logger.Warn("error closing browser session", "error", qerr)
		}
	}()
	s.transition(StateSessionReady)

	if err := s.login(ctx, drv); err != nil {
		return stats, s.fail("login", err)
	}
	s.transition(StateLoggedIn)

	links, err := s.collectLinks(ctx, drv)
	if err != nil {
		return stats, s.fail("open profile", err)
	}
	stats.Found = len(links)
	s.transition(StateOnProfile)

	s.logger.Info("post links collected", "count", len(links))
	s.transition(StateIterating)

	if err := s.iterate(ctx, drv, links, stats); err != nil {
		return stats, s.fail("iterate posts", err)
	}

	if err := s.updateScrapeState(ctx, stats); err != nil {
		return stats, s.fail("update scrape state", err)
	}

	s.transition(StateDone)
	s.logger.Info("scrape completed",
		"found", stats.Found,
		"visited", stats.Visited,
		"stored", stats.Stored,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"published", stats.Published,
		"errors", stats.Errors,
		"duration", s.now().Sub(startTime),
	)

	return stats, nil
}

func (s *ScrapeService) login(ctx context.Context, drv browser.Driver) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := drv.Open(s.config.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	username, err := browser.WaitVisible(drv, browser.ByName("username"), s.config.WaitTimeout)
	if err != nil {
		return fmt.Errorf("wait for username field: %w", err)
	}
	if err := username.SendKeys(s.config.Username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}

	password, err := drv.FindElement(browser.ByName("password"))
	if err != nil {
		return fmt.Errorf("find password field: %w", err)
	}
	if err := password.SendKeys(s.config.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	if err := password.SendKeys(browser.EnterKey); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	s.dismissInterstitial(drv)
	return nil
}

// dismissInterstitial clicks the "Not Now" prompt shown after login. The
// prompt is optional, so any failure only gets logged.
func (s *ScrapeService) dismissInterstitial(drv browser.Driver) {
	button, err := browser.WaitClickable(drv, browser.ButtonLabeled("Not Now"), s.config.WaitTimeout)
	if err != nil {
		s.logger.Info("no interstitial to dismiss", "error", err)
		return
	}
	if err := button.Click(); err != nil {
		s.logger.Info("error dismissing interstitial", "error", err)
	}
}

func (s *ScrapeService) collectLinks(ctx context.Context, drv browser.Driver) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := drv.Open(s.config.ProfileURL); err != nil {
		return nil, fmt.Errorf("open profile page: %w", err)
	}
	if _, err := browser.WaitPresent(drv, browser.PostLinks, s.config.WaitTimeout); err != nil {
		return nil, fmt.Errorf("wait for post links: %w", err)
	}

	anchors, err := drv.FindElements(browser.PostLinks)
	if err != nil {
		return nil, fmt.Errorf("find post links: %w", err)
	}

	var links []string
	for _, a := range anchors {
		if s.config.Limit > 0 && len(links) == s.config.Limit {
			break
		}
		href, err := a.Attribute("href")
		if err != nil {
			s.logger.Debug("error reading post link", "error", err)
			continue
		}
		if href == "" {
			continue
		}
		links = append(links, href)
	}
	return links, nil
}

func (s *ScrapeService) iterate(ctx context.Context, drv browser.Driver, links []string, stats *domain.ScrapeStats) error {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.config.PageInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.config.PageInterval), 1)
	}

	for _, link := range links {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		stats.Visited++

		caption, imageURL, err := s.scrapePost(drv, link)
		if err != nil {
			stats.Failed++
			s.record(outcomeFailed)
			s.logger.Info("error scraping post", "url", link, "error", err)
			continue
		}

		outcome, err := s.posts.Insert(ctx, caption, &imageURL)
		if err != nil {
			return fmt.Errorf("store post: %w", err)
		}

		switch outcome {
		case domain.Stored:
			stats.Stored++
			s.record(outcomeStored)
			s.logger.Info("post stored", "url", link)
			s.publish(ctx, caption, imageURL, stats)
		case domain.Skipped:
			stats.Skipped++
			s.record(outcomeSkipped)
			s.logger.Info("post already stored, skipped", "url", link)
		}
	}
	return nil
}

func (s *ScrapeService) scrapePost(drv browser.Driver, link string) (caption, imageURL string, err error) {
	if err := drv.Open(link); err != nil {
		return "", "", fmt.Errorf("open post: %w", err)
	}

	heading, err := browser.WaitPresent(drv, browser.CaptionHeading(s.config.CaptionClass), s.config.WaitTimeout)
	if err != nil {
		return "", "", fmt.Errorf("wait for caption: %w", err)
	}
	caption, err = heading.Text()
	if err != nil {
		return "", "", fmt.Errorf("read caption: %w", err)
	}

	img, err := browser.WaitPresent(drv, browser.ArticleImage, s.config.WaitTimeout)
	if err != nil {
		return "", "", fmt.Errorf("wait for image: %w", err)
	}
	imageURL, err = img.Attribute("src")
	if err != nil {
		return "", "", fmt.Errorf("read image src: %w", err)
	}

	if caption == "" || imageURL == "" {
		return "", "", errIncompletePost
	}
	return caption, imageURL, nil
}

func (s *ScrapeService) publish(ctx context.Context, caption, imageURL string, stats *domain.ScrapeStats) {
	if s.events == nil {
		return
	}
	post := &domain.Post{Caption: caption, ImageURL: &imageURL, CreatedAt: s.now()}
	if err := s.events.Publish(ctx, post); err != nil {
		stats.Errors++
		s.logger.Warn("error publishing post event", "error", err)
		return
	}
	stats.Published++
}

func (s *ScrapeService) updateScrapeState(ctx context.Context, stats *domain.ScrapeStats) error {
	state, err := s.state.Get(ctx, s.profile)
	if err != nil {
		return err
	}

	state.Profile = s.profile
	state.LastScrapedAt = s.now()
	state.TotalStored += int64(stats.Stored)

	return s.state.Update(ctx, state)
}

func (s *ScrapeService) transition(next State) {
	s.logger.Info("scraper state changed", "from", s.current, "to", next)
	s.current = next
}

func (s *ScrapeService) fail(step string, err error) error {
	s.logger.Error("scrape failed", "state", s.current, "step", step, "error", err)
	s.transition(StateFailed)
	return fmt.Errorf("%s: %w", step, err)
}

func (s *ScrapeService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.PostScraped(outcome)
	}
}

// ProfileName extracts the account name from a profile URL.
func ProfileName(profileURL string) string {
	u, err := url.Parse(profileURL)
	if err != nil || u.Path == "" {
		return strings.Trim(profileURL, "/")
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}
