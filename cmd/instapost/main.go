// Package main is the instapost command: a batch scraper that stores new
// Instagram posts and an operator screen that summarizes and re-publishes
// the newest one on X.com.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jmoiron/sqlx"

	"instapost/internal/broker"
	"instapost/internal/browser"
	"instapost/internal/config"
	"instapost/internal/domain"
	"instapost/internal/imaging"
	"instapost/internal/logging"
	"instapost/internal/metrics"
	"instapost/internal/scheduler"
	"instapost/internal/service"
	"instapost/internal/storage/sqldb"
	"instapost/internal/summarizer"
	"instapost/internal/tui"
	"instapost/internal/twitter"
)

var CLI struct {
	Config string `help:"Configuration file path" default:"config.yaml" type:"path"`

	Scrape struct {
		Profile  string        `help:"Profile name or URL to scrape (overrides scraper.profile_url)"`
		Limit    int           `help:"Number of newest posts to visit (overrides scraper.limit)"`
		Interval time.Duration `help:"Repeat every interval until interrupted (overrides scraper.interval)"`
	} `cmd:"scrape" help:"Collect the newest posts of a profile into the store."`

	Operator struct{} `cmd:"operator" help:"Summarize and publish the newest stored post interactively."`

	Migrate struct{} `cmd:"migrate" help:"Create the database schema and exit."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("instapost"),
		kong.Description("Scrape Instagram posts, summarize them and re-publish on X.com."),
	)

	logger := logging.Stdout("info")

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	mirror := io.Writer(os.Stdout)
	if kctx.Command() == "operator" {
		mirror = io.Discard
	}
	logger, closer, err := logging.Setup(cfg.LogDir, cfg.LogLevel, mirror)
	if err != nil {
		logging.Stdout("info").Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch kctx.Command() {
	case "scrape":
		err = runScrape(ctx, cfg, db, logger)
	case "operator":
		err = runOperator(ctx, cfg, db, logger)
	case "migrate":
		logger.Info("schema is up to date", "driver", cfg.Database.Driver)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", "command", kctx.Command(), "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqldb.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqldb.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database", "driver", cfg.Driver)
	return db, nil
}

func runScrape(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger) error {
	applyScrapeFlags(&cfg.Scraper)

	m := metrics.New()

	var events service.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := broker.NewRabbitMQ(broker.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	scrapeService := service.NewScrapeService(
		newLauncher(cfg.Browser, logger),
		sqldb.NewPostStore(db),
		sqldb.NewScrapeStateStore(db),
		events,
		m,
		logger,
		cfg.Scraper,
	)

	runner := scheduler.RunnerFunc(func(ctx context.Context) (*domain.ScrapeStats, error) {
		stats, err := scrapeService.Run(ctx)
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if perr := m.Push(pushCtx, cfg.Metrics.PushGatewayURL, cfg.Metrics.Job); perr != nil {
			logger.Warn("error pushing metrics", "error", perr)
		}
		return stats, err
	})

	logger.Info("starting scraper",
		"profile", cfg.Scraper.ProfileURL,
		"limit", cfg.Scraper.Limit,
		"interval", cfg.Scraper.Interval,
		"browser", cfg.Browser.Driver,
	)

	return scheduler.NewScheduler(runner, cfg.Scraper.Interval, cfg.Scraper.RunTimeout, logger).Start(ctx)
}

func applyScrapeFlags(sc *config.ScraperConfig) {
	if p := strings.TrimSpace(CLI.Scrape.Profile); p != "" {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			sc.ProfileURL = p
		} else {
			sc.ProfileURL = "https://www.instagram.com/" + strings.Trim(p, "/@") + "/"
		}
	}
	if CLI.Scrape.Limit > 0 {
		sc.Limit = CLI.Scrape.Limit
	}
	if CLI.Scrape.Interval > 0 {
		sc.Interval = CLI.Scrape.Interval
	}
}

func newLauncher(cfg config.BrowserConfig, logger *slog.Logger) browser.Launcher {
	if cfg.Driver == "static" {
		return &browser.StaticLauncher{}
	}
	return &browser.SeleniumLauncher{
		RemoteURL:   cfg.RemoteURL,
		BrowserName: cfg.BrowserName,
		Headless:    cfg.Headless,
		Logger:      logger,
	}
}

func newModel(cfg config.SummarizerConfig) summarizer.Model {
	if cfg.Backend == "openai" {
		return summarizer.NewOpenAI(summarizer.OpenAIConfig{
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			APIToken: cfg.APIToken,
		})
	}
	return summarizer.NewHuggingFace(summarizer.HuggingFaceConfig{
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		APIToken: cfg.APIToken,
		Timeout:  cfg.Timeout,
	})
}

func runOperator(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger) error {
	m := metrics.New()
	defer func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Push(pushCtx, cfg.Metrics.PushGatewayURL, cfg.Metrics.Job); err != nil {
			logger.Warn("error pushing metrics", "error", err)
		}
	}()

	publisher := twitter.New(twitter.Config{
		TweetURL:       cfg.Twitter.TweetURL,
		MediaUploadURL: cfg.Twitter.MediaUploadURL,
		Timeout:        cfg.Twitter.Timeout,
		Credentials: twitter.Credentials{
			APIKey:            cfg.Twitter.APIKey,
			APISecretKey:      cfg.Twitter.APISecretKey,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		},
	}, m, logger)

	operator := service.NewOperator(
		sqldb.NewPostStore(db),
		summarizer.New(newModel(cfg.Summarizer), logger, m),
		publisher,
		imaging.Loader{Client: &http.Client{Timeout: cfg.Twitter.Timeout}},
		logger,
	)

	logger.Info("starting operator", "summarizer", cfg.Summarizer.Backend)

	err := tui.Run(ctx, operator)
	if errors.Is(err, tea.ErrProgramKilled) {
		return context.Canceled
	}
	return err
}
