package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Keys of the tokens map.
const (
	KeyDBUser            = "user"
	KeyDBPassword        = "password"
	KeyDBHost            = "host"
	KeyDBPort            = "port"
	KeyInstaUsername     = "insta_username"
	KeyInstaPassword     = "insta_password"
	KeyAPIKey            = "api_key"
	KeyAPISecretKey      = "api_secret_key"
	KeyAccessToken       = "access_token"
	KeyAccessTokenSecret = "access_token_secret"
)

var (
	databaseKeys  = []string{KeyDBUser, KeyDBPassword, KeyDBHost, KeyDBPort}
	scraperKeys   = []string{KeyInstaUsername, KeyInstaPassword}
	publisherKeys = []string{KeyAPIKey, KeyAPISecretKey, KeyAccessToken, KeyAccessTokenSecret}
)

type Config struct {
	Tokens     Tokens           `yaml:"tokens"`
	Database   DatabaseConfig   `yaml:"database"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Browser    BrowserConfig    `yaml:"browser"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Twitter    TwitterConfig    `yaml:"twitter"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LogLevel   string           `yaml:"log_level"`
	LogDir     string           `yaml:"log_dir"`
}

// Tokens is the opaque secrets map loaded at startup.
type Tokens map[string]string

func (t Tokens) missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if strings.TrimSpace(t[k]) == "" {
			out = append(out, k)
		}
	}
	return out
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"-"`
	Port     string `yaml:"-"`
	User     string `yaml:"-"`
	Password string `yaml:"-"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite file
}

func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type ScraperConfig struct {
	ProfileURL   string        `yaml:"profile_url"`
	Limit        int           `yaml:"limit"`
	LoginURL     string        `yaml:"login_url"`
	CaptionClass string        `yaml:"caption_class"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	PageInterval time.Duration `yaml:"page_interval"`
	Interval     time.Duration `yaml:"interval"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
	Username     string        `yaml:"-"`
	Password     string        `yaml:"-"`
}

type BrowserConfig struct {
	Driver      string `yaml:"driver"` // "selenium" or "static"
	RemoteURL   string `yaml:"remote_url"`
	BrowserName string `yaml:"browser_name"`
	Headless    bool   `yaml:"headless"`
}

type SummarizerConfig struct {
	Backend  string        `yaml:"backend"` // "huggingface" or "openai"
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TwitterConfig struct {
	TweetURL          string        `yaml:"tweet_url"`
	MediaUploadURL    string        `yaml:"media_upload_url"`
	Timeout           time.Duration `yaml:"timeout"`
	APIKey            string        `yaml:"-"`
	APISecretKey      string        `yaml:"-"`
	AccessToken       string        `yaml:"-"`
	AccessTokenSecret string        `yaml:"-"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type MetricsConfig struct {
	PushGatewayURL string `yaml:"push_gateway_url"`
	Job            string `yaml:"job"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.applyTokens()

	return &cfg, nil
}

// Validate reports every required token that is absent.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Driver == "postgres" {
		missing = append(missing, c.Tokens.missing(databaseKeys...)...)
	}
	missing = append(missing, c.Tokens.missing(scraperKeys...)...)
	missing = append(missing, c.Tokens.missing(publisherKeys...)...)
	if len(missing) > 0 {
		return fmt.Errorf("missing tokens: %s", strings.Join(missing, ", "))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Browser.Driver {
	case "selenium", "static":
	default:
		return fmt.Errorf("unsupported browser driver %q", c.Browser.Driver)
	}
	switch c.Summarizer.Backend {
	case "huggingface", "openai":
	default:
		return fmt.Errorf("unsupported summarizer backend %q", c.Summarizer.Backend)
	}
	if c.Scraper.Limit < 0 {
		return errors.New("scraper.limit must not be negative")
	}
	return nil
}

func (c *Config) applyTokens() {
	c.Database.User = c.Tokens[KeyDBUser]
	c.Database.Password = c.Tokens[KeyDBPassword]
	c.Database.Host = c.Tokens[KeyDBHost]
	c.Database.Port = c.Tokens[KeyDBPort]

	c.Scraper.Username = c.Tokens[KeyInstaUsername]
	c.Scraper.Password = c.Tokens[KeyInstaPassword]

	c.Twitter.APIKey = c.Tokens[KeyAPIKey]
	c.Twitter.APISecretKey = c.Tokens[KeyAPISecretKey]
	c.Twitter.AccessToken = c.Tokens[KeyAccessToken]
	c.Twitter.AccessTokenSecret = c.Tokens[KeyAccessTokenSecret]
}

func (c *Config) setDefaults() {
	if c.Tokens == nil {
		c.Tokens = Tokens{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.DBName == "" {
		c.Database.DBName = "insta_posts_db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Path == "" {
		c.Database.Path = "instapost.db"
	}
	if c.Scraper.ProfileURL == "" {
		c.Scraper.ProfileURL = "https://www.instagram.com/bbcnews/"
	}
	if c.Scraper.Limit == 0 {
		c.Scraper.Limit = 5
	}
	if c.Scraper.LoginURL == "" {
		c.Scraper.LoginURL = "https://www.instagram.com/accounts/login/"
	}
	if c.Scraper.CaptionClass == "" {
		c.Scraper.CaptionClass = "_ap3a"
	}
	if c.Scraper.WaitTimeout == 0 {
		c.Scraper.WaitTimeout = 10 * time.Second
	}
	if c.Scraper.RunTimeout == 0 {
		c.Scraper.RunTimeout = 10 * time.Minute
	}
	if c.Browser.Driver == "" {
		c.Browser.Driver = "selenium"
	}
	if c.Browser.RemoteURL == "" {
		c.Browser.RemoteURL = "http://selenium-firefox:4444/wd/hub"
	}
	if c.Browser.BrowserName == "" {
		c.Browser.BrowserName = "firefox"
	}
	if c.Summarizer.Backend == "" {
		c.Summarizer.Backend = "huggingface"
	}
	if c.Summarizer.BaseURL == "" && c.Summarizer.Backend == "huggingface" {
		c.Summarizer.BaseURL = "https://api-inference.huggingface.co"
	}
	if c.Summarizer.Model == "" && c.Summarizer.Backend == "huggingface" {
		c.Summarizer.Model = "google/pegasus-cnn_dailymail"
	}
	if c.Summarizer.Timeout == 0 {
		c.Summarizer.Timeout = 2 * time.Minute
	}
	if c.Twitter.TweetURL == "" {
		c.Twitter.TweetURL = "https://api.twitter.com/2/tweets"
	}
	if c.Twitter.MediaUploadURL == "" {
		c.Twitter.MediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	}
	if c.Twitter.Timeout == 0 {
		c.Twitter.Timeout = 30 * time.Second
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "instapost"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "posts"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "instagram_posts"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "instapost"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogDir == "" {
		c.LogDir = "/app/logs"
	}
}
