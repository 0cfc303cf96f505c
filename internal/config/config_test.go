package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
log_level: debug
tokens:
  user: insta
  password: ${TEST_DB_PASSWORD}
  host: db
  port: "5432"
  insta_username: scraper
  insta_password: hunter2
  api_key: ck
  api_secret_key: cs
  access_token: at
  access_token_secret: ats
scraper:
  limit: 3
  wait_timeout: 5s
summarizer:
  backend: openai
  base_url: http://llm.local/v1
  model: gpt-4o-mini
`

func TestParse_AppliesTokensAndDefaults(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/app/logs", cfg.LogDir)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "host=db port=5432 user=insta password=s3cret dbname=insta_posts_db sslmode=disable", cfg.Database.DSN())

	assert.Equal(t, 3, cfg.Scraper.Limit)
	assert.Equal(t, 5*time.Second, cfg.Scraper.WaitTimeout)
	assert.Equal(t, "_ap3a", cfg.Scraper.CaptionClass)
	assert.Equal(t, "scraper", cfg.Scraper.Username)
	assert.Equal(t, "hunter2", cfg.Scraper.Password)

	assert.Equal(t, "selenium", cfg.Browser.Driver)
	assert.Equal(t, "http://selenium-firefox:4444/wd/hub", cfg.Browser.RemoteURL)

	assert.Equal(t, "openai", cfg.Summarizer.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.Summarizer.Model)

	assert.Equal(t, "https://api.twitter.com/2/tweets", cfg.Twitter.TweetURL)
	assert.Equal(t, "ck", cfg.Twitter.APIKey)
	assert.Equal(t, "ats", cfg.Twitter.AccessTokenSecret)

	assert.Empty(t, cfg.RabbitMQ.URL)
	assert.Equal(t, "instapost", cfg.RabbitMQ.Exchange)
}

func TestParse_MissingTokens(t *testing.T) {
	_, err := Parse([]byte(`
tokens:
  user: insta
  insta_username: scraper
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tokens")
	assert.Contains(t, err.Error(), "password")
	assert.Contains(t, err.Error(), "access_token_secret")
	assert.NotContains(t, err.Error(), "insta_username")
}

func TestParse_SQLiteSkipsDatabaseTokens(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  driver: sqlite
  path: /tmp/posts.db
tokens:
  insta_username: scraper
  insta_password: pw
  api_key: ck
  api_secret_key: cs
  access_token: at
  access_token_secret: ats
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/posts.db", cfg.Database.DSN())
	assert.Equal(t, "https://api-inference.huggingface.co", cfg.Summarizer.BaseURL)
	assert.Equal(t, "google/pegasus-cnn_dailymail", cfg.Summarizer.Model)
}

func TestParse_RejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte(`
database:
  driver: sqlite
browser:
  driver: lynx
tokens:
  insta_username: scraper
  insta_password: pw
  api_key: ck
  api_secret_key: cs
  access_token: at
  access_token_secret: ats
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lynx")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "pw")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pw", cfg.Tokens[KeyDBPassword])
}
