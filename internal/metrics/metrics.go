// Package metrics holds the Prometheus collectors for scrape runs, summaries
// and publisher calls.
//
// Batch commands do not live long enough to be scraped, so collectors are
// kept in a private registry and pushed to a Pushgateway when one is
// configured. Every method is a no-op on a nil *Metrics.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Metrics struct {
	registry *prometheus.Registry

	scrapedPosts      *prometheus.CounterVec
	scrapeRuns        *prometheus.CounterVec
	publisherRequests *prometheus.CounterVec
	summarizeDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scrapedPosts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instapost_scraped_posts_total",
				Help: "Posts visited by the scraper, by outcome.",
			},
			[]string{"outcome"},
		),
		scrapeRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instapost_scrape_runs_total",
				Help: "Completed scrape runs, by result.",
			},
			[]string{"result"},
		),
		publisherRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instapost_publisher_requests_total",
				Help: "Requests made by the publisher, by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		),
		// Summaries on a hosted model take seconds, not milliseconds.
		summarizeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "instapost_summarize_duration_seconds",
				Help:    "Latency of summary generation.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(m.scrapedPosts, m.scrapeRuns, m.publisherRequests, m.summarizeDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PostScraped counts one visited post. outcome is stored, skipped or failed.
func (m *Metrics) PostScraped(outcome string) {
	if m == nil {
		return
	}
	m.scrapedPosts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScrapeRun(err error) {
	if m == nil {
		return
	}
	m.scrapeRuns.WithLabelValues(result(err)).Inc()
}

// PublisherRequest counts one call to endpoint. A status of 0 means the
// request never got a response.
func (m *Metrics) PublisherRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.publisherRequests.WithLabelValues(endpoint, label).Inc()
}

func (m *Metrics) ObserveSummary(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.summarizeDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// Push sends the registry to the Pushgateway at url under job. An empty url
// disables pushing.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
