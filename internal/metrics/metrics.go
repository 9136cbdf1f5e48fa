// Package metrics exposes Prometheus collectors for the board crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerListingPagesTotal    prometheus.Counter
	crawlerPostsTotal           *prometheus.CounterVec
	crawlerCommentsDroppedTotal prometheus.Counter
	crawlerFetchFailuresTotal   prometheus.Counter
	crawlerCommitsTotal         *prometheus.CounterVec
	crawlerCommitRetriesTotal   prometheus.Counter
	crawlerQueueDepth           prometheus.Gauge
	crawlerThrottleDelaySeconds prometheus.Histogram
	httpRequestsTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerListingPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_listing_pages_total",
				Help: "Total number of listing pages opened by the pagination walker.",
			},
		)

		crawlerPostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_posts_total",
				Help: "Total number of posts extracted and enqueued, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerCommentsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_comments_dropped_total",
				Help: "Total number of malformed comment blocks skipped during extraction.",
			},
		)

		crawlerFetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_failures_total",
				Help: "Total number of post pages that could not be fetched.",
			},
		)

		crawlerCommitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_commits_total",
				Help: "Total number of store commits, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerCommitRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_commit_retries_total",
				Help: "Total number of store commit retries.",
			},
		)

		crawlerQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_queue_depth",
				Help: "Number of posts waiting in the ingest queue.",
			},
		)

		crawlerThrottleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_throttle_delay_seconds",
				Help:    "Histogram of delays inserted between post fetches.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of query API requests, labeled by route and code.",
			},
			[]string{"route", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListingPage counts one listing page transition.
func ObserveListingPage() {
	Init()
	crawlerListingPagesTotal.Inc()
}

// ObservePost counts one enqueued post and its dropped comment blocks.
func ObservePost(outcome string, droppedComments int) {
	Init()
	crawlerPostsTotal.WithLabelValues(outcome).Inc()
	if droppedComments > 0 {
		crawlerCommentsDroppedTotal.Add(float64(droppedComments))
	}
}

// ObserveFetchFailure counts one post page that could not be fetched.
func ObserveFetchFailure() {
	Init()
	crawlerFetchFailuresTotal.Inc()
}

// ObserveCommit counts one commit attempt outcome ("success" or "dropped").
func ObserveCommit(status string) {
	Init()
	crawlerCommitsTotal.WithLabelValues(status).Inc()
}

// ObserveCommitRetry counts one store retry.
func ObserveCommitRetry() {
	Init()
	crawlerCommitRetriesTotal.Inc()
}

// SetQueueDepth records the current ingest queue length.
func SetQueueDepth(n int) {
	Init()
	crawlerQueueDepth.Set(float64(n))
}

// ObserveThrottleDelay records the delay inserted before the next fetch.
func ObserveThrottleDelay(d time.Duration) {
	Init()
	crawlerThrottleDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest counts one query API request.
func ObserveHTTPRequest(route string, code string) {
	Init()
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
