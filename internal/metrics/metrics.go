package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Listener metrics

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrapeq",
		Name:      "messages_total",
		Help:      "Messages handled by the listener, by outcome.",
	}, []string{"outcome"})

	ExtractionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scrapeq",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of one extract-and-persist cycle.",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ProductsExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scrapeq",
		Name:      "products_extracted_total",
		Help:      "Total product records extracted.",
	})

	// Submission metrics

	TasksSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrapeq",
		Name:      "tasks_submitted_total",
		Help:      "Submission outcomes at the front door.",
	}, []string{"outcome"})

	// Rate limiter metrics

	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scrapeq",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a rate limit permit.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scrapeq",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scrapeq",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		MessagesTotal,
		ExtractionDuration,
		ProductsExtractedTotal,
		TasksSubmittedTotal,
		RateLimitWaitDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
