package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	csvExports = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verification_csv_exports_total",
			Help: "Total CSV registry exports served.",
		},
	)
	expiryScanRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "expiry_scan_runs_total",
			Help: "Total verification expiry scan runs.",
		},
	)
	expiryScanFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "expiry_scan_failures_total",
			Help: "Total verification expiry scan failures.",
		},
	)
	expiryAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_alerts_created_total",
			Help: "Verification expiry alerts created, by bucket.",
		},
		[]string{"bucket"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	weatherFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_fetch_failures_total",
			Help: "Total weather service fetch failures.",
		},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency,
		csvExports,
		expiryScanRuns, expiryScanFailures, expiryAlerts,
		influxWriteFailures, weatherFetchFailures,
		kafkaConsumerLag, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncCSVExport() {
	csvExports.Inc()
}

func IncExpiryScanRun() {
	expiryScanRuns.Inc()
}

func IncExpiryScanFailure() {
	expiryScanFailures.Inc()
}

func IncExpiryAlert(bucket string) {
	expiryAlerts.WithLabelValues(bucket).Inc()
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncWeatherFetchFailure() {
	weatherFetchFailures.Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
