package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soaringjerry/surveyhub/internal/services"
)

// Collector owns a private registry with the engine's counters and the HTTP
// request histogram. It satisfies services.Observer.
type Collector struct {
	registry *prometheus.Registry

	Submissions      *prometheus.CounterVec
	Materializations *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

var _ services.Observer = (*Collector)(nil)

func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "survey"
	}
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submission engine calls by action and outcome",
		}, []string{"action", "outcome"}),
		Materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_total",
			Help:      "Placeholder row initialisations by path taken",
		}, []string{"path"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded files by outcome",
		}, []string{"outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
	}
	reg.MustRegister(c.Submissions, c.Materializations, c.Uploads, c.HTTPDuration)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Materialized(path services.MaterializePath) {
	c.Materializations.WithLabelValues(string(path)).Inc()
}

func (c *Collector) Submission(action, outcome string) {
	c.Submissions.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) Upload(outcome string) {
	c.Uploads.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request latency labelled by the matched mux route
// template, so path parameters do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		c.HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
