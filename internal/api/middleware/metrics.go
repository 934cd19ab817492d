// metrics.go — HTTP-метрики Prometheus: tt_http_requests_total и
// tt_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tt_http_requests_total",
			Help: "Общее количество HTTP-запросов к TaskTrack",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tt_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к TaskTrack в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность по каждому endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder запоминает статус-код ответа для лейбла метрики.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap открывает исходный ResponseWriter для http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// staticMetricPaths попадают в лейблы как есть.
var staticMetricPaths = map[string]bool{
	"/health/live":                  true,
	"/health/ready":                 true,
	"/metrics":                      true,
	"/login":                        true,
	"/callback":                     true,
	"/logout":                       true,
	"/access-denied":                true,
	"/rate-limit":                   true,
	"/clear-access-denied-session":  true,
	"/profile/edit":                 true,
	"/api/profile":                  true,
	"/api/activities":               true,
	"/api/dropdowns/categories":     true,
	"/api/dropdowns/values":         true,
	"/api/admin/users":              true,
	"/api/admin/query/execute":      true,
	"/api/admin/query/history":      true,
}

// normalizePath сворачивает динамические сегменты в плейсхолдеры,
// иначе UUID в путях раздувают кардинальность метрик.
func normalizePath(path string) string {
	if staticMetricPaths[path] {
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/activities/"):
		return "/api/activities/{id}"
	case strings.HasPrefix(path, "/api/dropdowns/values/"):
		return "/api/dropdowns/values/{id}"
	case strings.HasPrefix(path, "/api/admin/users/"):
		return "/api/admin/users/{subject}/role"
	case strings.HasPrefix(path, "/api/dropdowns/"):
		return "/api/dropdowns/{category}"
	case strings.HasPrefix(path, "/static/"):
		return "/static/*"
	case path == "/ui" || strings.HasPrefix(path, "/ui/"):
		return normalizeUIPath(path)
	}
	return path
}

func normalizeUIPath(path string) string {
	switch path {
	case "/ui", "/ui/", "/ui/dropdowns", "/ui/query":
		return path
	}
	return "/ui/*"
}
