// health.go — служебные endpoint-ы TaskTrack: liveness, readiness
// и Prometheus-метрики.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/tasktrack/internal/config"
)

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и пояснение.
	CheckReady() (status string, message string)
}

// HealthHandler обслуживает /health/live, /health/ready и /metrics.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	kcChecker   ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик служебных endpoint-ов.
// nil-checker трактуется как неготовая зависимость.
func NewHealthHandler(pgChecker, kcChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		kcChecker:   kcChecker,
		promHandler: promhttp.Handler(),
	}
}

type dependencyCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    *struct {
		PostgreSQL dependencyCheck `json:"postgresql"`
		Keycloak   dependencyCheck `json:"keycloak"`
	} `json:"checks,omitempty"`
}

func newHealthResponse(status string) healthResponse {
	return healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "tasktrack",
	}
}

// HealthLive — liveness probe: процесс отвечает, значит жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, newHealthResponse("ok"))
}

// HealthReady — readiness probe: опрашивает PostgreSQL и Keycloak.
// fail любой зависимости даёт 503, degraded оставляет 200.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := newHealthResponse("")
	resp.Checks = &struct {
		PostgreSQL dependencyCheck `json:"postgresql"`
		Keycloak   dependencyCheck `json:"keycloak"`
	}{
		PostgreSQL: runCheck(h.pgChecker),
		Keycloak:   runCheck(h.kcChecker),
	}
	resp.Status = worstStatus(resp.Checks.PostgreSQL.Status, resp.Checks.Keycloak.Status)

	code := http.StatusOK
	if resp.Status == "fail" {
		code = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, code, resp)
}

// GetMetrics отдаёт Prometheus-метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func runCheck(c ReadinessChecker) dependencyCheck {
	if c == nil {
		return dependencyCheck{Status: "fail", Message: "не инициализирован"}
	}
	status, message := c.CheckReady()
	return dependencyCheck{Status: status, Message: message}
}

// worstStatus сводит статусы зависимостей в итоговый:
// fail перевешивает degraded, degraded перевешивает ok.
func worstStatus(statuses ...string) string {
	result := "ok"
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			result = "degraded"
		}
	}
	return result
}

func writeHealthJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
