// handler.go — основной обработчик REST API TaskTrack.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bigkaa/tasktrack/internal/service"
)

// APIHandler — основной обработчик REST API TaskTrack.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health     *HealthHandler
	profiles   *service.ProfileService
	dropdowns  *service.DropdownService
	activities *service.ActivityService
	queryExec  QueryExecutor
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	profiles *service.ProfileService,
	dropdowns *service.DropdownService,
	activities *service.ActivityService,
	queryExec QueryExecutor,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		profiles:   profiles,
		dropdowns:  dropdowns,
		activities: activities,
		queryExec:  queryExec,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// timeFormat — формат временных меток в ответах API.
const timeFormat = "2006-01-02T15:04:05Z07:00"

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationFromQuery извлекает limit/offset из query-параметров.
// Возвращает нормализованные значения.
func paginationFromQuery(values url.Values) (limit, offset int) {
	limit = 50
	offset = 0

	if v := values.Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
			if limit > 200 {
				limit = 200
			}
		}
	}
	if v := values.Get("offset"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

// parsePositiveInt разбирает неотрицательное целое из строки.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// listResponse — обёртка для списочных ответов с пагинацией.
type listResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
