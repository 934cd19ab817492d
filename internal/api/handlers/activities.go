// activities.go — обработчики задач (активностей) пользователей.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tasktrack/internal/api/errors"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/service"
)

// dueDateFormat — формат даты срока исполнения в API.
const dueDateFormat = "2006-01-02"

// activityResponse — представление задачи в API.
type activityResponse struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toActivityResponse(a *model.Activity) activityResponse {
	resp := activityResponse{
		ID:          a.ID,
		Subject:     a.Subject,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Status:      a.Status,
		Priority:    a.Priority,
		CreatedAt:   a.CreatedAt.Format(timeFormat),
		UpdatedAt:   a.UpdatedAt.Format(timeFormat),
	}
	if a.DueDate != nil {
		resp.DueDate = a.DueDate.Format(dueDateFormat)
	}
	return resp
}

// activityRequest — тело запроса создания или изменения задачи.
type activityRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
}

func (req *activityRequest) toModel() (*model.Activity, error) {
	a := &model.Activity{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      req.Status,
		Priority:    req.Priority,
	}
	if req.DueDate != "" {
		due, err := time.Parse(dueDateFormat, req.DueDate)
		if err != nil {
			return nil, errors.New("некорректный формат due_date, ожидается YYYY-MM-DD")
		}
		a.DueDate = &due
	}
	return a, nil
}

// activityReader строит идентичность читателя задач из claims.
// Сервисная учётка со scope tasks:read читает записи всех пользователей.
func activityReader(claims *middleware.AuthClaims) service.Reader {
	return service.Reader{
		Subject: claims.Subject,
		Role:    claims.EffectiveRole,
		ReadAll: claims.SubjectType == middleware.SubjectTypeSA && claims.HasScope("tasks:read"),
	}
}

// ListActivities возвращает список задач текущего пользователя.
// Администратор видит задачи всех пользователей и может фильтровать по subject.
// GET /api/activities
func (h *APIHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}

	limit, offset := paginationFromQuery(r.URL.Query())
	filter := &model.ActivityFilter{
		Subject: r.URL.Query().Get("subject"),
		Status:  r.URL.Query().Get("status"),
		Limit:   limit,
		Offset:  offset,
	}

	activities, total, err := h.activities.List(r.Context(), filter, activityReader(claims))
	if err != nil {
		h.logger.Error("Ошибка получения списка задач",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	items := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityResponse(a))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateActivity создаёт задачу для текущего пользователя.
// POST /api/activities
func (h *APIHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	a, err := req.toModel()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	a.Subject = claims.Subject

	if err := h.activities.Create(r.Context(), a); err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка создания задачи",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusCreated, toActivityResponse(a))
}

// GetActivity возвращает одну задачу по идентификатору.
// GET /api/activities/{id}
func (h *APIHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}
	id := chi.URLParam(r, "id")

	a, err := h.activities.Get(r.Context(), id, activityReader(claims))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "задача не найдена")
		case errors.Is(err, service.ErrNotOwner):
			apierrors.Forbidden(w, "задача принадлежит другому пользователю")
		default:
			h.logger.Error("Ошибка получения задачи",
				slog.String("id", id),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

// UpdateActivity изменяет задачу. Владелец может менять только свои задачи.
// PUT /api/activities/{id}
func (h *APIHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}
	id := chi.URLParam(r, "id")

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	a, err := req.toModel()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	a.ID = id

	if err := h.activities.Update(r.Context(), a, claims.Subject, claims.EffectiveRole); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "задача не найдена")
		case errors.Is(err, service.ErrNotOwner):
			apierrors.Forbidden(w, "задача принадлежит другому пользователю")
		default:
			h.logger.Error("Ошибка изменения задачи",
				slog.String("id", id),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

// DeleteActivity удаляет задачу. Владелец может удалять только свои задачи.
// DELETE /api/activities/{id}
func (h *APIHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.activities.Delete(r.Context(), id, claims.Subject, claims.EffectiveRole); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "задача не найдена")
		case errors.Is(err, service.ErrNotOwner):
			apierrors.Forbidden(w, "задача принадлежит другому пользователю")
		default:
			h.logger.Error("Ошибка удаления задачи",
				slog.String("id", id),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
