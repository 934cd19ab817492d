// dropdowns.go — обработчики справочников выпадающих списков.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tasktrack/internal/api/errors"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/service"
)

// dropdownResponse — представление значения справочника в API.
type dropdownResponse struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Value     string `json:"value"`
	Label     string `json:"label"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toDropdownResponse(dv *model.DropdownValue) dropdownResponse {
	return dropdownResponse{
		ID:        dv.ID,
		Category:  dv.Category,
		Value:     dv.Value,
		Label:     dv.Label,
		SortOrder: dv.SortOrder,
		Active:    dv.Active,
		CreatedAt: dv.CreatedAt.Format(timeFormat),
		UpdatedAt: dv.UpdatedAt.Format(timeFormat),
	}
}

func toDropdownResponses(values []*model.DropdownValue) []dropdownResponse {
	resp := make([]dropdownResponse, 0, len(values))
	for _, dv := range values {
		resp = append(resp, toDropdownResponse(dv))
	}
	return resp
}

// ListDropdownCategories возвращает список категорий справочников.
// GET /api/dropdowns/categories
func (h *APIHandler) ListDropdownCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.dropdowns.Categories(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения категорий справочников",
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// GetDropdownValues возвращает активные значения одной категории.
// GET /api/dropdowns/{category}
func (h *APIHandler) GetDropdownValues(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	values, err := h.dropdowns.Values(r.Context(), category)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения значений справочника",
			slog.String("category", category),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"values":   toDropdownResponses(values),
	})
}

// dropdownRequest — тело запроса создания или изменения значения справочника.
type dropdownRequest struct {
	Category  string `json:"category"`
	Value     string `json:"value"`
	Label     string `json:"label"`
	SortOrder int    `json:"sort_order"`
	Active    *bool  `json:"active"`
}

// CreateDropdownValue создаёт значение справочника. Только для администраторов.
// POST /api/dropdowns/values
func (h *APIHandler) CreateDropdownValue(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	var req dropdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	dv := &model.DropdownValue{
		Category:  req.Category,
		Value:     req.Value,
		Label:     req.Label,
		SortOrder: req.SortOrder,
		Active:    true,
	}
	if req.Active != nil {
		dv.Active = *req.Active
	}

	if err := h.dropdowns.Create(r.Context(), dv, subject); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "значение уже существует в этой категории")
		default:
			h.logger.Error("Ошибка создания значения справочника",
				slog.String("category", req.Category),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toDropdownResponse(dv))
}

// dropdownUpdateRequest — тело запроса изменения значения справочника.
// Категория и машинное значение после создания не меняются;
// поля, отсутствующие в теле, сохраняют текущее значение.
type dropdownUpdateRequest struct {
	Label     *string `json:"label"`
	SortOrder *int    `json:"sort_order"`
	Active    *bool   `json:"active"`
}

// UpdateDropdownValue изменяет подпись, порядок сортировки или признак
// активности значения справочника. Только для администраторов.
// PUT /api/dropdowns/values/{id}
func (h *APIHandler) UpdateDropdownValue(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req dropdownUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	upd := &model.DropdownUpdate{
		Label:     req.Label,
		SortOrder: req.SortOrder,
		Active:    req.Active,
	}

	dv, err := h.dropdowns.Update(r.Context(), id, upd, subject)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "значение справочника не найдено")
		default:
			h.logger.Error("Ошибка изменения значения справочника",
				slog.String("id", id),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusOK, toDropdownResponse(dv))
}

// DeleteDropdownValue удаляет значение справочника. Только для администраторов.
// DELETE /api/dropdowns/values/{id}
func (h *APIHandler) DeleteDropdownValue(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.dropdowns.Delete(r.Context(), id, subject); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "значение справочника не найдено")
		default:
			h.logger.Error("Ошибка удаления значения справочника",
				slog.String("id", id),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
