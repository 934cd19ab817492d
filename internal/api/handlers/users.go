// users.go — административные операции над профилями пользователей.
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

// userResponse — представление профиля в административном API.
type userResponse struct {
	ID           string  `json:"id"`
	Subject      string  `json:"subject"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Department   string  `json:"department"`
	Phone        string  `json:"phone"`
	RoleOverride *string `json:"role_override"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toUserResponse(p *model.UserProfile) userResponse {
	return userResponse{
		ID:           p.ID,
		Subject:      p.Subject,
		Username:     p.Username,
		Email:        p.Email,
		FullName:     p.FullName,
		Department:   p.Department,
		Phone:        p.Phone,
		RoleOverride: p.RoleOverride,
		CreatedAt:    p.CreatedAt.Format(timeFormat),
		UpdatedAt:    p.UpdatedAt.Format(timeFormat),
	}
}

// ListUsers возвращает профили пользователей с пагинацией.
// GET /api/admin/users
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationFromQuery(r.URL.Query())

	profiles, total, err := h.profiles.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка профилей",
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	items := make([]userResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toUserResponse(p))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// setRoleRequest — тело запроса установки role override.
// role == null снимает дополнение.
type setRoleRequest struct {
	Role *string `json:"role"`
}

// SetUserRole устанавливает локальное дополнение роли пользователя.
// PUT /api/admin/users/{subject}/role
func (h *APIHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}

	subject := chi.URLParam(r, "subject")

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	err := h.profiles.SetRoleOverride(r.Context(), subject, req.Role, claims.PreferredUsername)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "профиль не найден")
		default:
			h.logger.Error("Ошибка установки role override",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
