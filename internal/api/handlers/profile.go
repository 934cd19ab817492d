// profile.go — обработчики профиля текущего пользователя.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/tasktrack/internal/api/errors"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/service"
)

// profileResponse — представление профиля в API.
type profileResponse struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toProfileResponse(p *model.UserProfile, role string) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Subject:    p.Subject,
		Username:   p.Username,
		Email:      p.Email,
		FullName:   p.FullName,
		Department: p.Department,
		Phone:      p.Phone,
		Role:       role,
		CreatedAt:  p.CreatedAt.Format(timeFormat),
		UpdatedAt:  p.UpdatedAt.Format(timeFormat),
	}
}

// GetProfile возвращает профиль текущего пользователя.
// GET /api/profile
func (h *APIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}

	profile, err := h.profiles.Get(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "профиль не найден")
			return
		}
		h.logger.Error("Ошибка получения профиля",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile, claims.EffectiveRole))
}

// updateProfileRequest — поля профиля, доступные для редактирования владельцем.
type updateProfileRequest struct {
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

// UpdateProfile обновляет поля профиля текущего пользователя.
// PUT /api/profile
func (h *APIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "отсутствуют данные аутентификации")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	update := &model.ProfileUpdate{
		Email:      req.Email,
		FullName:   req.FullName,
		Department: req.Department,
		Phone:      req.Phone,
	}

	profile, err := h.profiles.Update(r.Context(), claims.Subject, update)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "профиль не найден")
		default:
			h.logger.Error("Ошибка обновления профиля",
				slog.String("subject", claims.Subject),
				slog.String("error", err.Error()))
			apierrors.InternalError(w, "внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile, claims.EffectiveRole))
}
