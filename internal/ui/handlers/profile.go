// profile.go — страница редактирования собственного профиля.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/service"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

// ProfileHandler — обработчики страницы профиля.
type ProfileHandler struct {
	profiles *service.ProfileService
	renderer *pages.Renderer
	logger   *slog.Logger
}

// NewProfileHandler создаёт новый ProfileHandler.
func NewProfileHandler(
	profiles *service.ProfileService,
	renderer *pages.Renderer,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "ui.profile")),
	}
}

// HandleProfileEdit — GET /profile/edit
func (h *ProfileHandler) HandleProfileEdit(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	profile, err := h.profiles.Get(r.Context(), session.Subject)
	if err != nil {
		h.logger.Error("Ошибка получения профиля",
			slog.String("subject", session.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	data := pages.ProfileEditData{
		BaseData: baseData(session, "profile"),
		Profile:  profile,
		Saved:    r.URL.Query().Get("saved") == "1",
		Error:    r.URL.Query().Get("error"),
	}

	if err := h.renderer.Render(w, "profile_edit", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы профиля",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// HandleProfileUpdate — POST /profile/edit
// Сохраняет редактируемые владельцем поля профиля.
func (h *ProfileHandler) HandleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	update := &model.ProfileUpdate{
		Email:      r.FormValue("email"),
		FullName:   r.FormValue("full_name"),
		Department: r.FormValue("department"),
		Phone:      r.FormValue("phone"),
	}

	if _, err := h.profiles.Update(r.Context(), session.Subject, update); err != nil {
		if errors.Is(err, service.ErrValidation) {
			http.Redirect(w, r, "/profile/edit?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
			return
		}
		h.logger.Error("Ошибка сохранения профиля",
			slog.String("subject", session.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/profile/edit?saved=1", http.StatusSeeOther)
}
