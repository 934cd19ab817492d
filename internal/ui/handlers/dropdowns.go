// dropdowns.go — страница управления справочниками.
// Просмотр доступен всем аутентифицированным пользователям,
// изменения — только администраторам.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/auth"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

// DropdownsHandler — обработчики страницы справочников.
type DropdownsHandler struct {
	dropdowns *service.DropdownService
	renderer  *pages.Renderer
	logger    *slog.Logger
}

// NewDropdownsHandler создаёт новый DropdownsHandler.
func NewDropdownsHandler(
	dropdowns *service.DropdownService,
	renderer *pages.Renderer,
	logger *slog.Logger,
) *DropdownsHandler {
	return &DropdownsHandler{
		dropdowns: dropdowns,
		renderer:  renderer,
		logger:    logger.With(slog.String("component", "ui.dropdowns")),
	}
}

// HandleDropdowns — GET /ui/dropdowns
func (h *DropdownsHandler) HandleDropdowns(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	values, err := h.dropdowns.All(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения справочников",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	data := pages.DropdownsData{
		BaseData: baseData(session, "dropdowns"),
		Values:   values,
		Error:    r.URL.Query().Get("error"),
	}

	if err := h.renderer.Render(w, "dropdowns", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы справочников",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// redirectWithError возвращает на страницу справочников с сообщением об ошибке.
func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/ui/dropdowns?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// requireAdmin проверяет роль admin в UI-сессии.
// Не-администраторы отправляются на страницу отказа в доступе.
func requireAdmin(w http.ResponseWriter, r *http.Request) *auth.SessionData {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}
	if session.Role != rbac.RoleAdmin {
		http.Redirect(w, r, "/access-denied", http.StatusFound)
		return nil
	}
	return session
}

// HandleCreateDropdown — POST /ui/dropdowns (только admin)
func (h *DropdownsHandler) HandleCreateDropdown(w http.ResponseWriter, r *http.Request) {
	session := requireAdmin(w, r)
	if session == nil {
		return
	}

	sortOrder, _ := strconv.Atoi(r.FormValue("sort_order"))
	dv := &model.DropdownValue{
		Category:  r.FormValue("category"),
		Value:     r.FormValue("value"),
		Label:     r.FormValue("label"),
		SortOrder: sortOrder,
		Active:    true,
	}

	if err := h.dropdowns.Create(r.Context(), dv, session.Subject); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			redirectWithError(w, r, err.Error())
		case errors.Is(err, service.ErrConflict):
			redirectWithError(w, r, "Значение уже существует в этой категории")
		default:
			h.logger.Error("Ошибка создания значения справочника",
				slog.String("error", err.Error()),
			)
			http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, "/ui/dropdowns", http.StatusSeeOther)
}

// HandleToggleDropdown — POST /ui/dropdowns/{id}/toggle (только admin)
// Переключает признак активности значения.
func (h *DropdownsHandler) HandleToggleDropdown(w http.ResponseWriter, r *http.Request) {
	session := requireAdmin(w, r)
	if session == nil {
		return
	}

	id := chi.URLParam(r, "id")
	dv, err := h.dropdowns.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			redirectWithError(w, r, "Значение справочника не найдено")
			return
		}
		h.logger.Error("Ошибка получения значения справочника",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	active := !dv.Active
	upd := &model.DropdownUpdate{Active: &active}
	if _, err := h.dropdowns.Update(r.Context(), id, upd, session.Subject); err != nil {
		h.logger.Error("Ошибка изменения значения справочника",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		redirectWithError(w, r, "Не удалось изменить значение")
		return
	}

	http.Redirect(w, r, "/ui/dropdowns", http.StatusSeeOther)
}

// HandleDeleteDropdown — POST /ui/dropdowns/{id}/delete (только admin)
func (h *DropdownsHandler) HandleDeleteDropdown(w http.ResponseWriter, r *http.Request) {
	session := requireAdmin(w, r)
	if session == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.dropdowns.Delete(r.Context(), id, session.Subject); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			redirectWithError(w, r, "Значение справочника не найдено")
			return
		}
		h.logger.Error("Ошибка удаления значения справочника",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/ui/dropdowns", http.StatusSeeOther)
}
