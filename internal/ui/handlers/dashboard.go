// dashboard.go — главная страница со списком задач пользователя.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/auth"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

// baseData собирает общие данные layout из сессии.
func baseData(session *auth.SessionData, activeMenu string) pages.BaseData {
	return pages.BaseData{
		Username:   session.Username,
		Role:       session.Role,
		IsAdmin:    session.Role == rbac.RoleAdmin,
		ActiveMenu: activeMenu,
	}
}

// DashboardHandler — обработчики страницы задач.
type DashboardHandler struct {
	activities *service.ActivityService
	dropdowns  *service.DropdownService
	renderer   *pages.Renderer
	logger     *slog.Logger
}

// NewDashboardHandler создаёт новый DashboardHandler.
func NewDashboardHandler(
	activities *service.ActivityService,
	dropdowns *service.DropdownService,
	renderer *pages.Renderer,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		activities: activities,
		dropdowns:  dropdowns,
		renderer:   renderer,
		logger:     logger.With(slog.String("component", "ui.dashboard")),
	}
}

// HandleDashboard — GET /ui/
// Отображает задачи текущего пользователя и форму создания задачи.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	filter := &model.ActivityFilter{Limit: 100}
	activities, total, err := h.activities.List(r.Context(), filter,
		service.Reader{Subject: session.Subject, Role: session.Role})
	if err != nil {
		h.logger.Error("Ошибка получения списка задач",
			slog.String("subject", session.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	data := pages.DashboardData{
		BaseData:   baseData(session, "dashboard"),
		Activities: activities,
		Total:      total,
	}
	// Справочники для селектов формы; ошибки не фатальны для страницы
	data.Statuses, _ = h.dropdowns.Values(r.Context(), "status")
	data.Categories, _ = h.dropdowns.Values(r.Context(), "category")
	data.Priorities, _ = h.dropdowns.Values(r.Context(), "priority")

	if err := h.renderer.Render(w, "dashboard", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы задач",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// HandleCreateActivity — POST /ui/activities
// Создаёт задачу из HTML-формы и возвращает на страницу задач.
func (h *DashboardHandler) HandleCreateActivity(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	a := &model.Activity{
		Subject:     session.Subject,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Status:      r.FormValue("status"),
		Priority:    r.FormValue("priority"),
	}
	if due := r.FormValue("due_date"); due != "" {
		parsed, err := time.Parse("2006-01-02", due)
		if err != nil {
			http.Error(w, "Некорректный формат срока", http.StatusBadRequest)
			return
		}
		a.DueDate = &parsed
	}

	if err := h.activities.Create(r.Context(), a); err != nil {
		if errors.Is(err, service.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Ошибка создания задачи",
			slog.String("subject", session.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/ui/", http.StatusSeeOther)
}

// HandleDeleteActivity — POST /ui/activities/{id}/delete
func (h *DashboardHandler) HandleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.activities.Delete(r.Context(), id, session.Subject, session.Role); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, "Задача не найдена", http.StatusNotFound)
		case errors.Is(err, service.ErrNotOwner):
			http.Error(w, "Задача принадлежит другому пользователю", http.StatusForbidden)
		default:
			h.logger.Error("Ошибка удаления задачи",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, "/ui/", http.StatusSeeOther)
}
