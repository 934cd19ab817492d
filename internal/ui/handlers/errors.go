// errors.go — служебные страницы: отказ в доступе и превышение лимита.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/tasktrack/internal/ui/auth"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

// ErrorsHandler — обработчики служебных страниц.
type ErrorsHandler struct {
	sessionManager *auth.SessionManager
	renderer       *pages.Renderer
	logger         *slog.Logger
	secureCookie   bool
}

// NewErrorsHandler создаёт новый ErrorsHandler.
func NewErrorsHandler(
	sessionManager *auth.SessionManager,
	renderer *pages.Renderer,
	secureCookie bool,
	logger *slog.Logger,
) *ErrorsHandler {
	return &ErrorsHandler{
		sessionManager: sessionManager,
		renderer:       renderer,
		logger:         logger.With(slog.String("component", "ui.errors")),
		secureCookie:   secureCookie,
	}
}

// HandleAccessDenied — GET /access-denied
// Доступна и без сессии: на неё попадают пользователи без роли.
func (h *ErrorsHandler) HandleAccessDenied(w http.ResponseWriter, r *http.Request) {
	data := pages.AccessDeniedData{
		Reason: r.URL.Query().Get("reason"),
	}
	// Если сессия есть — показываем, под кем выполнен вход
	if session, err := h.sessionManager.GetSessionFromRequest(r); err == nil && session != nil {
		data.BaseData = pages.BaseData{
			Username: session.Username,
			Role:     session.Role,
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.DeniedCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   10 * 60,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	if err := h.renderer.Render(w, "access_denied", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы отказа в доступе",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// HandleRateLimit — GET /rate-limit
func (h *ErrorsHandler) HandleRateLimit(w http.ResponseWriter, r *http.Request) {
	data := pages.RateLimitData{}
	if session := uimiddleware.SessionFromContext(r.Context()); session != nil {
		data.BaseData = pages.BaseData{
			Username: session.Username,
			Role:     session.Role,
		}
	}

	if err := h.renderer.Render(w, "rate_limit", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы лимита запросов",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// HandleClearAccessDeniedSession — POST /clear-access-denied-session
// Сбрасывает флаг отказа и текущую сессию, после чего пользователь
// может войти под другой учётной записью.
func (h *ErrorsHandler) HandleClearAccessDeniedSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.DeniedCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.sessionManager.ClearSessionCookie(w)

	h.logger.Info("Сброшена сессия после отказа в доступе")

	http.Redirect(w, r, "/login", http.StatusFound)
}
