// Пакет middleware — HTTP middleware веб-интерфейса TaskTrack.
// auth.go охраняет страницы, требующие входа: читает сессию из
// зашифрованного cookie и прозрачно обновляет истёкшие токены.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/tasktrack/internal/ui/auth"
)

type contextKey string

// ContextKeyUISession — ключ сессии UI в контексте запроса.
const ContextKeyUISession contextKey = "ui_session"

// UIAuth — middleware аутентификации страниц UI.
type UIAuth struct {
	sessionManager *auth.SessionManager
	oidcClient     *auth.OIDCClient
	logger         *slog.Logger
}

func NewUIAuth(
	sessionManager *auth.SessionManager,
	oidcClient *auth.OIDCClient,
	logger *slog.Logger,
) *UIAuth {
	return &UIAuth{
		sessionManager: sessionManager,
		oidcClient:     oidcClient,
		logger:         logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Middleware проверяет сессию запроса. Исходы:
// установлен флаг отказа в доступе — возврат на /access-denied;
// cookie нет или он повреждён — redirect на /login; токен истёк —
// попытка refresh с перезаписью cookie, при неудаче снова /login.
func (ua *UIAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Пользователь остаётся на странице отказа, пока не сбросит
			// флаг через /clear-access-denied-session.
			if c, err := r.Cookie(auth.DeniedCookieName); err == nil && c.Value != "" {
				http.Redirect(w, r, "/access-denied", http.StatusFound)
				return
			}

			session, err := ua.sessionManager.GetSessionFromRequest(r)
			if err != nil {
				ua.logger.Debug("Ошибка чтения UI-сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr))
				ua.rejectToLogin(w, r)
				return
			}
			if session == nil {
				loginRedirect(w, r)
				return
			}

			if session.IsExpired() {
				session = ua.tryRefresh(w, r, session)
				if session == nil {
					return
				}
			}

			ctx := context.WithValue(r.Context(), ContextKeyUISession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tryRefresh меняет истёкшую сессию на свежую через refresh token.
// При неудаче отправляет клиента на /login и возвращает nil.
func (ua *UIAuth) tryRefresh(w http.ResponseWriter, r *http.Request, session *auth.SessionData) *auth.SessionData {
	tokenResp, err := ua.oidcClient.RefreshTokens(session.RefreshToken)
	if err != nil {
		ua.logger.Info("Не удалось обновить сессию, redirect на login",
			slog.String("username", session.Username),
			slog.String("error", err.Error()))
		ua.rejectToLogin(w, r)
		return nil
	}

	// Идентичность пользователя переносится из старой сессии:
	// refresh-ответ содержит только токены.
	refreshed := &auth.SessionData{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Unix(),
		Subject:      session.Subject,
		Username:     session.Username,
		Email:        session.Email,
		Role:         session.Role,
		Groups:       session.Groups,
	}

	if err := ua.sessionManager.SetSessionCookie(w, refreshed); err != nil {
		ua.logger.Error("Ошибка записи обновлённого session cookie",
			slog.String("error", err.Error()))
		ua.rejectToLogin(w, r)
		return nil
	}

	ua.logger.Debug("Сессия обновлена через refresh token",
		slog.String("username", refreshed.Username))
	return refreshed
}

func (ua *UIAuth) rejectToLogin(w http.ResponseWriter, r *http.Request) {
	ua.sessionManager.ClearSessionCookie(w)
	loginRedirect(w, r)
}

// loginRedirect отправляет на страницу входа. Для GET-запросов исходный
// путь сохраняется в параметре redirect и восстанавливается после входа.
func loginRedirect(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.Path != "" {
		target += "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// SessionFromContext возвращает сессию запроса либо nil, если запрос
// не проходил через UIAuth.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, _ := ctx.Value(ContextKeyUISession).(*auth.SessionData)
	return session
}
