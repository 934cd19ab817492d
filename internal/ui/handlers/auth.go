// Пакет handlers — HTTP-обработчики веб-интерфейса TaskTrack.
// auth.go — вход через Keycloak по Authorization Code + PKCE.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/auth"
)

const (
	// stateCookieName — cookie с PKCE verifier, state и путём возврата
	// на время прохождения auth flow.
	stateCookieName = "tasktrack_auth_state"
	// stateCookieMaxAge — время жизни state cookie в секундах.
	stateCookieMaxAge = 5 * 60
)

// AuthHandler обслуживает /login, /callback и /logout веб-интерфейса.
type AuthHandler struct {
	oidcClient     *auth.OIDCClient
	sessionManager *auth.SessionManager
	profiles       *service.ProfileService
	logger         *slog.Logger

	// Группы Keycloak, дающие роли admin и user.
	adminGroups []string
	userGroups  []string
	// Allowlist префиксов, на которые разрешён возврат после логина.
	redirectPrefixes []string
	secureCookie     bool
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	oidcClient *auth.OIDCClient,
	sessionManager *auth.SessionManager,
	profiles *service.ProfileService,
	adminGroups, userGroups, redirectPrefixes []string,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		oidcClient:       oidcClient,
		sessionManager:   sessionManager,
		profiles:         profiles,
		logger:           logger.With(slog.String("component", "ui_auth")),
		adminGroups:      adminGroups,
		userGroups:       userGroups,
		redirectPrefixes: redirectPrefixes,
		secureCookie:     secureCookie,
	}
}

// stateData хранится в state cookie между /login и /callback.
type stateData struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
	RedirectTo   string `json:"redirect_to,omitempty"`
}

// isAllowedRedirect разрешает возврат только на локальные пути из allowlist.
// Абсолютные и protocol-relative (//host) адреса отклоняются: open redirect.
func (h *AuthHandler) isAllowedRedirect(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	for _, prefix := range h.redirectPrefixes {
		if target == prefix ||
			strings.HasPrefix(target, prefix+"/") ||
			strings.HasPrefix(target, prefix+"?") {
			return true
		}
	}
	return false
}

// writeStateCookie сериализует stateData в short-lived cookie.
func (h *AuthHandler) writeStateCookie(w http.ResponseWriter, sd *stateData) {
	raw, _ := json.Marshal(sd)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    base64.URLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// dropStateCookie удаляет state cookie: она одноразовая.
func (h *AuthHandler) dropStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// readStateCookie достаёт и декодирует stateData из запроса.
func readStateCookie(r *http.Request) (*stateData, error) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return nil, err
	}
	raw, err := base64.URLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, fmt.Errorf("декодирование state cookie: %w", err)
	}
	var sd stateData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("парсинг state cookie: %w", err)
	}
	return &sd, nil
}

// HandleLogin — GET /login
// Готовит PKCE и state, запоминает путь возврата (если он из allowlist)
// и перенаправляет браузер на authorize endpoint Keycloak.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	pkce, err := auth.GeneratePKCE()
	if err != nil {
		h.logger.Error("Ошибка генерации PKCE", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	redirectTo := r.URL.Query().Get("redirect")
	if !h.isAllowedRedirect(redirectTo) {
		if redirectTo != "" {
			h.logger.Warn("Отклонён недопустимый путь возврата",
				slog.String("redirect", redirectTo),
			)
		}
		redirectTo = ""
	}

	h.writeStateCookie(w, &stateData{
		State:        state,
		CodeVerifier: pkce.CodeVerifier,
		RedirectTo:   redirectTo,
	})

	authorizeURL := h.oidcClient.AuthorizeURL(h.callbackURI(r), state, pkce.CodeChallenge)
	h.logger.Debug("Redirect на Keycloak login",
		slog.String("authorize_url", authorizeURL),
	)
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleCallback — GET /callback
// Сверяет state, меняет authorization code на токены, создаёт профиль
// при первом входе и устанавливает session cookie.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		errDesc := q.Get("error_description")
		h.logger.Warn("Keycloak вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", errDesc),
		)
		if errCode == "access_denied" {
			http.Redirect(w, r, "/access-denied", http.StatusFound)
			return
		}
		http.Error(w, fmt.Sprintf("Ошибка авторизации: %s — %s", errCode, errDesc), http.StatusBadRequest)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Отсутствует code или state", http.StatusBadRequest)
		return
	}

	sd, err := readStateCookie(r)
	if err != nil {
		h.logger.Warn("Некорректный или отсутствующий state cookie",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Сессия авторизации истекла, попробуйте ещё раз", http.StatusBadRequest)
		return
	}
	if sd.State != state {
		h.logger.Warn("State mismatch (возможная CSRF атака)",
			slog.String("expected", sd.State),
			slog.String("received", state),
		)
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}
	h.dropStateCookie(w)

	tokenResp, err := h.oidcClient.ExchangeCode(code, h.callbackURI(r), sd.CodeVerifier)
	if err != nil {
		h.logger.Error("Ошибка обмена code на tokens",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка аутентификации", http.StatusInternalServerError)
		return
	}

	sessionData, err := h.sessionFromTokens(tokenResp)
	if err != nil {
		h.logger.Error("Ошибка извлечения данных из токена",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка обработки токена", http.StatusInternalServerError)
		return
	}
	// Профиль создаётся при первом входе; override роли из БД имеет
	// приоритет над ролью из IdP, если он выше.
	profile, err := h.profiles.EnsureProfile(r.Context(),
		sessionData.Subject, sessionData.Username, sessionData.Email)
	if err != nil {
		h.logger.Error("Ошибка создания профиля пользователя",
			slog.String("subject", sessionData.Subject),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}
	sessionData.Role = rbac.EffectiveRole(sessionData.Role, profile.RoleOverride)

	// Роль проверяется после учёта override: пользователь, потерявший
	// группы в IdP, но имеющий локальное дополнение роли, входит.
	if sessionData.Role == "" {
		h.logger.Warn("Пользователь без роли",
			slog.String("username", sessionData.Username),
		)
		http.Redirect(w, r, "/access-denied", http.StatusFound)
		return
	}

	if err := h.sessionManager.SetSessionCookie(w, sessionData); err != nil {
		h.logger.Error("Ошибка установки session cookie",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Пользователь аутентифицирован",
		slog.String("username", sessionData.Username),
		slog.String("role", sessionData.Role),
	)

	target := sd.RedirectTo
	if !h.isAllowedRedirect(target) {
		target = "/ui/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLogout — POST /logout
// Сбрасывает сессию и перенаправляет на logout endpoint Keycloak.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.ClearSessionCookie(w)

	postLogoutRedirectURI := requestBaseURL(r) + "/login"
	logoutURL := h.oidcClient.LogoutURL("", postLogoutRedirectURI)

	h.logger.Info("Пользователь выполняет logout")
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

// callbackURI — redirect URI для обмена кода, построенный из запроса.
func (h *AuthHandler) callbackURI(r *http.Request) string {
	return requestBaseURL(r) + "/callback"
}

// requestBaseURL восстанавливает scheme://host из запроса с учётом
// X-Forwarded-* заголовков от reverse proxy / API Gateway.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}
	return scheme + "://" + host
}

// accessClaims — поля access token, нужные для построения сессии.
type accessClaims struct {
	Sub               string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Groups            []string `json:"groups"`
	RealmAccess       *struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// sessionFromTokens строит SessionData из ответа token endpoint.
// Payload access token читается без проверки подписи: токен получен
// напрямую от Keycloak по back-channel.
func (h *AuthHandler) sessionFromTokens(tokenResp *auth.TokenResponse) (*auth.SessionData, error) {
	parts := strings.SplitN(tokenResp.AccessToken, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("некорректный формат JWT: ожидалось 3 сегмента")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования JWT payload: %w", err)
	}
	var claims accessClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("ошибка парсинга JWT claims: %w", err)
	}

	role := rbac.MapGroupsToRole(claims.Groups, h.adminGroups, h.userGroups)
	if role == "" && claims.RealmAccess != nil {
		// Fallback: группы не дали роль, смотрим realm_access.roles.
		for _, rr := range claims.RealmAccess.Roles {
			if rbac.IsValidRole(rr) {
				role = rbac.HighestRole([]string{role, rr})
			}
		}
	}

	return &auth.SessionData{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Unix(),
		Subject:      claims.Sub,
		Username:     claims.PreferredUsername,
		Email:        claims.Email,
		Role:         role,
		Groups:       claims.Groups,
	}, nil
}
