// auth.go — аутентификация REST API по JWT Keycloak.
//
// Middleware валидирует подпись токена по JWKS, разбирает claims,
// различает пользователей и Service Account-ы, сопоставляет группы
// IdP с ролями TaskTrack и применяет локальные дополнения ролей из БД.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/tasktrack/internal/api/errors"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
)

type contextKey string

// ContextKeyClaims — ключ, под которым AuthClaims лежат в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// SubjectType различает, кто пришёл с токеном.
type SubjectType string

const (
	// SubjectTypeUser — человек, прошедший Authorization Code flow.
	SubjectTypeUser SubjectType = "user"
	// SubjectTypeSA — Service Account, пришедший по Client Credentials.
	SubjectTypeSA SubjectType = "service_account"
)

// AuthClaims — обработанные claims токена, доступные обработчикам.
type AuthClaims struct {
	// Subject — sub: ID пользователя Keycloak либо UUID клиента SA.
	Subject           string
	SubjectType       SubjectType
	PreferredUsername string
	Email             string

	// Поля пользователя.

	// Roles — realm_access.roles как есть.
	Roles  []string
	Groups []string
	// IdpRole — роль, выведенная из групп IdP.
	IdpRole string
	// RoleOverride — локальное дополнение из БД, nil если не задано.
	RoleOverride *string
	// EffectiveRole — max(IdpRole, RoleOverride).
	EffectiveRole string

	// Поля Service Account.

	Scopes   []string
	ClientID string
}

// HasRole — совпадает ли действующая роль с указанной.
func (c *AuthClaims) HasRole(role string) bool {
	return c.EffectiveRole == role
}

// HasAnyRole — совпадает ли действующая роль хотя бы с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.EffectiveRole == r {
			return true
		}
	}
	return false
}

// HasScope — есть ли у SA указанный scope.
func (c *AuthClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasAnyScope — есть ли хотя бы один из указанных scope.
func (c *AuthClaims) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if c.HasScope(s) {
			return true
		}
	}
	return false
}

// RoleOverrideProvider отдаёт локальное дополнение роли пользователя.
// Реализуется репозиторием профилей; nil, nil — дополнения нет.
type RoleOverrideProvider interface {
	GetRoleOverride(ctx context.Context, subject string) (*string, error)
}

// tokenClaims — сырые claims токена Keycloak.
type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	RealmAccess       *struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitempty"`
	Groups []string `json:"groups,omitempty"`
	// Scope — scope-ы через пробел, присутствуют у SA.
	Scope string `json:"scope,omitempty"`
	// ClientID заполнен у Service Account-ов.
	ClientID string `json:"client_id,omitempty"`
	Azp      string `json:"azp,omitempty"`
}

// JWTAuth — middleware аутентификации API.
type JWTAuth struct {
	jwks         keyfunc.Keyfunc
	logger       *slog.Logger
	roleProvider RoleOverrideProvider
	adminGroups  []string
	userGroups   []string
	issuer       string
	jwtLeeway    time.Duration
}

// NewJWTAuth настраивает middleware с фоновым обновлением JWKS.
//
// caCertPath опционален и добавляет CA к системному пулу доверия.
// roleProvider может быть nil — тогда дополнения ролей не применяются.
// Таймауты и leeway приходят из TT_JWKS_CLIENT_TIMEOUT,
// TT_JWKS_REFRESH_INTERVAL и TT_JWT_LEEWAY.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	roleProvider RoleOverrideProvider,
	adminGroups, userGroups []string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := http.DefaultClient
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath))
	}

	// NoErrorReturnFirstHTTPReq позволяет стартовать раньше Keycloak:
	// ключи подтянутся при первом успешном обновлении.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:         kf,
		logger:       logger.With(slog.String("component", "jwt_auth")),
		roleProvider: roleProvider,
		adminGroups:  adminGroups,
		userGroups:   userGroups,
		issuer:       issuer,
		jwtLeeway:    jwtLeeway,
	}, nil
}

// NewJWTAuthWithKeyfunc — конструктор для тестов с подставной keyfunc.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	roleProvider RoleOverrideProvider,
	adminGroups, userGroups []string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:         kf,
		logger:       logger.With(slog.String("component", "jwt_auth")),
		roleProvider: roleProvider,
		adminGroups:  adminGroups,
		userGroups:   userGroups,
		issuer:       issuer,
	}
}

// Close освобождает ресурсы middleware.
func (j *JWTAuth) Close() {
	// keyfunc v3 останавливает фоновое обновление сам
}

// Middleware валидирует Bearer token и кладёт AuthClaims в контекст.
// Допускается только RS256; exp обязателен, iss проверяется если задан.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, errMsg := bearerToken(r)
			if errMsg != "" {
				apierrors.Unauthorized(w, errMsg)
				return
			}

			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				opts = append(opts, jwt.WithIssuer(j.issuer))
			}

			raw := &tokenClaims{}
			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), opts...)
			if err != nil || !token.Valid {
				if err != nil {
					j.logger.Debug("JWT валидация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr))
				}
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.resolveClaims(r.Context(), raw)
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken достаёт токен из заголовка Authorization.
// Вторым значением возвращается текст ошибки для клиента.
func bearerToken(r *http.Request) (token, errMsg string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Отсутствует заголовок Authorization"
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "Неверный формат Authorization: ожидается Bearer <token>"
	}
	if rest == "" {
		return "", "Пустой Bearer token"
	}
	return rest, ""
}

// resolveClaims превращает сырые claims в AuthClaims.
// SA распознаётся по паре client_id + scope; всё остальное — пользователь.
func (j *JWTAuth) resolveClaims(ctx context.Context, raw *tokenClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
	}

	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.ClientID = raw.ClientID
		claims.Scopes = strings.Fields(raw.Scope)
		return claims
	}

	claims.SubjectType = SubjectTypeUser
	claims.Groups = raw.Groups
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}

	claims.IdpRole = j.idpRole(claims.Groups, claims.Roles)
	claims.RoleOverride = j.lookupOverride(ctx, claims.Subject)
	claims.EffectiveRole = rbac.EffectiveRole(claims.IdpRole, claims.RoleOverride)
	return claims
}

// idpRole выводит роль из групп; при их отсутствии — из realm_access.roles,
// среди которых могут попадаться и служебные роли Keycloak.
func (j *JWTAuth) idpRole(groups, realmRoles []string) string {
	if role := rbac.MapGroupsToRole(groups, j.adminGroups, j.userGroups); role != "" {
		return role
	}

	var known []string
	for _, r := range realmRoles {
		if rbac.IsValidRole(r) {
			known = append(known, r)
		}
	}
	return rbac.HighestRole(known)
}

// lookupOverride читает дополнение роли из БД. Ошибка БД не валит
// запрос: пользователь остаётся с ролью из IdP.
func (j *JWTAuth) lookupOverride(ctx context.Context, subject string) *string {
	if j.roleProvider == nil {
		return nil
	}
	override, err := j.roleProvider.GetRoleOverride(ctx, subject)
	if err != nil {
		j.logger.Warn("Ошибка получения role override",
			slog.String("user_id", subject),
			slog.String("error", err.Error()))
		return nil
	}
	return override
}

// httpClientWithCA строит HTTP-клиент, доверяющий дополнительному CA
// поверх системного пула.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pool.AppendCertsFromPEM(pem)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}

// --- Авторизация по ролям и scope ---

// RequireRole пропускает только пользователей с одной из указанных ролей.
// SA отклоняются независимо от scope. Ставится после JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if claims.SubjectType != SubjectTypeUser {
				apierrors.Forbidden(w, "Доступ разрешён только для пользователей")
				return
			}
			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, roleDeniedMessage(roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope пропускает только Service Account-ы с одним из scope.
// Пользователи отклоняются независимо от роли.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if claims.SubjectType != SubjectTypeSA {
				apierrors.Forbidden(w, "Доступ разрешён только для Service Accounts")
				return
			}
			if !claims.HasAnyScope(scopes...) {
				apierrors.Forbidden(w, scopeDeniedMessage(scopes))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleOrScope пропускает пользователей с подходящей ролью и SA
// с подходящим scope — для endpoint-ов, открытых обоим типам субъектов.
func RequireRoleOrScope(roles, scopes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			switch claims.SubjectType {
			case SubjectTypeUser:
				if claims.HasAnyRole(roles...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, roleDeniedMessage(roles))
			case SubjectTypeSA:
				if claims.HasAnyScope(scopes...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, scopeDeniedMessage(scopes))
			default:
				apierrors.Forbidden(w, "Неизвестный тип субъекта")
			}
		})
	}
}

func roleDeniedMessage(roles []string) string {
	return fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или "))
}

func scopeDeniedMessage(scopes []string) string {
	return fmt.Sprintf("Недостаточно прав: требуется scope %s", strings.Join(scopes, " или "))
}

// --- Извлечение claims из контекста ---

// ClaimsFromContext возвращает AuthClaims запроса либо nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext возвращает sub запроса либо пустую строку.
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// EffectiveRoleFromContext возвращает действующую роль либо пустую строку.
func EffectiveRoleFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.EffectiveRole
	}
	return ""
}

// --- Readiness-проверка Keycloak ---

// KeycloakReadinessChecker опрашивает JWKS endpoint для readiness probe.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewKeycloakReadinessChecker создаёт проверку доступности Keycloak.
func NewKeycloakReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*KeycloakReadinessChecker, error) {
	client := &http.Client{Timeout: readinessTimeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, readinessTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &KeycloakReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

// CheckReady — fail при сетевой ошибке или не-200, degraded при
// пустом или нечитаемом наборе ключей.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var parsed struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}
	if len(parsed.Keys) == 0 {
		return "degraded", "Keycloak JWKS: нет ключей"
	}
	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(parsed.Keys))
}
