// oidc.go — взаимодействие веб-интерфейса TaskTrack с Keycloak:
// Authorization Code Flow с PKCE (RFC 7636), public client без секрета.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultOIDCTimeout применяется, когда готовый HTTP-клиент не передан
// и таймаут в конфигурации не задан.
const defaultOIDCTimeout = 30 * time.Second

// oidcScopes запрашиваются у Keycloak при авторизации; groups нужен
// для сопоставления групп пользователя с ролями TaskTrack.
const oidcScopes = "openid profile email groups"

// OIDCClient инкапсулирует endpoint-ы Keycloak для одного realm.
// Браузерные endpoint-ы (authorize, logout) и серверный (token) могут
// жить на разных базовых URL: браузер ходит через внешний gateway,
// backend — по внутреннему cluster DNS.
type OIDCClient struct {
	clientID     string
	authorizeURL string
	tokenURL     string
	logoutURL    string
	issuer       string
	httpClient   *http.Client
}

// OIDCConfig — параметры создания OIDC-клиента.
type OIDCConfig struct {
	// KeycloakURL — URL Keycloak для серверных запросов (token exchange).
	KeycloakURL string
	// BrowserKeycloakURL — URL Keycloak для браузерных redirect-ов.
	// Пустое значение означает «тот же, что KeycloakURL».
	BrowserKeycloakURL string
	// Realm — имя realm.
	Realm string
	// ClientID — идентификатор public client.
	ClientID string
	// HTTPClient — клиент для запросов к token endpoint; nil — создаётся
	// стандартный с таймаутом Timeout.
	HTTPClient *http.Client
	// Timeout — таймаут запросов при HTTPClient == nil (TT_OIDC_CLIENT_TIMEOUT).
	Timeout time.Duration
}

// NewOIDCClient собирает клиента из конфигурации realm-а.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	browserBase := cfg.BrowserKeycloakURL
	if browserBase == "" {
		browserBase = cfg.KeycloakURL
	}

	serverRealm := realmBase(cfg.KeycloakURL, cfg.Realm)
	browserRealm := realmBase(browserBase, cfg.Realm)

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultOIDCTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &OIDCClient{
		clientID:     cfg.ClientID,
		authorizeURL: browserRealm + "/protocol/openid-connect/auth",
		tokenURL:     serverRealm + "/protocol/openid-connect/token",
		logoutURL:    browserRealm + "/protocol/openid-connect/logout",
		issuer:       serverRealm,
		httpClient:   hc,
	}
}

func realmBase(keycloakURL, realm string) string {
	return strings.TrimSuffix(keycloakURL, "/") + "/realms/" + realm
}

// PKCEParams — пара verifier/challenge одного цикла авторизации.
// Verifier уходит в state cookie, challenge — в authorize URL.
type PKCEParams struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCE создаёт code_verifier и его S256 code_challenge.
// 32 случайных байта дают verifier из 43 символов base64url —
// минимально допустимая длина по RFC 7636.
func GeneratePKCE() (*PKCEParams, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("генерация code_verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))

	return &PKCEParams{
		CodeVerifier:  verifier,
		CodeChallenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// GenerateState возвращает случайный state для CSRF-защиты auth flow.
func GenerateState() (string, error) {
	raw := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("генерация state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AuthorizeURL строит URL перенаправления браузера на страницу входа Keycloak.
func (c *OIDCClient) AuthorizeURL(redirectURI, state, codeChallenge string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("scope", oidcScopes)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	return c.authorizeURL + "?" + q.Encode()
}

// LogoutURL строит URL перенаправления браузера на logout Keycloak.
// idTokenHint опционален: без него Keycloak покажет страницу подтверждения.
func (c *OIDCClient) LogoutURL(idTokenHint, postLogoutRedirectURI string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	return c.logoutURL + "?" + q.Encode()
}

// TokenResponse — успешный ответ token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
}

// TokenError — тело ошибки token endpoint.
type TokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode меняет authorization code на пару токенов.
// redirectURI обязан совпадать с использованным в AuthorizeURL,
// codeVerifier — из state cookie этого же цикла.
func (c *OIDCClient) ExchangeCode(code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", codeVerifier)
	return c.postToken(form)
}

// RefreshTokens обновляет пару токенов по refresh token.
func (c *OIDCClient) RefreshTokens(refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("refresh_token", refreshToken)
	return c.postToken(form)
}

func (c *OIDCClient) postToken(form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("формирование запроса к token endpoint: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа token endpoint: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te TokenError
		if json.Unmarshal(body, &te) == nil && te.Error != "" {
			return nil, fmt.Errorf("token endpoint: %s — %s", te.Error, te.Description)
		}
		return nil, fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("разбор ответа token endpoint: %w", err)
	}
	return &tr, nil
}
