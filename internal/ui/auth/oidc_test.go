package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
)

// TestGeneratePKCE — verifier нужной длины и challenge = S256(verifier).
func TestGeneratePKCE(t *testing.T) {
	p, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}

	// 32 байта в base64url без padding дают ровно 43 символа
	if got := len(p.CodeVerifier); got != 43 {
		t.Errorf("длина CodeVerifier = %d, хотели 43", got)
	}

	sum := sha256.Sum256([]byte(p.CodeVerifier))
	if want := base64.RawURLEncoding.EncodeToString(sum[:]); p.CodeChallenge != want {
		t.Error("CodeChallenge не равен base64url(SHA-256(CodeVerifier))")
	}

	if p2, _ := GeneratePKCE(); p2.CodeVerifier == p.CodeVerifier {
		t.Error("повторный GeneratePKCE вернул тот же code_verifier")
	}
}

// TestGenerateState — непустой и уникальный от вызова к вызову.
func TestGenerateState(t *testing.T) {
	s1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	if s1 == "" {
		t.Fatal("GenerateState вернул пустую строку")
	}
	if s2, _ := GenerateState(); s1 == s2 {
		t.Error("повторный GenerateState вернул то же значение")
	}
}

func newTestOIDCClient() *OIDCClient {
	return NewOIDCClient(OIDCConfig{
		KeycloakURL: "https://keycloak.example.com",
		Realm:       "tasktrack",
		ClientID:    "tasktrack-ui",
	})
}

// TestAuthorizeURL — все обязательные параметры authorize запроса на месте.
func TestAuthorizeURL(t *testing.T) {
	c := newTestOIDCClient()

	raw := c.AuthorizeURL("http://localhost:8000/callback", "state-1", "challenge-1")

	wantPrefix := "https://keycloak.example.com/realms/tasktrack/protocol/openid-connect/auth"
	if !strings.HasPrefix(raw, wantPrefix) {
		t.Fatalf("authorize URL = %q, хотели префикс %q", raw, wantPrefix)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("разбор authorize URL: %v", err)
	}
	q := parsed.Query()

	for param, want := range map[string]string{
		"client_id":             "tasktrack-ui",
		"response_type":         "code",
		"redirect_uri":          "http://localhost:8000/callback",
		"state":                 "state-1",
		"code_challenge":        "challenge-1",
		"code_challenge_method": "S256",
	} {
		if got := q.Get(param); got != want {
			t.Errorf("параметр %s = %q, хотели %q", param, got, want)
		}
	}

	scope := q.Get("scope")
	for _, s := range []string{"openid", "profile", "email", "groups"} {
		if !strings.Contains(scope, s) {
			t.Errorf("scope %q не содержит %q", scope, s)
		}
	}
}

// TestAuthorizeURLBrowserBase — браузерный redirect использует внешний URL Keycloak.
func TestAuthorizeURLBrowserBase(t *testing.T) {
	c := NewOIDCClient(OIDCConfig{
		KeycloakURL:        "http://keycloak.cluster.local:8080",
		BrowserKeycloakURL: "https://sso.example.com",
		Realm:              "tasktrack",
		ClientID:           "tasktrack-ui",
	})

	raw := c.AuthorizeURL("http://localhost:8000/callback", "s", "c")
	if !strings.HasPrefix(raw, "https://sso.example.com/realms/tasktrack/") {
		t.Errorf("authorize URL = %q, хотели внешний базовый URL", raw)
	}
}

// TestLogoutURL — параметры logout запроса, включая опциональный id_token_hint.
func TestLogoutURL(t *testing.T) {
	c := newTestOIDCClient()

	parsed, err := url.Parse(c.LogoutURL("hint-token", "http://localhost:8000/login"))
	if err != nil {
		t.Fatalf("разбор logout URL: %v", err)
	}
	q := parsed.Query()

	if got := q.Get("client_id"); got != "tasktrack-ui" {
		t.Errorf("client_id = %q, хотели tasktrack-ui", got)
	}
	if got := q.Get("id_token_hint"); got != "hint-token" {
		t.Errorf("id_token_hint = %q, хотели hint-token", got)
	}
	if got := q.Get("post_logout_redirect_uri"); got != "http://localhost:8000/login" {
		t.Errorf("post_logout_redirect_uri = %q", got)
	}

	// Без hint параметр опускается целиком
	parsed, _ = url.Parse(c.LogoutURL("", "http://localhost:8000/login"))
	if parsed.Query().Has("id_token_hint") {
		t.Error("id_token_hint присутствует при пустом hint")
	}
}
