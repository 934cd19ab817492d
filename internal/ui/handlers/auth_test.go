package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/repository"
	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/auth"
)

// mockProfileRepo — in-memory реализация репозитория профилей для тестов.
type mockProfileRepo struct {
	profiles map[string]*model.UserProfile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]*model.UserProfile)}
}

func (m *mockProfileRepo) GetBySubject(_ context.Context, subject string) (*model.UserProfile, error) {
	p, ok := m.profiles[subject]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *mockProfileRepo) Ensure(_ context.Context, subject, username, email string) (*model.UserProfile, error) {
	if p, ok := m.profiles[subject]; ok {
		return p, nil
	}
	p := &model.UserProfile{
		ID:       "00000000-0000-0000-0000-000000000001",
		Subject:  subject,
		Username: username,
		Email:    email,
	}
	m.profiles[subject] = p
	return p, nil
}

func (m *mockProfileRepo) UpdateProfile(_ context.Context, subject string, _ *model.ProfileUpdate) (*model.UserProfile, error) {
	return m.profiles[subject], nil
}

func (m *mockProfileRepo) SetRoleOverride(_ context.Context, subject string, role *string) error {
	if p, ok := m.profiles[subject]; ok {
		p.RoleOverride = role
	}
	return nil
}

func (m *mockProfileRepo) GetRoleOverride(_ context.Context, subject string) (*string, error) {
	if p, ok := m.profiles[subject]; ok {
		return p.RoleOverride, nil
	}
	return nil, nil
}

func (m *mockProfileRepo) List(_ context.Context, _, _ int) ([]*model.UserProfile, error) {
	return nil, nil
}

func (m *mockProfileRepo) Count(_ context.Context) (int, error) {
	return len(m.profiles), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAuthHandler собирает AuthHandler с мок-репозиторием профилей.
// tokenURL — адрес тестового token endpoint (httptest-сервер).
func newTestAuthHandler(t *testing.T, keycloakURL string) (*AuthHandler, *mockProfileRepo) {
	t.Helper()

	sm, err := auth.NewSessionManager("test-session-key", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}

	oidc := auth.NewOIDCClient(auth.OIDCConfig{
		KeycloakURL: keycloakURL,
		Realm:       "tasktrack",
		ClientID:    "tasktrack-ui",
	})

	repo := newMockProfileRepo()
	profiles := service.NewProfileService(repo, testLogger())

	h := NewAuthHandler(
		oidc, sm, profiles,
		[]string{"tasktrack-admins"},
		[]string{"tasktrack-users"},
		[]string{"/ui", "/profile"},
		false,
		testLogger(),
	)
	return h, repo
}

// TestIsAllowedRedirect проверяет allowlist путей возврата после логина.
func TestIsAllowedRedirect(t *testing.T) {
	h, _ := newTestAuthHandler(t, "https://keycloak.test")

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"точное совпадение префикса", "/ui", true},
		{"путь внутри префикса", "/ui/dropdowns", true},
		{"путь с query", "/ui?page=2", true},
		{"профиль", "/profile/edit", true},
		{"пустой путь", "", false},
		{"похожий, но другой префикс", "/uix/evil", false},
		{"абсолютный URL", "https://evil.example.com/ui", false},
		{"protocol-relative URL", "//evil.example.com/ui", false},
		{"корень", "/", false},
		{"посторонний путь", "/etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.isAllowedRedirect(tt.target); got != tt.want {
				t.Errorf("isAllowedRedirect(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

// stateFromCookies извлекает stateData из установленного login state cookie.
func stateFromCookies(t *testing.T, cookies []*http.Cookie) *stateData {
	t.Helper()
	for _, c := range cookies {
		if c.Name == stateCookieName {
			raw, err := base64.URLEncoding.DecodeString(c.Value)
			if err != nil {
				t.Fatalf("Ошибка декодирования state cookie: %v", err)
			}
			var sd stateData
			if err := json.Unmarshal(raw, &sd); err != nil {
				t.Fatalf("Ошибка парсинга state cookie: %v", err)
			}
			return &sd
		}
	}
	t.Fatal("State cookie не установлен")
	return nil
}

// TestHandleLoginCapturesAllowedRedirect проверяет, что допустимый путь
// возврата сохраняется в state cookie, а недопустимый — отбрасывается.
func TestHandleLoginCapturesAllowedRedirect(t *testing.T) {
	h, _ := newTestAuthHandler(t, "https://keycloak.test")

	// Допустимый путь сохраняется
	req := httptest.NewRequest(http.MethodGet, "/login?redirect=%2Fui%2Fdropdowns", nil)
	w := httptest.NewRecorder()
	h.HandleLogin(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("Статус: want 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "keycloak.test") {
		t.Errorf("Ожидался redirect на Keycloak, получено: %s", loc)
	}
	sd := stateFromCookies(t, w.Result().Cookies())
	if sd.RedirectTo != "/ui/dropdowns" {
		t.Errorf("RedirectTo: want /ui/dropdowns, got %q", sd.RedirectTo)
	}

	// Недопустимый путь отбрасывается
	req = httptest.NewRequest(http.MethodGet, "/login?redirect=https%3A%2F%2Fevil.example.com", nil)
	w = httptest.NewRecorder()
	h.HandleLogin(w, req)

	sd = stateFromCookies(t, w.Result().Cookies())
	if sd.RedirectTo != "" {
		t.Errorf("Недопустимый redirect должен отбрасываться, получено %q", sd.RedirectTo)
	}
}

// fakeAccessToken собирает неподписанный JWT с нужными claims.
// Подпись не проверяется на этапе callback.
func fakeAccessToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("Ошибка сериализации claims: %v", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	return header + "." + payload + ".signature"
}

// newTokenEndpoint поднимает тестовый Keycloak token endpoint.
func newTokenEndpoint(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/token") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"access_token":  accessToken,
			"refresh_token": "refresh-token",
			"token_type":    "Bearer",
			"expires_in":    300,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("Ошибка записи ответа token endpoint: %v", err)
		}
	}))
}

// doCallback выполняет HandleCallback с заранее подготовленным state cookie.
func doCallback(t *testing.T, h *AuthHandler, redirectTo string) *httptest.ResponseRecorder {
	t.Helper()

	sd := &stateData{
		State:        "state-123",
		CodeVerifier: "verifier-456",
		RedirectTo:   redirectTo,
	}
	sdJSON, _ := json.Marshal(sd)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=state-123", nil)
	req.AddCookie(&http.Cookie{
		Name:  stateCookieName,
		Value: base64.URLEncoding.EncodeToString(sdJSON),
	})

	w := httptest.NewRecorder()
	h.HandleCallback(w, req)
	return w
}

// TestHandleCallbackHonorsSavedRedirect проверяет, что после логина
// пользователь возвращается на сохранённый allowlist-путь.
func TestHandleCallbackHonorsSavedRedirect(t *testing.T) {
	token := fakeAccessToken(t, map[string]any{
		"sub":                "user-sub-1",
		"preferred_username": "ivanov",
		"email":              "ivanov@example.com",
		"groups":             []string{"tasktrack-users"},
	})
	ts := newTokenEndpoint(t, token)
	defer ts.Close()

	h, repo := newTestAuthHandler(t, ts.URL)

	w := doCallback(t, h, "/ui/dropdowns")

	if w.Code != http.StatusFound {
		t.Fatalf("Статус: want 302, got %d (body: %s)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/ui/dropdowns" {
		t.Errorf("Location: want /ui/dropdowns, got %q", loc)
	}

	// Профиль создан при первом входе
	if _, ok := repo.profiles["user-sub-1"]; !ok {
		t.Error("Профиль не создан при первом входе")
	}

	// Session cookie установлен
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("Session cookie не установлен")
	}
}

// TestHandleCallbackFallbackRedirect проверяет, что подменённый (не из
// allowlist) путь в state cookie не используется для возврата.
func TestHandleCallbackFallbackRedirect(t *testing.T) {
	token := fakeAccessToken(t, map[string]any{
		"sub":                "user-sub-2",
		"preferred_username": "petrov",
		"email":              "petrov@example.com",
		"groups":             []string{"tasktrack-users"},
	})
	ts := newTokenEndpoint(t, token)
	defer ts.Close()

	h, _ := newTestAuthHandler(t, ts.URL)

	w := doCallback(t, h, "https://evil.example.com/phish")

	if w.Code != http.StatusFound {
		t.Fatalf("Статус: want 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/ui/" {
		t.Errorf("Location: want /ui/, got %q", loc)
	}
}

// TestHandleCallbackNoRole проверяет, что пользователь без роли
// отправляется на страницу отказа в доступе.
func TestHandleCallbackNoRole(t *testing.T) {
	token := fakeAccessToken(t, map[string]any{
		"sub":                "user-sub-3",
		"preferred_username": "sidorov",
		"email":              "sidorov@example.com",
		"groups":             []string{"unrelated-group"},
	})
	ts := newTokenEndpoint(t, token)
	defer ts.Close()

	h, _ := newTestAuthHandler(t, ts.URL)

	w := doCallback(t, h, "")

	if w.Code != http.StatusFound {
		t.Fatalf("Статус: want 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/access-denied" {
		t.Errorf("Location: want /access-denied, got %q", loc)
	}
}

// TestHandleCallbackRoleOverrideOnly проверяет вход пользователя, у которого
// нет групп в IdP, но есть локальное дополнение роли в профиле.
func TestHandleCallbackRoleOverrideOnly(t *testing.T) {
	token := fakeAccessToken(t, map[string]any{
		"sub":                "user-sub-4",
		"preferred_username": "smirnov",
		"email":              "smirnov@example.com",
		"groups":             []string{"unrelated-group"},
	})
	ts := newTokenEndpoint(t, token)
	defer ts.Close()

	h, repo := newTestAuthHandler(t, ts.URL)

	override := "admin"
	repo.profiles["user-sub-4"] = &model.UserProfile{
		ID:           "00000000-0000-0000-0000-000000000004",
		Subject:      "user-sub-4",
		Username:     "smirnov",
		Email:        "smirnov@example.com",
		RoleOverride: &override,
	}

	w := doCallback(t, h, "")

	if w.Code != http.StatusFound {
		t.Fatalf("Статус: want 302, got %d (body: %s)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/ui/" {
		t.Errorf("Location: want /ui/, got %q", loc)
	}

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("Session cookie не установлен")
	}
}

// TestHandleCallbackStateMismatch проверяет CSRF-защиту через state.
func TestHandleCallbackStateMismatch(t *testing.T) {
	h, _ := newTestAuthHandler(t, "https://keycloak.test")

	sd := &stateData{State: "expected-state", CodeVerifier: "verifier"}
	sdJSON, _ := json.Marshal(sd)

	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=other-state", nil)
	req.AddCookie(&http.Cookie{
		Name:  stateCookieName,
		Value: base64.URLEncoding.EncodeToString(sdJSON),
	})

	w := httptest.NewRecorder()
	h.HandleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Статус: want 400, got %d", w.Code)
	}
}
