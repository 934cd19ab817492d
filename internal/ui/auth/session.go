// Пакет auth — аутентификация веб-интерфейса TaskTrack: OIDC-клиент
// Keycloak и сессии в зашифрованных cookie (AES-256-GCM).
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionCookieName — cookie с зашифрованной сессией UI.
const SessionCookieName = "tasktrack_session"

// SessionCookieMaxAge — срок жизни cookie сессии, 24 часа.
const SessionCookieMaxAge = 24 * 60 * 60

// DeniedCookieName — cookie-флаг отказа в доступе. Пока флаг установлен,
// защищённые страницы возвращают пользователя на /access-denied;
// сбрасывается через POST /clear-access-denied-session.
const DeniedCookieName = "tasktrack_denied"

// expiryRefreshBuffer — за сколько секунд до истечения access token
// сессия считается просроченной, чтобы успеть сделать refresh.
const expiryRefreshBuffer = 30

// SessionData — содержимое сессии UI; сериализуется в JSON и
// шифруется целиком в значение cookie.
type SessionData struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	// ExpiresAt — Unix-время истечения access token.
	ExpiresAt int64 `json:"expires_at"`
	// Subject — sub пользователя в IdP.
	Subject  string   `json:"subject"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	// Role — действующая роль (admin или user).
	Role   string   `json:"role"`
	Groups []string `json:"groups,omitempty"`
}

// IsExpired — true, когда access token истёк или истечёт в ближайшие
// expiryRefreshBuffer секунд.
func (s *SessionData) IsExpired() bool {
	return time.Now().Unix() >= s.ExpiresAt-expiryRefreshBuffer
}

// SessionManager шифрует и расшифровывает SessionData в cookie.
type SessionManager struct {
	gcm    cipher.AEAD
	secure bool
}

// NewSessionManager создаёт менеджер сессий с ключом AES-256.
// Ключ принимается как base64 от 32 байт; любая другая строка
// сворачивается в 32 байта через SHA-256. Пустой ключ означает
// случайный: сессии не переживут перезапуск процесса.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	keyBytes, err := sessionKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("создание AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("создание AES-GCM: %w", err)
	}

	return &SessionManager{gcm: gcm, secure: secure}, nil
}

func sessionKey(key string) ([]byte, error) {
	if key == "" {
		raw := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return nil, fmt.Errorf("генерация ключа сессии: %w", err)
		}
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		return raw, nil
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:], nil
}

// Encrypt сериализует сессию и шифрует её в base64url-строку.
// Nonce уникален на каждый вызов и хранится в начале шифртекста.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("сериализация сессии: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("генерация nonce: %w", err)
	}

	sealed := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt восстанавливает SessionData из значения cookie.
// Подделанное или повреждённое значение даёт ошибку аутентификации GCM.
func (sm *SessionManager) Decrypt(encrypted string) (*SessionData, error) {
	raw, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("декодирование base64 сессии: %w", err)
	}

	ns := sm.gcm.NonceSize()
	if len(raw) < ns {
		return nil, errors.New("значение cookie сессии короче nonce")
	}

	plaintext, err := sm.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("расшифровка сессии: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("десериализация сессии: %w", err)
	}
	return &data, nil
}

// SetSessionCookie записывает зашифрованную сессию в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	value, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSessionFromRequest читает сессию из cookie запроса.
// Отсутствие cookie — не ошибка: возвращается nil, nil.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie стирает cookie сессии (logout).
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
