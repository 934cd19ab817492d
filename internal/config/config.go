// Пакет config — конфигурация TaskTrack из переменных окружения
// с префиксом TT_.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации TaskTrack.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak / OIDC ---

	// URL Keycloak (например, https://keycloak.example.com)
	KeycloakURL string
	// Внешний URL Keycloak для browser redirects (если отличается от KeycloakURL)
	KeycloakBrowserURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// OIDC Client ID для UI-логина (public client, PKCE)
	OIDCClientID string
	// Таймаут HTTP-клиента OIDC (token endpoint)
	OIDCClientTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с IdP (опционально)
	IDPCACertPath string

	// --- JWT (валидация Bearer-токенов REST API) ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// --- Маппинг групп → ролей ---

	// Группы Keycloak, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль user (через запятую)
	RoleUserGroups []string

	// --- Admin Query Tool ---

	// Максимальное количество строк в результате ad-hoc запроса
	QueryMaxRows int
	// Таймаут выполнения ad-hoc запроса
	QueryTimeout time.Duration

	// --- Кэш справочников ---

	// Максимальное количество категорий в LRU-кэше справочников
	DropdownCacheSize int
	// Время жизни записи кэша справочников
	DropdownCacheTTL time.Duration

	// --- UI ---

	// Секрет для шифрования UI-сессий (base64, 32 bytes).
	// Если не задан — генерируется случайный при старте.
	UISessionSecret string
	// Устанавливать Secure flag на cookies (true за HTTPS)
	SecureCookies bool
	// Префиксы путей, допустимые для post-login redirect (через запятую)
	LoginRedirectPrefixes []string

	// --- Rate limiting ---

	// Допустимая частота запросов к /login (запросов в секунду)
	LoginRateLimit float64
	// Burst для rate limiter /login
	LoginRateBurst int

	// --- Мониторинг зависимостей ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// envReader читает переменные окружения и запоминает первую ошибку.
// Позволяет собрать Load из линейных присваиваний без err-проверки
// после каждого поля.
type envReader struct {
	err error
}

func (e *envReader) fail(key string, format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...))
	}
}

// required — переменная обязана быть задана и непуста.
func (e *envReader) required(key string) string {
	val := os.Getenv(key)
	if val == "" {
		e.fail(key, "обязательная переменная окружения не задана")
	}
	return val
}

// str — строка с значением по умолчанию.
func (e *envReader) str(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// integer — целое число с значением по умолчанию.
func (e *envReader) integer(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		e.fail(key, "некорректное целое число: %q", val)
		return def
	}
	return n
}

// float — число с плавающей точкой с значением по умолчанию.
func (e *envReader) float(key string, def float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		e.fail(key, "некорректное число: %q", val)
		return def
	}
	return f
}

// duration — длительность в формате Go (30s, 15m, 1h).
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(key, "некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
		return def
	}
	return d
}

// boolean — true только при значении "true".
func (e *envReader) boolean(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val == "true"
}

// oneOf — строка, ограниченная набором допустимых значений.
func (e *envReader) oneOf(key, def string, allowed ...string) string {
	val := e.str(key, def)
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	e.fail(key, "недопустимое значение %q, допустимые: %s", val, strings.Join(allowed, ", "))
	return def
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	r := &envReader{}
	cfg := &Config{}

	// Сервер
	cfg.Port = r.integer("TT_PORT", 8080)
	if r.err == nil && (cfg.Port < 1 || cfg.Port > 65535) {
		r.fail("TT_PORT", "значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}
	cfg.LogFormat = r.oneOf("TT_LOG_FORMAT", "json", "json", "text")
	if lvl, err := parseLogLevel(r.str("TT_LOG_LEVEL", "info")); err != nil {
		r.fail("TT_LOG_LEVEL", "%s", err.Error())
	} else {
		cfg.LogLevel = lvl
	}

	// PostgreSQL
	cfg.DBHost = r.required("TT_DB_HOST")
	cfg.DBPort = r.integer("TT_DB_PORT", 5432)
	cfg.DBName = r.required("TT_DB_NAME")
	cfg.DBUser = r.required("TT_DB_USER")
	cfg.DBPassword = r.required("TT_DB_PASSWORD")
	cfg.DBSSLMode = r.oneOf("TT_DB_SSL_MODE", "disable",
		"disable", "require", "verify-ca", "verify-full")

	// Keycloak / OIDC
	cfg.KeycloakURL = strings.TrimRight(r.required("TT_KEYCLOAK_URL"), "/")
	cfg.KeycloakBrowserURL = strings.TrimRight(r.str("TT_KEYCLOAK_BROWSER_URL", ""), "/")
	cfg.KeycloakRealm = r.str("TT_KEYCLOAK_REALM", "tasktrack")
	cfg.OIDCClientID = r.str("TT_OIDC_CLIENT_ID", "tasktrack-ui")
	cfg.OIDCClientTimeout = r.duration("TT_OIDC_CLIENT_TIMEOUT", 30*time.Second)
	cfg.IDPCACertPath = r.str("TT_IDP_CA_CERT_PATH", "")

	// JWT. Issuer и JWKS выводятся из адреса Keycloak, если не заданы явно.
	realmURL := fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm)
	cfg.JWTIssuer = r.str("TT_JWT_ISSUER", realmURL)
	cfg.JWTJWKSURL = r.str("TT_JWT_JWKS_URL", realmURL+"/protocol/openid-connect/certs")
	cfg.JWTLeeway = r.duration("TT_JWT_LEEWAY", 30*time.Second)
	cfg.JWKSRefreshInterval = r.duration("TT_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	cfg.JWKSClientTimeout = r.duration("TT_JWKS_CLIENT_TIMEOUT", 10*time.Second)

	// Маппинг групп → ролей
	cfg.RoleAdminGroups = parseCSV(r.str("TT_ROLE_ADMIN_GROUPS", "tasktrack-admins"))
	cfg.RoleUserGroups = parseCSV(r.str("TT_ROLE_USER_GROUPS", "tasktrack-users"))

	// Admin Query Tool
	cfg.QueryMaxRows = r.integer("TT_QUERY_MAX_ROWS", 10000)
	if r.err == nil && (cfg.QueryMaxRows < 1 || cfg.QueryMaxRows > 1000000) {
		r.fail("TT_QUERY_MAX_ROWS", "значение %d вне допустимого диапазона 1-1000000", cfg.QueryMaxRows)
	}
	cfg.QueryTimeout = r.duration("TT_QUERY_TIMEOUT", 30*time.Second)

	// Кэш справочников
	cfg.DropdownCacheSize = r.integer("TT_DROPDOWN_CACHE_SIZE", 128)
	if r.err == nil && cfg.DropdownCacheSize < 1 {
		r.fail("TT_DROPDOWN_CACHE_SIZE", "значение должно быть положительным")
	}
	cfg.DropdownCacheTTL = r.duration("TT_DROPDOWN_CACHE_TTL", 5*time.Minute)

	// UI
	cfg.UISessionSecret = r.str("TT_UI_SESSION_SECRET", "")
	cfg.SecureCookies = r.boolean("TT_SECURE_COOKIES", false)
	cfg.LoginRedirectPrefixes = parseCSV(r.str("TT_LOGIN_REDIRECT_PREFIXES", "/ui,/profile"))

	// Rate limiting
	cfg.LoginRateLimit = r.float("TT_LOGIN_RATE_LIMIT", 5)
	if r.err == nil && cfg.LoginRateLimit <= 0 {
		r.fail("TT_LOGIN_RATE_LIMIT", "значение должно быть положительным")
	}
	cfg.LoginRateBurst = r.integer("TT_LOGIN_RATE_BURST", 10)
	if r.err == nil && cfg.LoginRateBurst < 1 {
		r.fail("TT_LOGIN_RATE_BURST", "значение должно быть положительным")
	}

	// Мониторинг зависимостей
	cfg.DephealthGroup = r.str("TT_DEPHEALTH_GROUP", "tasktrack")
	cfg.DephealthCheckInterval = r.duration("TT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)

	// Graceful shutdown
	cfg.ShutdownTimeout = r.duration("TT_SHUTDOWN_TIMEOUT", 5*time.Second)

	if r.err != nil {
		return nil, r.err
	}
	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для topologymetrics — лейблы метрик, не для подключения).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает список, разделённый запятыми. Пробелы вокруг
// элементов убираются, пустые элементы пропускаются.
func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
