// Точка входа TaskTrack — сервис учёта задач.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт сервисный слой, REST API и server-rendered UI (OIDC + сессии),
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/tasktrack/internal/api/handlers"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/config"
	"github.com/bigkaa/tasktrack/internal/database"
	"github.com/bigkaa/tasktrack/internal/repository"
	"github.com/bigkaa/tasktrack/internal/server"
	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/auth"
	uihandlers "github.com/bigkaa/tasktrack/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("TaskTrack запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("TT_DEPHEALTH_GROUP") == "" {
		logger.Warn("TT_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA (для Keycloak)
	var httpClientCA *http.Client
	if cfg.IDPCACertPath != "" {
		httpClientCA, err = buildHTTPClientWithCA(cfg)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата", slog.String("path", cfg.IDPCACertPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.IDPCACertPath))
	}

	// 6. Repositories
	profileRepo := repository.NewUserProfileRepository(pool)
	dropdownRepo := repository.NewDropdownValueRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	dropdownCache := service.NewDropdownCache(cfg.DropdownCacheSize, cfg.DropdownCacheTTL)
	profileSvc := service.NewProfileService(profileRepo, logger)
	dropdownSvc := service.NewDropdownService(dropdownRepo, dropdownCache, logger)
	activitySvc := service.NewActivityService(activityRepo, dropdownSvc, logger)
	queryExecSvc := service.NewQueryExecService(
		txRunner, queryLogRepo,
		cfg.QueryMaxRows, cfg.QueryTimeout,
		logger,
	)

	// 8. Readiness checkers (PostgreSQL + Keycloak)
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.IDPCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		profileSvc,
		dropdownSvc,
		activitySvc,
		queryExecSvc,
		logger,
	)

	// 10. JWT middleware.
	// UserProfileRepository реализует RoleOverrideProvider напрямую.
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.IDPCACertPath,
		cfg.JWTIssuer,
		profileRepo,
		cfg.RoleAdminGroups,
		cfg.RoleUserGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "tasktrack",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PGConnURL:       cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
		Logger:          logger,
	})
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Web UI: сессии, OIDC, страницы

	// Session Manager — шифрование/дешифрование UI-сессий (AES-256-GCM)
	sessionMgr, err := auth.NewSessionManager(cfg.UISessionSecret, cfg.SecureCookies)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.UISessionSecret == "" {
		logger.Warn("TT_UI_SESSION_SECRET не задан, UI-сессии не сохраняются между рестартами")
	}

	// OIDC-клиент для авторизации через Keycloak (PKCE)
	oidcClient := auth.NewOIDCClient(auth.OIDCConfig{
		KeycloakURL:        cfg.KeycloakURL,
		BrowserKeycloakURL: cfg.KeycloakBrowserURL,
		Realm:              cfg.KeycloakRealm,
		ClientID:           cfg.OIDCClientID,
		HTTPClient:         httpClientCA,
		Timeout:            cfg.OIDCClientTimeout,
	})

	// Renderer страниц (html/template, шаблоны встроены через embed)
	renderer, err := pages.NewRenderer()
	if err != nil {
		logger.Error("Ошибка инициализации шаблонов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Auth handler — login/callback/logout
	authHandler := uihandlers.NewAuthHandler(
		oidcClient, sessionMgr, profileSvc,
		cfg.RoleAdminGroups, cfg.RoleUserGroups,
		cfg.LoginRedirectPrefixes,
		cfg.SecureCookies,
		logger,
	)

	// UI auth middleware — проверка сессии, авто-refresh токенов
	uiAuthMiddleware := uimiddleware.NewUIAuth(sessionMgr, oidcClient, logger)

	// Rate limiter страниц входа
	rateLimiter := uimiddleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst, logger)
	defer rateLimiter.Stop()

	dashboardHandler := uihandlers.NewDashboardHandler(activitySvc, dropdownSvc, renderer, logger)
	dropdownsHandler := uihandlers.NewDropdownsHandler(dropdownSvc, renderer, logger)
	queryHandler := uihandlers.NewQueryHandler(queryExecSvc, renderer, logger)
	profileHandler := uihandlers.NewProfileHandler(profileSvc, renderer, logger)
	errorsHandler := uihandlers.NewErrorsHandler(sessionMgr, renderer, cfg.SecureCookies, logger)

	logger.Info("Web UI инициализирован",
		slog.String("oidc_client_id", cfg.OIDCClientID),
		slog.Bool("secure_cookie", cfg.SecureCookies),
	)

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Deps{
		API:         apiHandler,
		JWTAuth:     jwtAuth,
		UIAuth:      uiAuthMiddleware,
		RateLimiter: rateLimiter,
		Auth:        authHandler,
		Errors:      errorsHandler,
		Dashboard:   dashboardHandler,
		Dropdowns:   dropdownsHandler,
		Query:       queryHandler,
		Profile:     profileHandler,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("TaskTrack остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом
// из TT_IDP_CA_CERT_PATH. Используется для запросов к Keycloak.
func buildHTTPClientWithCA(cfg *config.Config) (*http.Client, error) {
	caCert, err := os.ReadFile(cfg.IDPCACertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: cfg.OIDCClientTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
