// dephealth.go — наблюдение за зависимостями через topologymetrics SDK.
//
// TaskTrack публикует на /metrics состояние двух критичных зависимостей:
// PostgreSQL (SQL checker поверх рабочего pgxpool) и Keycloak (HTTP checker
// по JWKS endpoint). Проверка через рабочий пул замечает в том числе
// исчерпание соединений, чего отдельное тестовое подключение не покажет.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры монитора зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа зависимостей (tasktrack).
	ServiceID string
	// Group — значение TT_DEPHEALTH_GROUP.
	Group string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool).
	DB *sql.DB
	// PGConnURL используется только для лейблов метрик.
	PGConnURL string
	// KeycloakJWKSURL — адрес JWKS, по нему же идёт HTTP-проверка.
	KeycloakJWKSURL string
	CheckInterval   time.Duration
	Logger          *slog.Logger
	// Registerer — отдельный prometheus.Registerer для тестов;
	// nil = глобальный registry.
	Registerer prometheus.Registerer
}

// DephealthService управляет жизненным циклом монитора зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService настраивает монитор зависимостей.
func NewDephealthService(cfg DephealthConfig) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(cfg.Logger),
		// pgcheck.New + AddDependency вместо contrib/sqldb: тот тянет
		// транзитивную зависимость на MySQL-драйвер.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(cfg.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(keycloakHealthPath(cfg.KeycloakJWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			// Dev-окружения ходят в Keycloak с self-signed сертификатом
			dephealth.WithHTTPTLSSkipVerify(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: cfg.Logger.With(slog.String("component", "dephealth")),
	}, nil
}

// keycloakHealthPath выбирает путь для HTTP-проверки Keycloak.
// /health у Keycloak живёт на отдельном management-порту, поэтому
// проверяем сам JWKS path: он заодно подтверждает доступность realm.
func keycloakHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает фоновые проверки.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + Keycloak)")
	return ds.dh.Start(ctx)
}

// Stop останавливает фоновые проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health отдаёт срез состояния: имя зависимости → доступна ли.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
