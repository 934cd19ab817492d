package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/tasktrack/internal/config"
	"github.com/bigkaa/tasktrack/internal/database"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// setupQueryExec запускает PostgreSQL контейнер и создаёт сервис запросов.
func setupQueryExec(t *testing.T, maxRows int) (*QueryExecService, *pgxpool.Pool) {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("tasktrack_test"),
		postgres.WithUsername("tasktrack"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	os.Setenv("TT_DB_HOST", host)
	os.Setenv("TT_DB_PORT", port.Port())
	os.Setenv("TT_DB_NAME", "tasktrack_test")
	os.Setenv("TT_DB_USER", "tasktrack")
	os.Setenv("TT_DB_PASSWORD", "test-password")
	os.Setenv("TT_DB_SSL_MODE", "disable")
	os.Setenv("TT_KEYCLOAK_URL", "http://localhost:8080")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	svc := NewQueryExecService(
		repository.NewTxRunner(pool),
		repository.NewQueryLogRepository(pool),
		maxRows,
		10*time.Second,
		logger,
	)
	return svc, pool
}

// TestExecuteCSV_HeaderMatchesColumns — заголовок CSV совпадает с колонками запроса.
func TestExecuteCSV_HeaderMatchesColumns(t *testing.T) {
	svc, _ := setupQueryExec(t, 1000)
	ctx := context.Background()

	var buf bytes.Buffer
	result, err := svc.ExecuteCSV(ctx, "admin-sub",
		"SELECT 1 AS id, 'hello' AS message, NULL AS empty", &buf)
	if err != nil {
		t.Fatalf("ExecuteCSV() ошибка: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d, хотели 1", result.RowCount)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ошибка чтения CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("CSV содержит %d строк, хотели 2 (заголовок + данные)", len(records))
	}

	wantHeader := []string{"id", "message", "empty"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("заголовок[%d] = %q, хотели %q", i, records[0][i], col)
		}
	}
	if records[1][0] != "1" || records[1][1] != "hello" || records[1][2] != "" {
		t.Errorf("строка данных = %v", records[1])
	}
}

// TestExecuteCSV_RowCap — результат обрезается по лимиту строк.
func TestExecuteCSV_RowCap(t *testing.T) {
	svc, _ := setupQueryExec(t, 5)
	ctx := context.Background()

	var buf bytes.Buffer
	result, err := svc.ExecuteCSV(ctx, "admin-sub",
		"SELECT generate_series(1, 100) AS n", &buf)
	if err != nil {
		t.Fatalf("ExecuteCSV() ошибка: %v", err)
	}
	if result.RowCount != 5 {
		t.Errorf("RowCount = %d, хотели 5", result.RowCount)
	}
	if !result.Truncated {
		t.Error("ожидался Truncated=true")
	}
}

// TestExecuteCSV_WriteRejected — запись отклоняется до выполнения.
func TestExecuteCSV_WriteRejected(t *testing.T) {
	svc, pool := setupQueryExec(t, 1000)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := svc.ExecuteCSV(ctx, "admin-sub",
		"UPDATE user_profiles SET email = 'hacked'", &buf)
	if !errors.Is(err, ErrForbiddenQuery) {
		t.Fatalf("ExecuteCSV() с UPDATE = %v, хотели ErrForbiddenQuery", err)
	}
	if buf.Len() != 0 {
		t.Errorf("в вывод записано %d байт, хотели 0", buf.Len())
	}

	// Отклонённый запрос тоже попадает в журнал
	var count int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM query_log WHERE subject = 'admin-sub' AND NOT success`).Scan(&count)
	if err != nil {
		t.Fatalf("ошибка проверки журнала: %v", err)
	}
	if count == 0 {
		t.Error("отклонённый запрос не попал в журнал")
	}
}

// TestExecuteCSV_History — журнал возвращает выполненные запросы.
func TestExecuteCSV_History(t *testing.T) {
	svc, _ := setupQueryExec(t, 1000)
	ctx := context.Background()

	var buf bytes.Buffer
	if _, err := svc.ExecuteCSV(ctx, "admin-sub", "SELECT 1 AS n", &buf); err != nil {
		t.Fatalf("ExecuteCSV() ошибка: %v", err)
	}

	entries, total, err := svc.History(ctx, 10, 0)
	if err != nil {
		t.Fatalf("History() ошибка: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("History() вернул %d записей (total=%d), хотели 1", len(entries), total)
	}
	if entries[0].QueryText != "SELECT 1 AS n" {
		t.Errorf("QueryText = %q", entries[0].QueryText)
	}
	if !entries[0].Success {
		t.Error("ожидался Success=true")
	}
}
