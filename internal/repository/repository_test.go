package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/tasktrack/internal/config"
	"github.com/bigkaa/tasktrack/internal/database"
	"github.com/bigkaa/tasktrack/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
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

	// Настраиваем env для config.Load()
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

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты UserProfileRepository ---

func TestUserProfileLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserProfileRepository(pool)

	subject := uuid.New().String()

	// Ensure — первый вход создаёт профиль
	p, err := repo.Ensure(ctx, subject, "ivanov", "ivanov@example.com")
	if err != nil {
		t.Fatalf("Ensure() ошибка: %v", err)
	}
	if p.ID == "" {
		t.Error("ID не установлен")
	}
	if p.Username != "ivanov" {
		t.Errorf("Username = %q, хотели %q", p.Username, "ivanov")
	}

	// Ensure повторно — профиль не дублируется
	p2, err := repo.Ensure(ctx, subject, "ivanov", "other@example.com")
	if err != nil {
		t.Fatalf("Ensure() повторно ошибка: %v", err)
	}
	if p2.ID != p.ID {
		t.Errorf("повторный Ensure создал новую запись: %s != %s", p2.ID, p.ID)
	}
	if p2.Email != "ivanov@example.com" {
		t.Errorf("Email перезаписан при повторном Ensure: %q", p2.Email)
	}

	// UpdateProfile — редактируемые поля
	upd := &model.ProfileUpdate{
		Email:      "new@example.com",
		FullName:   "Иванов Иван",
		Department: "ИТ",
		Phone:      "+7 900 000-00-00",
	}
	p3, err := repo.UpdateProfile(ctx, subject, upd)
	if err != nil {
		t.Fatalf("UpdateProfile() ошибка: %v", err)
	}
	if p3.FullName != "Иванов Иван" {
		t.Errorf("FullName = %q, хотели %q", p3.FullName, "Иванов Иван")
	}
	if p3.Email != "new@example.com" {
		t.Errorf("Email = %q, хотели %q", p3.Email, "new@example.com")
	}

	// SetRoleOverride
	admin := "admin"
	if err := repo.SetRoleOverride(ctx, subject, &admin); err != nil {
		t.Fatalf("SetRoleOverride() ошибка: %v", err)
	}
	got, err := repo.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject() ошибка: %v", err)
	}
	if got.RoleOverride == nil || *got.RoleOverride != "admin" {
		t.Errorf("RoleOverride = %v, хотели admin", got.RoleOverride)
	}

	// Снятие override
	if err := repo.SetRoleOverride(ctx, subject, nil); err != nil {
		t.Fatalf("SetRoleOverride(nil) ошибка: %v", err)
	}
	got, err = repo.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject() ошибка: %v", err)
	}
	if got.RoleOverride != nil {
		t.Errorf("RoleOverride = %v, хотели nil", got.RoleOverride)
	}
}

func TestUserProfileNotFound(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserProfileRepository(pool)

	_, err := repo.GetBySubject(ctx, uuid.New().String())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBySubject() для несуществующего subject: %v, хотели ErrNotFound", err)
	}

	err = repo.SetRoleOverride(ctx, uuid.New().String(), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRoleOverride() для несуществующего subject: %v, хотели ErrNotFound", err)
	}
}

// --- Тесты DropdownValueRepository ---

func TestDropdownValueCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDropdownValueRepository(pool)

	dv := &model.DropdownValue{
		Category:  "status",
		Value:     "in_progress",
		Label:     "В работе",
		SortOrder: 2,
		Active:    true,
	}

	// Create
	if err := repo.Create(ctx, dv); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if dv.ID == "" {
		t.Error("ID не установлен")
	}

	// Дубликат (category, value) -> ErrConflict
	dup := &model.DropdownValue{
		Category: "status",
		Value:    "in_progress",
		Label:    "Дубликат",
		Active:   true,
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликата: %v, хотели ErrConflict", err)
	}

	// То же value в другой категории — не конфликт
	other := &model.DropdownValue{
		Category: "priority",
		Value:    "in_progress",
		Label:    "Другая категория",
		Active:   true,
	}
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("Create() в другой категории: %v", err)
	}

	// GetByID
	got, err := repo.GetByID(ctx, dv.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Label != "В работе" {
		t.Errorf("Label = %q, хотели %q", got.Label, "В работе")
	}

	// ListByCategory — только активные, в порядке sort_order
	first := &model.DropdownValue{
		Category:  "status",
		Value:     "new",
		Label:     "Новая",
		SortOrder: 1,
		Active:    true,
	}
	inactive := &model.DropdownValue{
		Category:  "status",
		Value:     "archived",
		Label:     "Архив",
		SortOrder: 9,
		Active:    false,
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, inactive); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	list, err := repo.ListByCategory(ctx, "status")
	if err != nil {
		t.Fatalf("ListByCategory() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByCategory() вернул %d записей, хотели 2 (неактивные исключаются)", len(list))
	}
	if list[0].Value != "new" || list[1].Value != "in_progress" {
		t.Errorf("порядок сортировки нарушен: %s, %s", list[0].Value, list[1].Value)
	}

	// ListCategories
	categories, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() ошибка: %v", err)
	}
	if len(categories) != 2 {
		t.Errorf("ListCategories() вернул %d категорий, хотели 2", len(categories))
	}

	// Update
	dv.Label = "Выполняется"
	if err := repo.Update(ctx, dv); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, err = repo.GetByID(ctx, dv.ID)
	if err != nil {
		t.Fatalf("GetByID() после Update ошибка: %v", err)
	}
	if got.Label != "Выполняется" {
		t.Errorf("Label = %q, хотели %q", got.Label, "Выполняется")
	}

	// Update в существующую пару (category, value) -> ErrConflict
	first.Value = "in_progress"
	if err := repo.Update(ctx, first); !errors.Is(err, ErrConflict) {
		t.Errorf("Update() в занятую пару: %v, хотели ErrConflict", err)
	}

	// Delete
	if err := repo.Delete(ctx, dv.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, dv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() после Delete: %v, хотели ErrNotFound", err)
	}
	if err := repo.Delete(ctx, dv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete(): %v, хотели ErrNotFound", err)
	}
}

// --- Тесты ActivityRepository ---

func TestActivityCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(pool)

	subject := uuid.New().String()
	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	a := &model.Activity{
		Subject:     subject,
		Title:       "Подготовить отчёт",
		Description: "Квартальный отчёт по проекту",
		Category:    "reporting",
		Status:      "new",
		Priority:    "high",
		DueDate:     &due,
	}

	// Create
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if a.ID == "" {
		t.Error("ID не установлен")
	}

	// GetByID
	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != "Подготовить отчёт" {
		t.Errorf("Title = %q, хотели %q", got.Title, "Подготовить отчёт")
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, хотели %v", got.DueDate, due)
	}

	// Вторая активность с другим статусом
	b := &model.Activity{
		Subject:  subject,
		Title:    "Закрыть задачу",
		Status:   "done",
		Priority: "low",
	}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// List по subject
	list, err := repo.List(ctx, &model.ActivityFilter{Subject: subject, Limit: 10})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List() вернул %d записей, хотели 2", len(list))
	}

	// List с фильтром по статусу
	list, err = repo.List(ctx, &model.ActivityFilter{Subject: subject, Status: "done", Limit: 10})
	if err != nil {
		t.Fatalf("List() с фильтром ошибка: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Закрыть задачу" {
		t.Errorf("List() с фильтром по статусу вернул не то: %d записей", len(list))
	}

	// Count
	count, err := repo.Count(ctx, &model.ActivityFilter{Subject: subject})
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, хотели 2", count)
	}

	// Update
	a.Status = "in_progress"
	a.DueDate = nil
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, err = repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() после Update ошибка: %v", err)
	}
	if got.Status != "in_progress" {
		t.Errorf("Status = %q, хотели %q", got.Status, "in_progress")
	}
	if got.DueDate != nil {
		t.Errorf("DueDate = %v, хотели nil", got.DueDate)
	}

	// Delete
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() после Delete: %v, хотели ErrNotFound", err)
	}
}

// --- Тесты QueryLogRepository ---

func TestQueryLogInsertAndList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewQueryLogRepository(pool)

	subject := uuid.New().String()

	ok := &model.QueryLogEntry{
		Subject:    subject,
		QueryText:  "SELECT 1",
		RowCount:   1,
		DurationMs: 3,
		Success:    true,
	}
	if err := repo.Insert(ctx, ok); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if ok.ID == "" {
		t.Error("ID не установлен")
	}
	if ok.ExecutedAt.IsZero() {
		t.Error("ExecutedAt не установлен")
	}

	failed := &model.QueryLogEntry{
		Subject:   subject,
		QueryText: "SELECT * FROM missing_table",
		Success:   false,
		ErrorText: `relation "missing_table" does not exist`,
	}
	if err := repo.Insert(ctx, failed); err != nil {
		t.Fatalf("Insert() ошибки ошибка: %v", err)
	}

	list, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() вернул %d записей, хотели 2", len(list))
	}
	// Новые первыми
	if list[0].QueryText != "SELECT * FROM missing_table" {
		t.Errorf("порядок журнала нарушен: первая запись %q", list[0].QueryText)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, хотели 2", count)
	}
}

// --- Тесты TxRunner ---

func TestRunInReadOnlyTx(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	// SELECT внутри read-only транзакции работает
	err := runner.RunInReadOnlyTx(ctx, func(tx pgx.Tx) error {
		var n int
		return tx.QueryRow(ctx, "SELECT 1").Scan(&n)
	})
	if err != nil {
		t.Errorf("RunInReadOnlyTx() с SELECT: %v", err)
	}

	// INSERT внутри read-only транзакции отклоняется СУБД
	err = runner.RunInReadOnlyTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO dropdown_values (category, value, label) VALUES ('x', 'y', 'z')`)
		return err
	})
	if err == nil {
		t.Error("RunInReadOnlyTx() с INSERT завершился без ошибки, хотели отказ СУБД")
	}
}
