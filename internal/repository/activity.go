package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

// ActivityRepository — интерфейс CRUD для таблицы activities.
type ActivityRepository interface {
	// Create создаёт активность.
	Create(ctx context.Context, a *model.Activity) error
	// GetByID возвращает активность по UUID. Если не найдена — ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	// List возвращает активности по фильтру.
	List(ctx context.Context, filter *model.ActivityFilter) ([]*model.Activity, error)
	// Count возвращает количество активностей по фильтру.
	Count(ctx context.Context, filter *model.ActivityFilter) (int, error)
	// Update обновляет активность. Если нет записи — ErrNotFound.
	Update(ctx context.Context, a *model.Activity) error
	// Delete удаляет активность по UUID. Если не найдена — ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// activityRepo — реализация ActivityRepository.
type activityRepo struct {
	db DBTX
}

// NewActivityRepository создаёт репозиторий активностей.
func NewActivityRepository(db DBTX) ActivityRepository {
	return &activityRepo{db: db}
}

const activityColumns = `id, subject, title, description, category, status, priority, due_date, created_at, updated_at`

func (r *activityRepo) Create(ctx context.Context, a *model.Activity) error {
	query := `
		INSERT INTO activities (subject, title, description, category, status, priority, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.Subject, a.Title, a.Description, a.Category, a.Status, a.Priority, a.DueDate,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания активности: %w", err)
	}
	return nil
}

func (r *activityRepo) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE id = $1`, activityColumns)

	a := &model.Activity{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Subject, &a.Title, &a.Description, &a.Category,
		&a.Status, &a.Priority, &a.DueDate, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения активности: %w", err)
	}
	return a, nil
}

// buildFilter формирует WHERE-условия и аргументы по фильтру.
func buildFilter(filter *model.ActivityFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conds = append(conds, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return where, args
}

func (r *activityRepo) List(ctx context.Context, filter *model.ActivityFilter) ([]*model.Activity, error) {
	where, args := buildFilter(filter)
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM activities
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, activityColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка активностей: %w", err)
	}
	defer rows.Close()

	var result []*model.Activity
	for rows.Next() {
		a := &model.Activity{}
		if err := rows.Scan(
			&a.ID, &a.Subject, &a.Title, &a.Description, &a.Category,
			&a.Status, &a.Priority, &a.DueDate, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования активности: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *activityRepo) Count(ctx context.Context, filter *model.ActivityFilter) (int, error) {
	where, args := buildFilter(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM activities %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта активностей: %w", err)
	}
	return count, nil
}

func (r *activityRepo) Update(ctx context.Context, a *model.Activity) error {
	query := `
		UPDATE activities
		SET title = $2, description = $3, category = $4, status = $5,
			priority = $6, due_date = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Title, a.Description, a.Category, a.Status, a.Priority, a.DueDate,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления активности: %w", err)
	}
	return nil
}

func (r *activityRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления активности: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
