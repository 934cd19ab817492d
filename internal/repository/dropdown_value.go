package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

// DropdownValueRepository — интерфейс CRUD для таблицы dropdown_values.
type DropdownValueRepository interface {
	// Create создаёт значение. При дубликате (category, value) — ErrConflict.
	Create(ctx context.Context, dv *model.DropdownValue) error
	// GetByID возвращает значение по UUID. Если не найдено — ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.DropdownValue, error)
	// ListByCategory возвращает активные значения категории в порядке sort_order.
	ListByCategory(ctx context.Context, category string) ([]*model.DropdownValue, error)
	// ListAll возвращает все значения (включая неактивные) для админского UI.
	ListAll(ctx context.Context) ([]*model.DropdownValue, error)
	// ListCategories возвращает список категорий, у которых есть значения.
	ListCategories(ctx context.Context) ([]string, error)
	// Update обновляет значение. При дубликате — ErrConflict, если нет записи — ErrNotFound.
	Update(ctx context.Context, dv *model.DropdownValue) error
	// Delete удаляет значение по UUID. Если не найдено — ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// dropdownValueRepo — реализация DropdownValueRepository.
type dropdownValueRepo struct {
	db DBTX
}

// NewDropdownValueRepository создаёт репозиторий справочных значений.
func NewDropdownValueRepository(db DBTX) DropdownValueRepository {
	return &dropdownValueRepo{db: db}
}

const dvColumns = `id, category, value, label, sort_order, active, created_at, updated_at`

func (r *dropdownValueRepo) Create(ctx context.Context, dv *model.DropdownValue) error {
	query := `
		INSERT INTO dropdown_values (category, value, label, sort_order, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		dv.Category, dv.Value, dv.Label, dv.SortOrder, dv.Active,
	).Scan(&dv.ID, &dv.CreatedAt, &dv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания справочного значения: %w", err)
	}
	return nil
}

func (r *dropdownValueRepo) GetByID(ctx context.Context, id string) (*model.DropdownValue, error) {
	query := fmt.Sprintf(`SELECT %s FROM dropdown_values WHERE id = $1`, dvColumns)

	dv := &model.DropdownValue{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&dv.ID, &dv.Category, &dv.Value, &dv.Label,
		&dv.SortOrder, &dv.Active, &dv.CreatedAt, &dv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения справочного значения: %w", err)
	}
	return dv, nil
}

func (r *dropdownValueRepo) ListByCategory(ctx context.Context, category string) ([]*model.DropdownValue, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM dropdown_values
		WHERE category = $1 AND active
		ORDER BY sort_order, value`, dvColumns)

	rows, err := r.db.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения значений категории %q: %w", category, err)
	}
	defer rows.Close()

	return scanDropdownValues(rows)
}

func (r *dropdownValueRepo) ListAll(ctx context.Context) ([]*model.DropdownValue, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM dropdown_values
		ORDER BY category, sort_order, value`, dvColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения всех справочных значений: %w", err)
	}
	defer rows.Close()

	return scanDropdownValues(rows)
}

func (r *dropdownValueRepo) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT category FROM dropdown_values ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка категорий: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("ошибка сканирования категории: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *dropdownValueRepo) Update(ctx context.Context, dv *model.DropdownValue) error {
	query := `
		UPDATE dropdown_values
		SET category = $2, value = $3, label = $4, sort_order = $5, active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		dv.ID, dv.Category, dv.Value, dv.Label, dv.SortOrder, dv.Active,
	).Scan(&dv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка обновления справочного значения: %w", err)
	}
	return nil
}

func (r *dropdownValueRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dropdown_values WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления справочного значения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanDropdownValues вычитывает все строки результата в срез моделей.
func scanDropdownValues(rows pgx.Rows) ([]*model.DropdownValue, error) {
	var result []*model.DropdownValue
	for rows.Next() {
		dv := &model.DropdownValue{}
		if err := rows.Scan(
			&dv.ID, &dv.Category, &dv.Value, &dv.Label,
			&dv.SortOrder, &dv.Active, &dv.CreatedAt, &dv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования справочного значения: %w", err)
		}
		result = append(result, dv)
	}
	return result, rows.Err()
}
