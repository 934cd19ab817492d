package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

// QueryLogRepository — интерфейс для таблицы query_log.
// Журнал append-only: записи не обновляются и не удаляются.
type QueryLogRepository interface {
	// Insert добавляет запись журнала.
	Insert(ctx context.Context, entry *model.QueryLogEntry) error
	// List возвращает записи журнала, новые первыми.
	List(ctx context.Context, limit, offset int) ([]*model.QueryLogEntry, error)
	// Count возвращает количество записей журнала.
	Count(ctx context.Context) (int, error)
}

// queryLogRepo — реализация QueryLogRepository.
type queryLogRepo struct {
	db DBTX
}

// NewQueryLogRepository создаёт репозиторий журнала запросов.
func NewQueryLogRepository(db DBTX) QueryLogRepository {
	return &queryLogRepo{db: db}
}

func (r *queryLogRepo) Insert(ctx context.Context, entry *model.QueryLogEntry) error {
	query := `
		INSERT INTO query_log (subject, query_text, row_count, duration_ms, success, error_text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, executed_at`

	err := r.db.QueryRow(ctx, query,
		entry.Subject, entry.QueryText, entry.RowCount,
		entry.DurationMs, entry.Success, entry.ErrorText,
	).Scan(&entry.ID, &entry.ExecutedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал запросов: %w", err)
	}
	return nil
}

func (r *queryLogRepo) List(ctx context.Context, limit, offset int) ([]*model.QueryLogEntry, error) {
	query := `
		SELECT id, subject, query_text, row_count, duration_ms, success, error_text, executed_at
		FROM query_log
		ORDER BY executed_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала запросов: %w", err)
	}
	defer rows.Close()

	var result []*model.QueryLogEntry
	for rows.Next() {
		e := &model.QueryLogEntry{}
		if err := rows.Scan(
			&e.ID, &e.Subject, &e.QueryText, &e.RowCount,
			&e.DurationMs, &e.Success, &e.ErrorText, &e.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *queryLogRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
