package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

// UserProfileRepository — интерфейс для таблицы user_profiles.
type UserProfileRepository interface {
	// GetBySubject возвращает профиль по subject из IdP. Если не найден — ErrNotFound.
	GetBySubject(ctx context.Context, subject string) (*model.UserProfile, error)
	// Ensure создаёт профиль при первом входе пользователя, если его ещё нет.
	// Существующий профиль не изменяется, возвращается актуальное состояние.
	Ensure(ctx context.Context, subject, username, email string) (*model.UserProfile, error)
	// UpdateProfile обновляет редактируемые пользователем поля.
	UpdateProfile(ctx context.Context, subject string, upd *model.ProfileUpdate) (*model.UserProfile, error)
	// SetRoleOverride устанавливает локальное дополнение роли (nil — снимает).
	SetRoleOverride(ctx context.Context, subject string, role *string) error
	// GetRoleOverride возвращает локальное дополнение роли.
	// Если профиля нет или override не задан — возвращает nil, nil.
	GetRoleOverride(ctx context.Context, subject string) (*string, error)
	// List возвращает профили с пагинацией.
	List(ctx context.Context, limit, offset int) ([]*model.UserProfile, error)
	// Count возвращает количество профилей.
	Count(ctx context.Context) (int, error)
}

// userProfileRepo — реализация UserProfileRepository.
type userProfileRepo struct {
	db DBTX
}

// NewUserProfileRepository создаёт репозиторий профилей пользователей.
func NewUserProfileRepository(db DBTX) UserProfileRepository {
	return &userProfileRepo{db: db}
}

const profileColumns = `id, subject, username, email, full_name, department, phone, role_override, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := row.Scan(
		&p.ID, &p.Subject, &p.Username, &p.Email, &p.FullName,
		&p.Department, &p.Phone, &p.RoleOverride, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *userProfileRepo) GetBySubject(ctx context.Context, subject string) (*model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE subject = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) Ensure(ctx context.Context, subject, username, email string) (*model.UserProfile, error) {
	// ON CONFLICT DO UPDATE с no-op присваиванием, чтобы RETURNING
	// отработал и для существующей записи.
	query := fmt.Sprintf(`
		INSERT INTO user_profiles (subject, username, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET username = EXCLUDED.username
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, subject, username, email))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) UpdateProfile(ctx context.Context, subject string, upd *model.ProfileUpdate) (*model.UserProfile, error) {
	query := fmt.Sprintf(`
		UPDATE user_profiles
		SET email = $2, full_name = $3, department = $4, phone = $5, updated_at = NOW()
		WHERE subject = $1
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query,
		subject, upd.Email, upd.FullName, upd.Department, upd.Phone,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return p, nil
}

func (r *userProfileRepo) SetRoleOverride(ctx context.Context, subject string, role *string) error {
	query := `
		UPDATE user_profiles
		SET role_override = $2, updated_at = NOW()
		WHERE subject = $1`

	tag, err := r.db.Exec(ctx, query, subject, role)
	if err != nil {
		return fmt.Errorf("ошибка установки role override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userProfileRepo) GetRoleOverride(ctx context.Context, subject string) (*string, error) {
	var role *string
	err := r.db.QueryRow(ctx,
		`SELECT role_override FROM user_profiles WHERE subject = $1`, subject,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения role override: %w", err)
	}
	return role, nil
}

func (r *userProfileRepo) List(ctx context.Context, limit, offset int) ([]*model.UserProfile, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_profiles
		ORDER BY username
		LIMIT $1 OFFSET $2`, profileColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	defer rows.Close()

	var result []*model.UserProfile
	for rows.Next() {
		p := &model.UserProfile{}
		if err := rows.Scan(
			&p.ID, &p.Subject, &p.Username, &p.Email, &p.FullName,
			&p.Department, &p.Phone, &p.RoleOverride, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *userProfileRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта профилей: %w", err)
	}
	return count, nil
}
