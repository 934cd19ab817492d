// profile.go — сервис профилей пользователей.
// Профиль создаётся при первом входе; пользователь редактирует только
// собственные контактные поля. Роль и subject изменению не подлежат.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// ProfileService — сервис для работы с профилями пользователей.
type ProfileService struct {
	repo   repository.UserProfileRepository
	logger *slog.Logger
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(
	repo repository.UserProfileRepository,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		repo:   repo,
		logger: logger.With(slog.String("service", "profile")),
	}
}

// EnsureProfile создаёт профиль при первом входе, если его ещё нет.
// Вызывается из UI-аутентификации после успешного OIDC-входа.
func (s *ProfileService) EnsureProfile(ctx context.Context, subject, username, email string) (*model.UserProfile, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: пустой subject", ErrValidation)
	}

	profile, err := s.repo.Ensure(ctx, subject, username, email)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания профиля: %w", err)
	}
	return profile, nil
}

// Get возвращает профиль пользователя по subject.
func (s *ProfileService) Get(ctx context.Context, subject string) (*model.UserProfile, error) {
	profile, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return profile, nil
}

// Update обновляет редактируемые поля собственного профиля пользователя.
// Валидирует email и длины полей.
func (s *ProfileService) Update(ctx context.Context, subject string, upd *model.ProfileUpdate) (*model.UserProfile, error) {
	if err := validateProfileUpdate(upd); err != nil {
		return nil, err
	}

	profile, err := s.repo.UpdateProfile(ctx, subject, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}

	s.logger.Info("Профиль обновлён", slog.String("subject", subject))
	return profile, nil
}

// SetRoleOverride устанавливает локальное дополнение роли (admin-операция).
// role == nil снимает дополнение. updatedBy — username администратора.
func (s *ProfileService) SetRoleOverride(ctx context.Context, subject string, role *string, updatedBy string) error {
	if role != nil && !rbac.IsValidRole(*role) {
		return ErrInvalidRole
	}

	if err := s.repo.SetRoleOverride(ctx, subject, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка установки role override: %w", err)
	}

	roleValue := "(снято)"
	if role != nil {
		roleValue = *role
	}
	s.logger.Info("Role override изменён",
		slog.String("subject", subject),
		slog.String("role", roleValue),
		slog.String("updated_by", updatedBy),
	)
	return nil
}

// List возвращает профили с пагинацией (admin-операция).
func (s *ProfileService) List(ctx context.Context, limit, offset int) ([]*model.UserProfile, int, error) {
	profiles, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта профилей: %w", err)
	}
	return profiles, total, nil
}

// validateProfileUpdate проверяет редактируемые поля профиля.
func validateProfileUpdate(upd *model.ProfileUpdate) error {
	if upd == nil {
		return fmt.Errorf("%w: пустое тело запроса", ErrValidation)
	}

	if upd.Email != "" {
		if _, err := mail.ParseAddress(upd.Email); err != nil {
			return fmt.Errorf("%w: некорректный email %q", ErrValidation, upd.Email)
		}
	}

	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"email", upd.Email, 255},
		{"full_name", upd.FullName, 255},
		{"department", upd.Department, 255},
		{"phone", upd.Phone, 64},
	}
	for _, f := range fields {
		if utf8.RuneCountInString(f.value) > f.max {
			return fmt.Errorf("%w: поле %s длиннее %d символов", ErrValidation, f.name, f.max)
		}
	}

	if upd.Phone != "" && strings.Trim(upd.Phone, "0123456789 +-()") != "" {
		return fmt.Errorf("%w: некорректный телефон %q", ErrValidation, upd.Phone)
	}

	return nil
}
