// activities.go — сервис активностей по задачам.
// Пользователь работает только со своими активностями;
// администратор видит все.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// ActivityService — сервис для работы с активностями.
type ActivityService struct {
	repo     repository.ActivityRepository
	dropdown *DropdownService
	logger   *slog.Logger
}

// NewActivityService создаёт сервис активностей.
func NewActivityService(
	repo repository.ActivityRepository,
	dropdown *DropdownService,
	logger *slog.Logger,
) *ActivityService {
	return &ActivityService{
		repo:     repo,
		dropdown: dropdown,
		logger:   logger.With(slog.String("service", "activities")),
	}
}

// Create создаёт активность от имени subject.
func (s *ActivityService) Create(ctx context.Context, a *model.Activity) error {
	if err := s.validateActivity(ctx, a); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("ошибка создания активности: %w", err)
	}

	s.logger.Info("Активность создана",
		slog.String("id", a.ID),
		slog.String("subject", a.Subject),
	)
	return nil
}

// Reader — идентичность читателя активностей.
// Обычный пользователь читает только свои записи, администратор — любые.
// ReadAll выставляется для сервисных учёток со scope tasks:read:
// у них нет собственных активностей, они читают всё.
type Reader struct {
	Subject string
	Role    string
	ReadAll bool
}

// unrestricted — чтение без сужения до владельца.
func (rd Reader) unrestricted() bool {
	return rd.ReadAll || rd.Role == rbac.RoleAdmin
}

// Get возвращает активность; ограниченный читатель получает только свою.
func (s *ActivityService) Get(ctx context.Context, id string, rd Reader) (*model.Activity, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения активности: %w", err)
	}
	if !rd.unrestricted() && a.Subject != rd.Subject {
		return nil, ErrNotOwner
	}
	return a, nil
}

// List возвращает активности по фильтру. Для ограниченного читателя
// фильтр принудительно сужается до собственных записей.
func (s *ActivityService) List(ctx context.Context, filter *model.ActivityFilter, rd Reader) ([]*model.Activity, int, error) {
	if !rd.unrestricted() {
		filter.Subject = rd.Subject
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	activities, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка активностей: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта активностей: %w", err)
	}
	return activities, total, nil
}

// Update обновляет активность; не-администратор редактирует только свою.
func (s *ActivityService) Update(ctx context.Context, a *model.Activity, subject, role string) error {
	current, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка получения активности: %w", err)
	}
	if role != rbac.RoleAdmin && current.Subject != subject {
		return ErrNotOwner
	}

	a.Subject = current.Subject
	a.CreatedAt = current.CreatedAt
	if err := s.validateActivity(ctx, a); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления активности: %w", err)
	}

	s.logger.Info("Активность обновлена", slog.String("id", a.ID))
	return nil
}

// Delete удаляет активность; не-администратор удаляет только свою.
func (s *ActivityService) Delete(ctx context.Context, id, subject, role string) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка получения активности: %w", err)
	}
	if role != rbac.RoleAdmin && current.Subject != subject {
		return ErrNotOwner
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления активности: %w", err)
	}

	s.logger.Info("Активность удалена", slog.String("id", id))
	return nil
}

// validateActivity проверяет поля активности.
// Категория/статус/приоритет, если заданы, должны существовать
// в соответствующих справочниках.
func (s *ActivityService) validateActivity(ctx context.Context, a *model.Activity) error {
	if a == nil {
		return fmt.Errorf("%w: пустое тело запроса", ErrValidation)
	}
	if a.Subject == "" {
		return fmt.Errorf("%w: пустой subject", ErrValidation)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: пустое название", ErrValidation)
	}
	if utf8.RuneCountInString(a.Title) > 512 {
		return fmt.Errorf("%w: название длиннее 512 символов", ErrValidation)
	}

	checks := []struct {
		category string
		value    string
	}{
		{"category", a.Category},
		{"status", a.Status},
		{"priority", a.Priority},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		values, err := s.dropdown.Values(ctx, c.category)
		if err != nil {
			return fmt.Errorf("ошибка проверки справочника %s: %w", c.category, err)
		}
		if !containsValue(values, c.value) {
			return fmt.Errorf("%w: значение %q отсутствует в справочнике %s", ErrValidation, c.value, c.category)
		}
	}

	return nil
}

// containsValue ищет значение в срезе справочных значений.
func containsValue(values []*model.DropdownValue, value string) bool {
	for _, v := range values {
		if v.Value == value {
			return true
		}
	}
	return false
}
