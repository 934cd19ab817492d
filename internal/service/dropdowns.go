// dropdowns.go — сервис справочников выпадающих списков.
// Чтение проходит через LRU-кэш с TTL; мутации (только admin)
// инвалидируют затронутые категории.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// categoryPattern — допустимый формат имени категории.
var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,127}$`)

// DropdownService — сервис для работы со справочниками.
type DropdownService struct {
	repo   repository.DropdownValueRepository
	cache  *DropdownCache
	logger *slog.Logger
}

// NewDropdownService создаёт сервис справочников.
func NewDropdownService(
	repo repository.DropdownValueRepository,
	cache *DropdownCache,
	logger *slog.Logger,
) *DropdownService {
	return &DropdownService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(slog.String("service", "dropdowns")),
	}
}

// Categories возвращает список категорий справочников.
func (s *DropdownService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения категорий: %w", err)
	}
	return categories, nil
}

// Values возвращает активные значения категории (через кэш).
// Для несуществующей категории возвращает пустой срез, не ошибку.
func (s *DropdownService) Values(ctx context.Context, category string) ([]*model.DropdownValue, error) {
	if !categoryPattern.MatchString(category) {
		return nil, fmt.Errorf("%w: некорректное имя категории %q", ErrValidation, category)
	}

	if cached, ok := s.cache.Get(category); ok {
		return cached, nil
	}

	values, err := s.repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения значений категории %q: %w", category, err)
	}

	s.cache.Set(category, values)
	return values, nil
}

// GetByID возвращает справочное значение по идентификатору.
func (s *DropdownService) GetByID(ctx context.Context, id string) (*model.DropdownValue, error) {
	dv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения справочного значения: %w", err)
	}
	return dv, nil
}

// All возвращает все значения, включая неактивные (для админского UI).
func (s *DropdownService) All(ctx context.Context) ([]*model.DropdownValue, error) {
	values, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения справочников: %w", err)
	}
	return values, nil
}

// Create создаёт справочное значение (admin-операция).
func (s *DropdownService) Create(ctx context.Context, dv *model.DropdownValue, createdBy string) error {
	if err := validateDropdownValue(dv); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, dv); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания справочного значения: %w", err)
	}

	s.cache.Invalidate(dv.Category)
	s.logger.Info("Справочное значение создано",
		slog.String("category", dv.Category),
		slog.String("value", dv.Value),
		slog.String("created_by", createdBy),
	)
	return nil
}

// Update обновляет изменяемые поля справочного значения (admin-операция).
// Категория и машинное значение после создания не переопределяются:
// на них ссылаются записи активностей.
func (s *DropdownService) Update(ctx context.Context, id string, upd *model.DropdownUpdate, updatedBy string) (*model.DropdownValue, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: отсутствует id", ErrValidation)
	}
	if upd == nil {
		return nil, fmt.Errorf("%w: пустое тело запроса", ErrValidation)
	}

	dv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения справочного значения: %w", err)
	}

	if upd.Label != nil {
		dv.Label = *upd.Label
	}
	if upd.SortOrder != nil {
		dv.SortOrder = *upd.SortOrder
	}
	if upd.Active != nil {
		dv.Active = *upd.Active
	}
	if err := validateDropdownValue(dv); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, dv); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления справочного значения: %w", err)
	}

	s.cache.Invalidate(dv.Category)
	s.logger.Info("Справочное значение обновлено",
		slog.String("id", dv.ID),
		slog.String("category", dv.Category),
		slog.String("updated_by", updatedBy),
	)
	return dv, nil
}

// Delete удаляет справочное значение (admin-операция).
func (s *DropdownService) Delete(ctx context.Context, id, deletedBy string) error {
	dv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка получения справочного значения: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления справочного значения: %w", err)
	}

	s.cache.Invalidate(dv.Category)
	s.logger.Info("Справочное значение удалено",
		slog.String("id", id),
		slog.String("category", dv.Category),
		slog.String("deleted_by", deletedBy),
	)
	return nil
}

// validateDropdownValue проверяет поля справочного значения.
func validateDropdownValue(dv *model.DropdownValue) error {
	if dv == nil {
		return fmt.Errorf("%w: пустое тело запроса", ErrValidation)
	}
	if !categoryPattern.MatchString(dv.Category) {
		return fmt.Errorf("%w: некорректное имя категории %q", ErrValidation, dv.Category)
	}
	if dv.Value == "" {
		return fmt.Errorf("%w: пустое значение", ErrValidation)
	}
	if utf8.RuneCountInString(dv.Value) > 255 {
		return fmt.Errorf("%w: значение длиннее 255 символов", ErrValidation)
	}
	if dv.Label == "" {
		return fmt.Errorf("%w: пустая подпись", ErrValidation)
	}
	if utf8.RuneCountInString(dv.Label) > 255 {
		return fmt.Errorf("%w: подпись длиннее 255 символов", ErrValidation)
	}
	return nil
}
