package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// fakeDropdownRepo — in-memory репозиторий справочников для тестов.
type fakeDropdownRepo struct {
	items map[string]*model.DropdownValue
}

func (f *fakeDropdownRepo) Create(_ context.Context, dv *model.DropdownValue) error {
	for _, cur := range f.items {
		if cur.Category == dv.Category && cur.Value == dv.Value {
			return repository.ErrConflict
		}
	}
	f.items[dv.ID] = dv
	return nil
}

func (f *fakeDropdownRepo) GetByID(_ context.Context, id string) (*model.DropdownValue, error) {
	dv, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *dv
	return &cp, nil
}

func (f *fakeDropdownRepo) ListByCategory(_ context.Context, category string) ([]*model.DropdownValue, error) {
	var out []*model.DropdownValue
	for _, dv := range f.items {
		if dv.Category == category && dv.Active {
			out = append(out, dv)
		}
	}
	return out, nil
}

func (f *fakeDropdownRepo) ListAll(_ context.Context) ([]*model.DropdownValue, error) {
	var out []*model.DropdownValue
	for _, dv := range f.items {
		out = append(out, dv)
	}
	return out, nil
}

func (f *fakeDropdownRepo) ListCategories(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, dv := range f.items {
		if !seen[dv.Category] {
			seen[dv.Category] = true
			out = append(out, dv.Category)
		}
	}
	return out, nil
}

func (f *fakeDropdownRepo) Update(_ context.Context, dv *model.DropdownValue) error {
	if _, ok := f.items[dv.ID]; !ok {
		return repository.ErrNotFound
	}
	f.items[dv.ID] = dv
	return nil
}

func (f *fakeDropdownRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// newDropdownFixture собирает сервис поверх репозитория с одним значением
// категории status.
func newDropdownFixture() (*DropdownService, *fakeDropdownRepo, *DropdownCache) {
	repo := &fakeDropdownRepo{
		items: map[string]*model.DropdownValue{
			"dv-1": {
				ID:        "dv-1",
				Category:  "status",
				Value:     "new",
				Label:     "Новая",
				SortOrder: 1,
				Active:    true,
			},
		},
	}
	cache := NewDropdownCache(16, time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDropdownService(repo, cache, logger), repo, cache
}

// TestDropdownUpdate_MutableFields проверяет, что обновление меняет подпись,
// порядок и активность, но не категорию и не машинное значение.
func TestDropdownUpdate_MutableFields(t *testing.T) {
	svc, repo, _ := newDropdownFixture()
	ctx := context.Background()

	label := "В работе"
	sort := 5
	active := false
	dv, err := svc.Update(ctx, "dv-1", &model.DropdownUpdate{
		Label:     &label,
		SortOrder: &sort,
		Active:    &active,
	}, "admin-sub")
	if err != nil {
		t.Fatalf("Ошибка обновления: %v", err)
	}

	if dv.Category != "status" || dv.Value != "new" {
		t.Errorf("Категория и значение не должны меняться, получено %q/%q",
			dv.Category, dv.Value)
	}
	if dv.Label != "В работе" || dv.SortOrder != 5 || dv.Active {
		t.Errorf("Изменяемые поля не применены: %+v", dv)
	}

	stored := repo.items["dv-1"]
	if stored.Label != "В работе" || stored.Active {
		t.Errorf("Изменения не сохранены в репозитории: %+v", stored)
	}
}

// TestDropdownUpdate_PartialBody проверяет, что отсутствующие в запросе
// поля сохраняют текущее значение.
func TestDropdownUpdate_PartialBody(t *testing.T) {
	svc, _, _ := newDropdownFixture()
	ctx := context.Background()

	active := false
	dv, err := svc.Update(ctx, "dv-1", &model.DropdownUpdate{Active: &active}, "admin-sub")
	if err != nil {
		t.Fatalf("Ошибка обновления: %v", err)
	}

	if dv.Label != "Новая" || dv.SortOrder != 1 {
		t.Errorf("Непереданные поля должны сохраняться: %+v", dv)
	}
	if dv.Active {
		t.Error("Признак активности не снят")
	}
}

// TestDropdownUpdate_InvalidatesCache проверяет сброс кэша категории
// после обновления.
func TestDropdownUpdate_InvalidatesCache(t *testing.T) {
	svc, _, cache := newDropdownFixture()
	ctx := context.Background()

	if _, err := svc.Values(ctx, "status"); err != nil {
		t.Fatalf("Ошибка прогрева кэша: %v", err)
	}
	if _, ok := cache.Get("status"); !ok {
		t.Fatal("Кэш не прогрет")
	}

	label := "Открыта"
	if _, err := svc.Update(ctx, "dv-1", &model.DropdownUpdate{Label: &label}, "admin-sub"); err != nil {
		t.Fatalf("Ошибка обновления: %v", err)
	}

	if _, ok := cache.Get("status"); ok {
		t.Error("Кэш категории не сброшен после обновления")
	}
}

// TestDropdownUpdate_Errors проверяет ошибочные случаи обновления.
func TestDropdownUpdate_Errors(t *testing.T) {
	svc, _, _ := newDropdownFixture()
	ctx := context.Background()

	if _, err := svc.Update(ctx, "missing", &model.DropdownUpdate{}, "admin-sub"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Для несуществующего id ожидался ErrNotFound, получено %v", err)
	}

	empty := ""
	if _, err := svc.Update(ctx, "dv-1", &model.DropdownUpdate{Label: &empty}, "admin-sub"); !errors.Is(err, ErrValidation) {
		t.Errorf("Для пустой подписи ожидался ErrValidation, получено %v", err)
	}
}
