package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// fakeActivityRepo — in-memory репозиторий активностей для тестов.
type fakeActivityRepo struct {
	items []*model.Activity
}

func (f *fakeActivityRepo) Create(_ context.Context, a *model.Activity) error {
	f.items = append(f.items, a)
	return nil
}

func (f *fakeActivityRepo) GetByID(_ context.Context, id string) (*model.Activity, error) {
	for _, a := range f.items {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeActivityRepo) matches(a *model.Activity, filter *model.ActivityFilter) bool {
	if filter.Subject != "" && a.Subject != filter.Subject {
		return false
	}
	if filter.Status != "" && a.Status != filter.Status {
		return false
	}
	return true
}

func (f *fakeActivityRepo) List(_ context.Context, filter *model.ActivityFilter) ([]*model.Activity, error) {
	var out []*model.Activity
	for _, a := range f.items {
		if f.matches(a, filter) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivityRepo) Count(_ context.Context, filter *model.ActivityFilter) (int, error) {
	list, _ := f.List(context.Background(), filter)
	return len(list), nil
}

func (f *fakeActivityRepo) Update(_ context.Context, a *model.Activity) error {
	for i, cur := range f.items {
		if cur.ID == a.ID {
			f.items[i] = a
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeActivityRepo) Delete(_ context.Context, id string) error {
	for i, a := range f.items {
		if a.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// newActivityFixture собирает сервис поверх репозитория с двумя записями
// разных владельцев.
func newActivityFixture() (*ActivityService, *fakeActivityRepo) {
	repo := &fakeActivityRepo{
		items: []*model.Activity{
			{ID: "a-1", Subject: "user-ivanov", Title: "Ревью MR", Status: "new"},
			{ID: "a-2", Subject: "user-petrov", Title: "Настройка CI", Status: "done"},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewActivityService(repo, nil, logger), repo
}

// TestActivityList_ReaderScope проверяет сужение выборки по читателю:
// пользователь видит только своё, администратор и сервисная учётка
// со scope tasks:read — всё.
func TestActivityList_ReaderScope(t *testing.T) {
	svc, _ := newActivityFixture()
	ctx := context.Background()

	tests := []struct {
		name   string
		reader Reader
		want   int
	}{
		{"пользователь видит только свои записи",
			Reader{Subject: "user-ivanov", Role: rbac.RoleUser}, 1},
		{"администратор видит все записи",
			Reader{Subject: "admin-sub", Role: rbac.RoleAdmin}, 2},
		{"сервисная учётка читает все записи",
			Reader{Subject: "sa-client-uuid", ReadAll: true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := svc.List(ctx, &model.ActivityFilter{}, tt.reader)
			if err != nil {
				t.Fatalf("List() вернул ошибку: %v", err)
			}
			if len(list) != tt.want || total != tt.want {
				t.Errorf("List() вернул %d записей (total=%d), ожидалось %d",
					len(list), total, tt.want)
			}
		})
	}
}

// TestActivityGet_ReaderScope проверяет доступ к чужой записи.
func TestActivityGet_ReaderScope(t *testing.T) {
	svc, _ := newActivityFixture()
	ctx := context.Background()

	// Чужая запись для обычного пользователя
	_, err := svc.Get(ctx, "a-2", Reader{Subject: "user-ivanov", Role: rbac.RoleUser})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Get() чужой записи: err = %v, ожидался ErrNotOwner", err)
	}

	// Сервисная учётка читает любую запись
	a, err := svc.Get(ctx, "a-2", Reader{Subject: "sa-client-uuid", ReadAll: true})
	if err != nil {
		t.Fatalf("Get() для сервисной учётки вернул ошибку: %v", err)
	}
	if a.Subject != "user-petrov" {
		t.Errorf("Subject = %q, ожидался user-petrov", a.Subject)
	}

	// Администратор читает любую запись
	if _, err := svc.Get(ctx, "a-1", Reader{Subject: "other", Role: rbac.RoleAdmin}); err != nil {
		t.Errorf("Get() для администратора вернул ошибку: %v", err)
	}

	// Несуществующая запись
	if _, err := svc.Get(ctx, "missing", Reader{Subject: "user-ivanov"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() несуществующей записи: err = %v, ожидался ErrNotFound", err)
	}
}
