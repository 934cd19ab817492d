// Пакет pages — серверный рендеринг HTML-страниц веб-интерфейса TaskTrack.
// Шаблоны встраиваются в бинарник через //go:embed; каждая страница
// собирается из базового layout и собственного шаблона.
package pages

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/bigkaa/tasktrack/internal/domain/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// pageNames — страницы, собираемые поверх базового layout.
var pageNames = []string{
	"dashboard",
	"dropdowns",
	"query",
	"profile_edit",
	"access_denied",
	"rate_limit",
}

// Renderer — рендерер HTML-страниц.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer парсит встроенные шаблоны. Ошибка парсинга — фатальная,
// обнаруживается при старте приложения.
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templatesFS,
			"templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга шаблона %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render отображает страницу name с данными data.
func (r *Renderer) Render(w http.ResponseWriter, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("неизвестная страница: %s", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// BaseData — общие данные layout: текущий пользователь и активный раздел.
type BaseData struct {
	Username   string
	Role       string
	IsAdmin    bool
	ActiveMenu string
}

// DashboardData — данные страницы списка задач.
type DashboardData struct {
	BaseData
	Activities []*model.Activity
	Total      int
	Statuses   []*model.DropdownValue
	Categories []*model.DropdownValue
	Priorities []*model.DropdownValue
}

// DropdownsData — данные страницы справочников.
type DropdownsData struct {
	BaseData
	Values []*model.DropdownValue
	// Error — сообщение об ошибке последней операции (опционально).
	Error string
}

// QueryData — данные страницы SQL-консоли администратора.
type QueryData struct {
	BaseData
	History []*model.QueryLogEntry
	// Error — сообщение об ошибке последнего запроса (опционально).
	Error string
}

// ProfileEditData — данные страницы редактирования профиля.
type ProfileEditData struct {
	BaseData
	Profile *model.UserProfile
	// Saved — профиль успешно сохранён.
	Saved bool
	// Error — сообщение об ошибке валидации (опционально).
	Error string
}

// AccessDeniedData — данные страницы отказа в доступе.
type AccessDeniedData struct {
	BaseData
	// Reason — причина отказа (опционально).
	Reason string
}

// RateLimitData — данные страницы превышения лимита запросов.
type RateLimitData struct {
	BaseData
}
