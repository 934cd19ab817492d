// query.go — страница SQL-консоли администратора.
// Форма отправляет запрос на сервер; результат выгружается как CSV-файл,
// ошибки показываются на странице вместе с историей запросов.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/tasktrack/internal/service"
	"github.com/bigkaa/tasktrack/internal/ui/pages"
)

// QueryHandler — обработчики SQL-консоли.
type QueryHandler struct {
	queryExec *service.QueryExecService
	renderer  *pages.Renderer
	logger    *slog.Logger
}

// NewQueryHandler создаёт новый QueryHandler.
func NewQueryHandler(
	queryExec *service.QueryExecService,
	renderer *pages.Renderer,
	logger *slog.Logger,
) *QueryHandler {
	return &QueryHandler{
		queryExec: queryExec,
		renderer:  renderer,
		logger:    logger.With(slog.String("component", "ui.query")),
	}
}

// HandleQueryPage — GET /ui/query (только admin)
// Отображает форму запроса и историю выполнения.
func (h *QueryHandler) HandleQueryPage(w http.ResponseWriter, r *http.Request) {
	session := requireAdmin(w, r)
	if session == nil {
		return
	}

	history, _, err := h.queryExec.History(r.Context(), 20, 0)
	if err != nil {
		h.logger.Error("Ошибка получения истории запросов",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	data := pages.QueryData{
		BaseData: baseData(session, "query"),
		History:  history,
		Error:    r.URL.Query().Get("error"),
	}

	if err := h.renderer.Render(w, "query", data); err != nil {
		h.logger.Error("Ошибка рендеринга SQL-консоли",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}

// HandleExecuteQuery — POST /ui/query (только admin)
// Выполняет запрос из формы. Успех — CSV-вложение,
// ошибка — возврат на страницу консоли с сообщением.
func (h *QueryHandler) HandleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	session := requireAdmin(w, r)
	if session == nil {
		return
	}

	query := r.FormValue("query")
	if query == "" {
		http.Redirect(w, r, "/ui/query?error="+url.QueryEscape("Пустой запрос"), http.StatusSeeOther)
		return
	}

	filename := fmt.Sprintf("query-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	// Отклонённый запрос не пишет в ответ ни байта, поэтому заголовки
	// можно сбросить и вернуть страницу консоли с сообщением.
	cw := &countingResponseWriter{ResponseWriter: w}
	if _, err := h.queryExec.ExecuteCSV(r.Context(), session.Subject, query, cw); err != nil {
		h.logger.Warn("Запрос из SQL-консоли завершился ошибкой",
			slog.String("subject", session.Subject),
			slog.String("error", err.Error()),
		)
		if cw.written > 0 {
			// Часть CSV уже ушла клиенту, статус изменить нельзя.
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Del("Content-Disposition")
		if errors.Is(err, service.ErrForbiddenQuery) || errors.Is(err, service.ErrValidation) {
			http.Redirect(w, r, "/ui/query?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
			return
		}
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
	}
}

// countingResponseWriter учитывает записанные в ответ байты,
// чтобы при ошибке понять, можно ли ещё изменить статус.
type countingResponseWriter struct {
	http.ResponseWriter
	written int64
}

func (cw *countingResponseWriter) Write(p []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(p)
	cw.written += int64(n)
	return n, err
}
