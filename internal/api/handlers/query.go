// query.go — обработчики инструмента произвольных SQL-запросов администратора.
//
// Эндпоинт выполнения отдаёт результат как CSV-вложение и, в отличие от
// остального API, сообщает об ошибках обычным текстом, а не JSON-конвертом:
// ответ предназначен для сохранения в файл, и JSON в нём неуместен.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/tasktrack/internal/api/errors"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/service"
)

// QueryExecutor — операции SQL-консоли, используемые обработчиками API.
// Реализуется service.QueryExecService.
type QueryExecutor interface {
	ExecuteCSV(ctx context.Context, subject, query string, w io.Writer) (*service.QueryResult, error)
	History(ctx context.Context, limit, offset int) ([]*model.QueryLogEntry, int, error)
}

// executeQueryRequest — тело JSON-запроса на выполнение SQL.
type executeQueryRequest struct {
	Query string `json:"query"`
}

// countingWriter учитывает записанные байты: если CSV уже начал
// передаваться, статус ответа менять поздно.
type countingWriter struct {
	w http.ResponseWriter
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// ExecuteQuery выполняет произвольный запрос на чтение и отдаёт результат CSV.
// Только для администраторов.
// POST /api/admin/query/execute
func (h *APIHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		http.Error(w, "отсутствуют данные аутентификации", http.StatusUnauthorized)
		return
	}

	query, err := queryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("query-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := &countingWriter{w: w}
	result, err := h.queryExec.ExecuteCSV(r.Context(), subject, query, cw)
	if err != nil {
		// Пока ни байта CSV не ушло, можно вернуть нормальную текстовую ошибку.
		if cw.n == 0 {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Del("Content-Disposition")
			if errors.Is(err, service.ErrForbiddenQuery) || errors.Is(err, service.ErrValidation) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			// Текст ошибки СУБД наружу не отдаётся: он уже записан
			// в журнал запросов.
			h.logger.Error("Ошибка выполнения запроса",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			http.Error(w, "внутренняя ошибка выполнения запроса", http.StatusInternalServerError)
			return
		}
		h.logger.Error("Ошибка выполнения запроса после начала передачи CSV",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Info("Результат запроса отдан",
		slog.String("subject", subject),
		slog.Int64("rows", result.RowCount),
		slog.Bool("truncated", result.Truncated))
}

// queryFromRequest извлекает текст запроса из JSON-тела или из формы.
// UI-страница инструмента отправляет обычную форму, API-клиенты — JSON.
func queryFromRequest(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req executeQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("некорректное тело запроса")
		}
		if strings.TrimSpace(req.Query) == "" {
			return "", errors.New("пустой запрос")
		}
		return req.Query, nil
	}

	query := r.FormValue("query")
	if strings.TrimSpace(query) == "" {
		return "", errors.New("пустой запрос")
	}
	return query, nil
}

// queryLogResponse — запись журнала запросов в API.
type queryLogResponse struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	QueryText  string `json:"query_text"`
	RowCount   int64  `json:"row_count"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	ErrorText  string `json:"error_text,omitempty"`
	ExecutedAt string `json:"executed_at"`
}

// QueryHistory возвращает журнал выполненных запросов. Только для администраторов.
// GET /api/admin/query/history
func (h *APIHandler) QueryHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationFromQuery(r.URL.Query())

	entries, total, err := h.queryExec.History(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения журнала запросов",
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	items := make([]queryLogResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, queryLogResponse{
			ID:         e.ID,
			Subject:    e.Subject,
			QueryText:  e.QueryText,
			RowCount:   e.RowCount,
			DurationMs: e.DurationMs,
			Success:    e.Success,
			ErrorText:  e.ErrorText,
			ExecutedAt: e.ExecutedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
