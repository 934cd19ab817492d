// queryexec.go — сервис выполнения произвольных SQL-запросов администратором.
// Допускаются только запросы на чтение (SELECT, WITH), один оператор за раз.
// Второй барьер — транзакция READ ONLY: даже прошедший проверку запрос
// не сможет изменить данные. Результат стримится в CSV.
// Каждое выполнение (успешное и ошибочное) журналируется в query_log.
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tasktrack/internal/domain/model"
	"github.com/bigkaa/tasktrack/internal/repository"
)

// Prometheus-метрики выполнения запросов.
var (
	queryExecTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tt_admin_queries_total",
		Help: "Общее количество выполненных администраторами запросов (по статусу).",
	}, []string{"status"})

	queryExecDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tt_admin_query_duration_seconds",
		Help:    "Длительность выполнения административных запросов.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	queryExecRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tt_admin_query_rows",
		Help:    "Количество строк в результатах административных запросов.",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})
)

// QueryResult — итог выполнения запроса.
type QueryResult struct {
	// RowCount — число строк, записанных в CSV (без заголовка).
	RowCount int64
	// Truncated — true, если результат обрезан по лимиту строк.
	Truncated bool
	// Duration — длительность выполнения.
	Duration time.Duration
}

// QueryExecService — сервис выполнения произвольных запросов на чтение.
type QueryExecService struct {
	runner  *repository.TxRunner
	logRepo repository.QueryLogRepository
	maxRows int
	timeout time.Duration
	logger  *slog.Logger
}

// NewQueryExecService создаёт сервис выполнения запросов.
// maxRows — максимум строк в результате (TT_QUERY_MAX_ROWS).
// timeout — максимальная длительность запроса (TT_QUERY_TIMEOUT).
func NewQueryExecService(
	runner *repository.TxRunner,
	logRepo repository.QueryLogRepository,
	maxRows int,
	timeout time.Duration,
	logger *slog.Logger,
) *QueryExecService {
	return &QueryExecService{
		runner:  runner,
		logRepo: logRepo,
		maxRows: maxRows,
		timeout: timeout,
		logger:  logger.With(slog.String("service", "queryexec")),
	}
}

// ValidateReadOnlyQuery проверяет, что запрос — одиночный оператор чтения.
// Возвращает ErrForbiddenQuery или ErrValidation при нарушении.
func ValidateReadOnlyQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: пустой запрос", ErrValidation)
	}

	// Запрет нескольких операторов: точка с запятой допустима
	// только завершающая.
	trimmed = strings.TrimRight(trimmed, "; \t\r\n")
	if strings.ContainsRune(trimmed, ';') {
		return fmt.Errorf("%w: допускается только один оператор", ErrForbiddenQuery)
	}

	first := firstKeyword(trimmed)
	switch first {
	case "SELECT", "WITH":
		return nil
	}
	return ErrForbiddenQuery
}

// firstKeyword возвращает первое ключевое слово запроса в верхнем регистре.
// Пропускает ведущие SQL-комментарии обоих видов.
func firstKeyword(query string) string {
	s := query
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		default:
			fields := strings.Fields(s)
			if len(fields) == 0 {
				return ""
			}
			return strings.ToUpper(fields[0])
		}
	}
}

// ExecuteCSV выполняет запрос на чтение и стримит результат в CSV.
// Первая строка CSV — имена колонок результата.
// subject — администратор, выполняющий запрос (для журнала).
//
// Запрос выполняется в транзакции READ ONLY с таймаутом. Результат
// обрезается по maxRows (Truncated=true в этом случае).
func (s *QueryExecService) ExecuteCSV(ctx context.Context, subject, query string, w io.Writer) (*QueryResult, error) {
	if err := ValidateReadOnlyQuery(query); err != nil {
		s.audit(ctx, subject, query, 0, 0, err)
		queryExecTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result := &QueryResult{}

	err := s.runner.RunInReadOnlyTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		cw := csv.NewWriter(w)

		// Заголовок — имена колонок результата
		descs := rows.FieldDescriptions()
		header := make([]string, len(descs))
		for i, d := range descs {
			header[i] = d.Name
		}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("ошибка записи заголовка CSV: %w", err)
		}

		record := make([]string, len(descs))
		for rows.Next() {
			if result.RowCount >= int64(s.maxRows) {
				result.Truncated = true
				break
			}

			values, err := rows.Values()
			if err != nil {
				return fmt.Errorf("ошибка чтения строки результата: %w", err)
			}
			for i, v := range values {
				record[i] = formatCSVValue(v)
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("ошибка записи строки CSV: %w", err)
			}
			result.RowCount++
		}
		if err := rows.Err(); err != nil {
			return err
		}

		cw.Flush()
		return cw.Error()
	})

	result.Duration = time.Since(start)

	if err != nil {
		s.audit(ctx, subject, query, result.RowCount, result.Duration, err)
		queryExecTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.audit(ctx, subject, query, result.RowCount, result.Duration, nil)
	queryExecTotal.WithLabelValues("ok").Inc()
	queryExecDuration.Observe(result.Duration.Seconds())
	queryExecRows.Observe(float64(result.RowCount))

	s.logger.Info("Запрос выполнен",
		slog.String("subject", subject),
		slog.Int64("rows", result.RowCount),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// History возвращает записи журнала запросов с пагинацией.
func (s *QueryExecService) History(ctx context.Context, limit, offset int) ([]*model.QueryLogEntry, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.logRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения журнала запросов: %w", err)
	}
	total, err := s.logRepo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта журнала запросов: %w", err)
	}
	return entries, total, nil
}

// audit записывает выполнение запроса в журнал.
// Ошибка журналирования не прерывает основной поток — только логируется.
func (s *QueryExecService) audit(ctx context.Context, subject, query string, rows int64, duration time.Duration, execErr error) {
	entry := &model.QueryLogEntry{
		Subject:    subject,
		QueryText:  query,
		RowCount:   rows,
		DurationMs: duration.Milliseconds(),
		Success:    execErr == nil,
	}
	if execErr != nil {
		entry.ErrorText = execErr.Error()
	}

	// Журналируем вне транзакции запроса (read-only tx не позволит INSERT)
	// и вне таймаута самого запроса.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.logRepo.Insert(auditCtx, entry); err != nil {
		s.logger.Error("Ошибка записи в журнал запросов",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}

// formatCSVValue приводит значение колонки к строковому виду для CSV.
func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
