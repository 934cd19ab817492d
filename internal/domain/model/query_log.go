package model

import "time"

// QueryLogEntry — запись журнала выполнения произвольных запросов.
// Хранится в таблице query_log. Журналируются и успешные,
// и завершившиеся ошибкой запросы.
type QueryLogEntry struct {
	// ID — UUID записи
	ID string
	// Subject — идентификатор администратора в IdP (sub)
	Subject string
	// QueryText — текст выполненного запроса
	QueryText string
	// RowCount — число строк в результате
	RowCount int64
	// DurationMs — длительность выполнения в миллисекундах
	DurationMs int64
	// Success — завершился ли запрос успешно
	Success bool
	// ErrorText — текст ошибки (пустая строка при успехе)
	ErrorText string
	// ExecutedAt — время выполнения
	ExecutedAt time.Time
}
