package model

import "time"

// Activity — активность по задаче.
// Хранится в таблице activities.
type Activity struct {
	// ID — UUID записи
	ID string
	// Subject — идентификатор владельца в IdP (sub)
	Subject string
	// Title — краткое название
	Title string
	// Description — развёрнутое описание
	Description string
	// Category — значение из справочника category
	Category string
	// Status — значение из справочника status
	Status string
	// Priority — значение из справочника priority
	Priority string
	// DueDate — срок выполнения (nil — не задан)
	DueDate *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ActivityFilter — параметры выборки активностей.
type ActivityFilter struct {
	// Subject — владелец; пустая строка означает все (только для admin)
	Subject string
	// Status — фильтр по статусу; пустая строка — без фильтра
	Status string
	// Limit — максимум записей в ответе
	Limit int
	// Offset — смещение выборки
	Offset int
}
