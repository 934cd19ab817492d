package model

import "time"

// DropdownValue — справочное значение выпадающего списка.
// Хранится в таблице dropdown_values.
// Пара (Category, Value) уникальна.
type DropdownValue struct {
	// ID — UUID записи
	ID string
	// Category — категория списка (status, priority, category, ...)
	Category string
	// Value — машинное значение
	Value string
	// Label — отображаемый текст
	Label string
	// SortOrder — порядок сортировки внутри категории
	SortOrder int
	// Active — участвует ли значение в выдаче списков
	Active bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// DropdownUpdate — изменяемые поля справочного значения.
// Категория и машинное значение фиксируются при создании:
// на них ссылаются записи активностей. nil-поле остаётся без изменений.
type DropdownUpdate struct {
	Label     *string
	SortOrder *int
	Active    *bool
}
