// errors.go — сигнальные ошибки сервисного слоя. Обработчики API
// сопоставляют их с HTTP-статусами через errors.Is.
package service

import "errors"

var (
	ErrNotFound    = errors.New("ресурс не найден")
	ErrConflict    = errors.New("конфликт — ресурс уже существует")
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — admin, user")
	ErrValidation  = errors.New("ошибка валидации")
	// ErrForbiddenQuery возвращает инструмент произвольных запросов
	// на всё, что не чтение.
	ErrForbiddenQuery = errors.New("разрешены только запросы на чтение (SELECT, WITH)")
	// ErrNotOwner — попытка менять чужую активность без прав администратора.
	ErrNotOwner = errors.New("активность принадлежит другому пользователю")
)
