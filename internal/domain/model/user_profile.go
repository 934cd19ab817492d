// Пакет model — доменные модели TaskTrack.
package model

import "time"

// UserProfile — профиль пользователя с локальными дополнениями.
// Аутентификация выполняется в IdP, профиль хранит только
// редактируемые пользователем атрибуты и локальное дополнение роли.
type UserProfile struct {
	// ID — UUID записи
	ID string
	// Subject — идентификатор пользователя в IdP (sub)
	Subject string
	// Username — имя пользователя в IdP
	Username string
	// Email — адрес электронной почты
	Email string
	// FullName — полное имя
	FullName string
	// Department — подразделение
	Department string
	// Phone — контактный телефон
	Phone string
	// RoleOverride — локальное дополнение роли (admin, user, nil если нет)
	RoleOverride *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ProfileUpdate — редактируемые пользователем поля профиля.
// Остальные поля (subject, username, роль) изменению не подлежат.
type ProfileUpdate struct {
	Email      string
	FullName   string
	Department string
	Phone      string
}
