// Пакет model — доменные модели Bucket Gate.
package model

import "time"

// Principal — запись allow-list: кому и с какой ролью разрешён доступ.
// Хранится в таблице principals.
type Principal struct {
	// ID — UUID записи
	ID string
	// Identifier — идентификатор вызывающего (email), уникален
	// без учёта регистра
	Identifier string
	// Role — роль (admin, user)
	Role string
	// RegisteredBy — кто завёл запись (identifier администратора или system)
	RegisteredBy string
	// RegisteredAt — время создания записи
	RegisteredAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
