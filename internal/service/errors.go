// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrPrincipalExists — принципал с таким идентификатором уже есть.
	ErrPrincipalExists = errors.New("принципал с таким идентификатором уже существует")
	// ErrInvalidRole — некорректная роль.
	ErrInvalidRole = errors.New("некорректная роль: допустимые значения — admin, user")
	// ErrInvalidIdentifier — некорректный идентификатор принципала.
	ErrInvalidIdentifier = errors.New("некорректный идентификатор: ожидается непустой email")
	// ErrSelfDemotion — администратор понижает собственную роль.
	ErrSelfDemotion = errors.New("администратор не может понизить собственную роль")
	// ErrSelfDeletion — администратор удаляет собственную запись.
	ErrSelfDeletion = errors.New("администратор не может удалить собственную запись")
	// ErrInvalidObjectKey — некорректный ключ объекта.
	ErrInvalidObjectKey = errors.New("некорректный ключ объекта")
)
