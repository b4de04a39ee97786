package model

import "time"

// Действия, фиксируемые в журнале активности.
const (
	ActionUpload   = "upload"
	ActionDownload = "download"
	ActionDelete   = "delete"
)

// Исходы операции с хранилищем.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditRecord — запись журнала активности: кто, что и с каким объектом
// сделал. Хранится в таблице audit_records, только добавление.
type AuditRecord struct {
	// ID — UUID записи
	ID string
	// PrincipalID — идентификатор принципала, выполнившего действие
	PrincipalID string
	// Action — действие (upload, download, delete)
	Action string
	// ObjectKey — ключ объекта в бакете
	ObjectKey string
	// ObjectSize — размер объекта в байтах (0, если неизвестен)
	ObjectSize int64
	// Outcome — исход (success, failure)
	Outcome string
	// Detail — свободный текст: сообщение об ошибке или уточнение
	Detail string
	// CreatedAt — время записи
	CreatedAt time.Time
}
