package model

import (
	"io"
	"time"
)

// ObjectInfo — объект в бакете.
// Не хранится в БД — формируется из ответа S3.
type ObjectInfo struct {
	// Key — полный ключ объекта
	Key string
	// Size — размер в байтах
	Size int64
	// LastModified — время последнего изменения
	LastModified time.Time
	// ETag — ETag объекта из S3
	ETag string
}

// ObjectListing — результат листинга по префиксу: объекты и «папки»
// (общие префиксы при разделителе "/").
type ObjectListing struct {
	// Prefix — префикс, по которому выполнялся листинг
	Prefix string
	// Objects — объекты на этом уровне
	Objects []ObjectInfo
	// Folders — дочерние префиксы (папки)
	Folders []string
	// Truncated — true, если листинг обрезан по лимиту
	Truncated bool
}

// ObjectContent — содержимое объекта для проксируемого скачивания.
// Body закрывает вызывающая сторона.
type ObjectContent struct {
	// Key — ключ объекта
	Key string
	// Size — размер в байтах
	Size int64
	// ContentType — MIME-тип
	ContentType string
	// Body — поток содержимого
	Body io.ReadCloser
}
