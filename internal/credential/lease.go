// Пакет credential — жизненный цикл учётных данных S3: выпуск временных
// учётных данных через assume role с откатом по длительности сессии и
// кэш единственной аренды клиента с реактивной инвалидацией.
package credential

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Lease — аренда клиента хранилища: сам клиент и метаданные истечения.
// Секретный материал в аренде не хранится, только готовые клиенты.
// В процессе существует не более одной активной аренды; при устаревании
// аренда заменяется целиком, никогда не мутирует.
type Lease struct {
	// Client — клиент S3, привязанный к учётным данным аренды
	Client *s3.Client
	// Presign — presign-клиент на тех же учётных данных
	Presign *s3.PresignClient
	// IssuedAt — время выпуска аренды
	IssuedAt time.Time
	// ExpiresAt — время истечения; nil — долгоживущие ключи, не истекает
	ExpiresAt *time.Time
	// DurationSeconds — длительность сессии, с которой удался обмен
	// (0 для долгоживущих ключей)
	DurationSeconds int32
}

// Fresh сообщает, действительна ли аренда на момент now.
// Аренда без времени истечения действительна всегда.
func (l *Lease) Fresh(now time.Time) bool {
	if l.ExpiresAt == nil {
		return true
	}
	return now.Before(*l.ExpiresAt)
}
