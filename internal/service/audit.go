// audit.go — журнал активности: fire-and-forget запись исходов операций
// с хранилищем и чтение журнала для администраторов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/bucketgate/internal/domain/model"
	"github.com/arturkryukov/bucketgate/internal/repository"
)

// auditDropsTotal — счётчик потерянных записей журнала.
var auditDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bg_audit_drops_total",
	Help: "Общее количество потерянных записей журнала активности.",
})

// auditWriteTimeout — таймаут фоновой записи журнала.
const auditWriteTimeout = 5 * time.Second

// Лимиты постраничного чтения журнала.
const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// AuditService — сервис журнала активности.
// Запись не блокирует и не проваливает основную операцию: выполняется в
// отдельной горутине с собственным таймаутом, сбой фиксируется в логе
// и метрике bg_audit_drops_total.
type AuditService struct {
	repo      repository.AuditRepository
	retention int
	logger    *slog.Logger
}

// NewAuditService создаёт сервис журнала.
// retention — количество последних записей, сохраняемых в журнале
// (BG_AUDIT_RETENTION); старые вытесняются при каждом добавлении.
func NewAuditService(repo repository.AuditRepository, retention int, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:      repo,
		retention: retention,
		logger:    logger.With(slog.String("component", "audit_service")),
	}
}

// Record добавляет запись журнала в режиме fire-and-forget.
// Выполняется на отдельной горутине с контекстом, отвязанным от запроса:
// медленная или неудачная запись никогда не задерживает ответ вызывающему.
func (s *AuditService) Record(principalID, action, objectKey string, objectSize int64, outcome, detail string) {
	rec := &model.AuditRecord{
		PrincipalID: principalID,
		Action:      action,
		ObjectKey:   objectKey,
		ObjectSize:  objectSize,
		Outcome:     outcome,
		Detail:      detail,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		if err := s.repo.AppendAndPrune(ctx, rec, s.retention); err != nil {
			auditDropsTotal.Inc()
			s.logger.Warn("Запись журнала активности потеряна",
				slog.String("principal_id", principalID),
				slog.String("action", action),
				slog.String("object_key", objectKey),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// List возвращает записи журнала в порядке убывания времени и общее количество.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*model.AuditRecord, int, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("чтение журнала активности: %w", err)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт записей журнала: %w", err)
	}

	return records, total, nil
}
