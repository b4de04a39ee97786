// activity.go — обработчик журнала активности /api/v1/activity.
// Чтение журнала доступно только администраторам (RequireAdmin на
// уровне маршрутизатора).
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
)

// activityItem — запись журнала активности в ответе API.
type activityItem struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principalId"`
	Action      string    `json:"action"`
	ObjectKey   string    `json:"objectKey"`
	ObjectSize  int64     `json:"objectSize"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// activityListResponse — ответ списка записей журнала.
type activityListResponse struct {
	Items   []activityItem `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"hasMore"`
}

// ListActivity — GET /api/v1/activity.
// Возвращает записи журнала в порядке убывания времени.
// Пагинация: limit, offset. Доступ: admin.
func (h *APIHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationDefaults(
		r.URL.Query().Get("limit"),
		r.URL.Query().Get("offset"),
	)

	records, total, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка чтения журнала активности", "error", err)
		apierrors.InternalError(w, "Ошибка чтения журнала активности")
		return
	}

	items := make([]activityItem, len(records))
	for i, rec := range records {
		items[i] = mapActivityRecord(rec)
	}

	writeJSON(w, http.StatusOK, activityListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// mapActivityRecord конвертирует доменную модель в API-формат.
func mapActivityRecord(rec *model.AuditRecord) activityItem {
	return activityItem{
		ID:          rec.ID,
		PrincipalID: rec.PrincipalID,
		Action:      rec.Action,
		ObjectKey:   rec.ObjectKey,
		ObjectSize:  rec.ObjectSize,
		Outcome:     rec.Outcome,
		Detail:      rec.Detail,
		CreatedAt:   rec.CreatedAt,
	}
}
