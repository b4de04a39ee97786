// credentials.go — обработчик принудительного перевыпуска учётных данных.
// Возвращает только метаданные истечения, никогда — секретный материал.
package handlers

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
	"github.com/arturkryukov/bucketgate/internal/credential"
)

// credentialStatusResponse — метаданные текущей аренды учётных данных.
type credentialStatusResponse struct {
	IssuedAt        time.Time  `json:"issuedAt"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	DurationSeconds int32      `json:"durationSeconds"`
}

// RefreshCredentials — POST /api/v1/credentials/refresh.
// Принудительно сбрасывает текущую аренду и выпускает новую.
// Доступ: admin.
func (h *APIHandler) RefreshCredentials(w http.ResponseWriter, r *http.Request) {
	h.credentials.Invalidate("manual_refresh")

	lease, err := h.credentials.EnsureFresh(r.Context())
	if err != nil {
		if errors.Is(err, credential.ErrUpstreamTimeout) {
			apierrors.UpstreamTimeout(w, "Сервис выпуска учётных данных не ответил вовремя")
			return
		}
		h.logger.Error("Ошибка перевыпуска учётных данных", "error", err)
		apierrors.CredentialProvisioning(w, "Не удалось выпустить учётные данные хранилища")
		return
	}

	writeJSON(w, http.StatusOK, credentialStatusResponse{
		IssuedAt:        lease.IssuedAt,
		ExpiresAt:       lease.ExpiresAt,
		DurationSeconds: lease.DurationSeconds,
	})
}
