// handler.go — основной обработчик API Bucket Gate.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arturkryukov/bucketgate/internal/credential"
	"github.com/arturkryukov/bucketgate/internal/service"
)

// APIHandler — основной обработчик API Bucket Gate.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health      *HealthHandler
	principals  *service.PrincipalService
	storage     *service.StorageService
	audit       *service.AuditService
	validation  *service.ValidationService
	credentials *credential.Cache
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	principals *service.PrincipalService,
	storage *service.StorageService,
	audit *service.AuditService,
	validation *service.ValidationService,
	credentials *credential.Cache,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		principals:  principals,
		storage:     storage,
		audit:       audit,
		validation:  validation,
		credentials: credentials,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации из строки запроса.
// Возвращает корректные limit и offset.
func paginationDefaults(limitStr, offsetStr string) (int, int) {
	l := 50
	o := 0

	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			l = v
		}
	}
	if l < 1 {
		l = 50
	}
	if l > 500 {
		l = 500
	}

	if offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil {
			o = v
		}
	}
	if o < 0 {
		o = 0
	}

	return l, o
}
