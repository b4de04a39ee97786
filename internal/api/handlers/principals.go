// principals.go — обработчики /api/v1/principals endpoints.
// Управление allow-list: список, регистрация, смена роли, удаление.
// Мутации защищены RequireAdmin на уровне маршрутизатора.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
	"github.com/arturkryukov/bucketgate/internal/service"
)

// principalItem — принципал в ответах API.
type principalItem struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	Role         string    `json:"role"`
	RegisteredBy string    `json:"registeredBy"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// principalListResponse — ответ списка принципалов.
type principalListResponse struct {
	Items []principalItem `json:"items"`
	Total int             `json:"total"`
}

// createPrincipalRequest — тело запроса регистрации принципала.
type createPrincipalRequest struct {
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

// updatePrincipalRequest — тело запроса смены роли.
type updatePrincipalRequest struct {
	Role string `json:"role"`
}

// ListPrincipals — GET /api/v1/principals.
// Возвращает полный allow-list. Доступ: любой разрешённый вызывающий.
func (h *APIHandler) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := h.principals.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка принципалов", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка принципалов")
		return
	}

	items := make([]principalItem, len(principals))
	for i, p := range principals {
		items[i] = mapPrincipal(p)
	}

	writeJSON(w, http.StatusOK, principalListResponse{
		Items: items,
		Total: len(items),
	})
}

// CreatePrincipal — POST /api/v1/principals.
// Регистрирует нового принципала в allow-list. Доступ: admin.
func (h *APIHandler) CreatePrincipal(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	var req createPrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	principal, err := h.principals.Create(r.Context(), actor, req.Identifier, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidIdentifier), errors.Is(err, service.ErrInvalidRole):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrPrincipalExists):
			apierrors.Conflict(w, err.Error())
		default:
			h.logger.Error("Ошибка регистрации принципала", "identifier", req.Identifier, "error", err)
			apierrors.InternalError(w, "Ошибка регистрации принципала")
		}
		return
	}

	writeJSON(w, http.StatusCreated, mapPrincipal(principal))
}

// UpdatePrincipal — PUT /api/v1/principals/{id}.
// Меняет роль принципала. Доступ: admin.
func (h *APIHandler) UpdatePrincipal(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор принципала")
		return
	}

	var req updatePrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	principal, err := h.principals.UpdateRole(r.Context(), actor, id, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrSelfDemotion):
			apierrors.Conflict(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Принципал не найден")
		default:
			h.logger.Error("Ошибка смены роли принципала", "principal_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка смены роли принципала")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapPrincipal(principal))
}

// DeletePrincipal — DELETE /api/v1/principals/{id}.
// Удаляет принципала из allow-list. Доступ: admin.
func (h *APIHandler) DeletePrincipal(w http.ResponseWriter, r *http.Request) {
	actor := middleware.PrincipalFromContext(r.Context())

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор принципала")
		return
	}

	if err := h.principals.Delete(r.Context(), actor, id); err != nil {
		switch {
		case errors.Is(err, service.ErrSelfDeletion):
			apierrors.Conflict(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Принципал не найден")
		default:
			h.logger.Error("Ошибка удаления принципала", "principal_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка удаления принципала")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// mapPrincipal конвертирует доменную модель в API-формат.
func mapPrincipal(p *model.Principal) principalItem {
	return principalItem{
		ID:           p.ID,
		Identifier:   p.Identifier,
		Role:         p.Role,
		RegisteredBy: p.RegisteredBy,
		RegisteredAt: p.RegisteredAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
