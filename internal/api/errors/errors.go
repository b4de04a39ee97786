// Пакет errors — конструкторы стандартных ошибок в формате Bucket Gate.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeMissingIdentity        = "MISSING_IDENTITY"
	CodeNotAuthorized          = "NOT_AUTHORIZED"
	CodeAdminRequired          = "ADMIN_REQUIRED"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeCredentialProvisioning = "CREDENTIAL_PROVISIONING"
	CodeUpstreamTimeout        = "UPSTREAM_TIMEOUT"
	CodeInternalError          = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Bucket Gate.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// MissingIdentity — 401 заголовок идентичности отсутствует или пуст.
func MissingIdentity(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeMissingIdentity, message)
}

// NotAuthorized — 403 вызывающего нет в allow-list.
func NotAuthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeNotAuthorized, message)
}

// AdminRequired — 403 операция требует роли администратора.
func AdminRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeAdminRequired, message)
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 конфликт (дублирующийся принципал или самоблокировка).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// CredentialProvisioning — 500 не удалось выпустить временные учётные данные.
func CredentialProvisioning(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeCredentialProvisioning, message)
}

// UpstreamTimeout — 504 внешний сервис не ответил вовремя.
func UpstreamTimeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGatewayTimeout, CodeUpstreamTimeout, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
