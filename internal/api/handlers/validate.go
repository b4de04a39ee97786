// validate.go — обработчик проверки пакета workitems по схеме задания.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
)

// validateRequest — JSON-вариант запроса проверки.
type validateRequest struct {
	Schema json.RawMessage `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// ValidateData — POST /api/v1/validate.
// Принимает схему задания и документ с данными либо как multipart form
// (части schema и data), либо как JSON-объект с полями schema и data.
// Дефекты содержимого отражаются в отчёте со статусом 200; статус 400
// возвращается только для структурно некорректного запроса.
func (h *APIHandler) ValidateData(w http.ResponseWriter, r *http.Request) {
	schemaDoc, dataDoc, err := readValidatePayload(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	result := h.validation.Validate(schemaDoc, dataDoc)
	writeJSON(w, http.StatusOK, result)
}

// readValidatePayload извлекает схему и данные из запроса.
func readValidatePayload(r *http.Request) (schemaDoc, dataDoc []byte, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, nil, fmt.Errorf("Ошибка парсинга multipart: %s", err.Error())
		}
		schemaDoc, err = formFileBytes(r, "schema")
		if err != nil {
			return nil, nil, err
		}
		dataDoc, err = formFileBytes(r, "data")
		if err != nil {
			return nil, nil, err
		}
		return schemaDoc, dataDoc, nil
	}

	var req validateRequest
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		return nil, nil, errors.New("Некорректный JSON в теле запроса")
	}
	if len(req.Schema) == 0 || len(req.Data) == 0 {
		return nil, nil, errors.New("Поля 'schema' и 'data' обязательны")
	}
	return req.Schema, req.Data, nil
}

// formFileBytes читает содержимое части multipart form целиком.
func formFileBytes(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("Поле '%s' обязательно", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("Чтение поля '%s': %s", field, err.Error())
	}
	return data, nil
}
