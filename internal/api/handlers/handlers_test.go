package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/arturkryukov/bucketgate/internal/service"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// staticChecker — проверка готовности с фиксированным результатом.
type staticChecker struct {
	status  string
	message string
}

func (c *staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("ожидался статус ok, получен %q", resp.Status)
	}
	if resp.Service != "bucketgate" {
		t.Errorf("ожидался service bucketgate, получен %q", resp.Service)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg         ReadinessChecker
		cred       ReadinessChecker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "обе зависимости ok",
			pg:         &staticChecker{status: "ok"},
			cred:       &staticChecker{status: "ok"},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "слот учётных данных degraded",
			pg:         &staticChecker{status: "ok"},
			cred:       &staticChecker{status: "degraded", message: "аренда ещё не выпущена"},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "PostgreSQL недоступен",
			pg:         &staticChecker{status: "fail", message: "нет соединения"},
			cred:       &staticChecker{status: "ok"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
		{
			name:       "nil зависимость трактуется как fail",
			pg:         nil,
			cred:       &staticChecker{status: "ok"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.cred)

			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("ожидался статус %d, получен %d", tt.wantCode, rec.Code)
			}

			var resp struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("ошибка разбора ответа: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("ожидался статус %q, получен %q", tt.wantStatus, resp.Status)
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"все ok", []string{"ok", "ok"}, "ok"},
		{"одна degraded", []string{"ok", "degraded"}, "degraded"},
		{"одна fail", []string{"degraded", "fail"}, "fail"},
		{"fail важнее degraded", []string{"fail", "degraded", "ok"}, "fail"},
		{"пустой список", nil, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overallStatus(tt.statuses...); got != tt.want {
				t.Errorf("ожидался %q, получен %q", tt.want, got)
			}
		})
	}
}

func TestPaginationDefaults(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		offset     string
		wantLimit  int
		wantOffset int
	}{
		{"пустые параметры", "", "", 50, 0},
		{"обычные значения", "20", "40", 20, 40},
		{"limit выше максимума", "9999", "0", 500, 0},
		{"отрицательный limit", "-1", "0", 50, 0},
		{"отрицательный offset", "10", "-5", 10, 0},
		{"нечисловые значения", "abc", "def", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := paginationDefaults(tt.limit, tt.offset)
			if limit != tt.wantLimit {
				t.Errorf("ожидался limit %d, получен %d", tt.wantLimit, limit)
			}
			if offset != tt.wantOffset {
				t.Errorf("ожидался offset %d, получен %d", tt.wantOffset, offset)
			}
		})
	}
}

// newValidateHandler создаёт APIHandler, достаточный для /api/v1/validate.
func newValidateHandler() *APIHandler {
	logger := testLogger()
	return NewAPIHandler(nil, nil, nil, nil, service.NewValidationService(logger), nil, logger)
}

const validateSchemaDoc = `{
  "outputDataDefinition": {
    "outputSchema": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"}
      }
    }
  }
}`

func TestValidateData_JSON(t *testing.T) {
	h := newValidateHandler()

	body := `{"schema": ` + validateSchemaDoc + `, "data": {"workitems": [{"name": "a"}, {"missing": true}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ValidateData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var result service.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if result.IsValid {
		t.Error("ожидался невалидный результат")
	}
	if result.ItemCount != 2 || result.ValidItems != 1 || result.InvalidItems != 1 {
		t.Errorf("неверные счётчики: %d/%d/%d", result.ItemCount, result.ValidItems, result.InvalidItems)
	}
}

func TestValidateData_Multipart(t *testing.T) {
	h := newValidateHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	schemaPart, err := mw.CreateFormFile("schema", "schema.json")
	if err != nil {
		t.Fatalf("ошибка создания части schema: %v", err)
	}
	if _, err := schemaPart.Write([]byte(validateSchemaDoc)); err != nil {
		t.Fatalf("ошибка записи части schema: %v", err)
	}
	dataPart, err := mw.CreateFormFile("data", "data.json")
	if err != nil {
		t.Fatalf("ошибка создания части data: %v", err)
	}
	if _, err := dataPart.Write([]byte(`{"workitems": [{"name": "a"}]}`)); err != nil {
		t.Fatalf("ошибка записи части data: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("ошибка закрытия multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ValidateData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var result service.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if !result.IsValid {
		t.Errorf("ожидался валидный результат, ошибки: %+v", result.Errors)
	}
}

func TestValidateData_BadRequest(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"битый JSON", "application/json", `{broken`},
		{"нет поля data", "application/json", `{"schema": {}}`},
		{"нет поля schema", "application/json", `{"data": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newValidateHandler()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ValidateData(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("ожидался статус 400, получен %d", rec.Code)
			}

			var envelope struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("ошибка разбора ответа: %v", err)
			}
			if envelope.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("ожидался код VALIDATION_ERROR, получен %q", envelope.Error.Code)
			}
		})
	}
}

func TestValidateData_MultipartMissingPart(t *testing.T) {
	h := newValidateHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	schemaPart, err := mw.CreateFormFile("schema", "schema.json")
	if err != nil {
		t.Fatalf("ошибка создания части schema: %v", err)
	}
	if _, err := schemaPart.Write([]byte(validateSchemaDoc)); err != nil {
		t.Fatalf("ошибка записи части schema: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("ошибка закрытия multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ValidateData(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data") {
		t.Errorf("в ответе не названо отсутствующее поле: %s", rec.Body.String())
	}
}
