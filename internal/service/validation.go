// validation.go — проверка пакета workitems по JSON-схеме задания.
// Схема приходит в документе с полем outputDataDefinition.outputSchema,
// данные — в документе с массивом workitems. Каждый элемент проверяется
// независимо (kin-openapi), для элемента фиксируется первая ошибка.
// Формат результата сохраняет контракт прежнего внешнего валидатора,
// поэтому сообщения результата — на английском.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ValidationResult — итог проверки пакета workitems.
type ValidationResult struct {
	// IsValid — true, если все элементы прошли проверку.
	IsValid bool `json:"isValid"`
	// Errors — по одной записи на невалидный элемент либо одна
	// запись уровня файла (нет workitems, не массив, плохая схема).
	Errors []ValidationIssue `json:"errors"`
	// ItemCount — количество элементов workitems.
	ItemCount int `json:"itemCount"`
	// ValidItems — количество валидных элементов.
	ValidItems int `json:"validItems"`
	// InvalidItems — количество невалидных элементов.
	InvalidItems int `json:"invalidItems"`
}

// ValidationIssue — одна ошибка проверки.
type ValidationIssue struct {
	// ItemIndex — номер элемента с единицы; 0 (опущен) для ошибок уровня файла.
	ItemIndex int `json:"itemIndex,omitempty"`
	// InstancePath — путь к значению: workitems[0].address.zip.
	InstancePath string `json:"instancePath"`
	// SchemaPath — путь к нарушенному правилу схемы: properties.zip.pattern.
	SchemaPath string `json:"schemaPath"`
	// Keyword — нарушенное ключевое слово схемы (type, pattern, required, ...).
	Keyword string `json:"keyword"`
	// Params — значение нарушенного ключевого слова из схемы.
	Params any `json:"params"`
	// Message — человекочитаемое описание.
	Message string `json:"message"`
}

// ValidationService — сервис проверки данных по схеме.
type ValidationService struct {
	logger *slog.Logger
}

// NewValidationService создаёт сервис проверки.
func NewValidationService(logger *slog.Logger) *ValidationService {
	return &ValidationService{
		logger: logger.With(slog.String("component", "validation_service")),
	}
}

// Validate проверяет data["workitems"] по схеме
// schema["outputDataDefinition"]["outputSchema"].
// Любой дефект входа отражается в результате, а не в ошибке Go:
// вызывающий всегда получает готовый к сериализации отчёт.
func (s *ValidationService) Validate(schemaDoc, dataDoc []byte) *ValidationResult {
	outputSchema, err := extractOutputSchema(schemaDoc)
	if err != nil {
		return errorResult(fmt.Sprintf("Validation error: %v", err))
	}

	compiled, err := compileSchema(outputSchema)
	if err != nil {
		return errorResult(fmt.Sprintf("Validation error: %v", err))
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(dataDoc, &data); err != nil {
		if !json.Valid(dataDoc) {
			return errorResult(fmt.Sprintf("Validation error: %v", err))
		}
		// Корректный JSON, но не объект — workitems взять неоткуда
		return missingWorkitemsResult()
	}

	raw, ok := data["workitems"]
	if !ok {
		return missingWorkitemsResult()
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return errorResult(fmt.Sprintf("Validation error: %v", err))
	}
	items, ok := value.([]any)
	if !ok {
		return &ValidationResult{
			Errors: []ValidationIssue{{
				Keyword: "type",
				Params:  map[string]any{},
				Message: "'workitems' is not a valid list.",
			}},
		}
	}

	result := &ValidationResult{
		IsValid:   true,
		Errors:    []ValidationIssue{},
		ItemCount: len(items),
	}

	for idx, item := range items {
		if err := compiled.VisitJSON(item); err != nil {
			result.IsValid = false
			result.InvalidItems++
			result.Errors = append(result.Errors, issueFromError(idx, err))
			continue
		}
		result.ValidItems++
	}

	s.logger.Debug("Проверка workitems завершена",
		slog.Int("items", result.ItemCount),
		slog.Int("valid", result.ValidItems),
		slog.Int("invalid", result.InvalidItems),
	)
	return result
}

// extractOutputSchema достаёт outputDataDefinition.outputSchema из
// документа схемы.
func extractOutputSchema(schemaDoc []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return nil, fmt.Errorf("schema file: %w", err)
	}

	definition, ok := doc["outputDataDefinition"].(map[string]any)
	if !ok {
		return nil, errors.New("'outputDataDefinition' is missing from schema file")
	}
	outputSchema, ok := definition["outputSchema"].(map[string]any)
	if !ok {
		return nil, errors.New("'outputSchema' is missing from schema file")
	}
	return outputSchema, nil
}

// compileSchema чинит шаблоны регулярных выражений и собирает схему.
func compileSchema(outputSchema map[string]any) (*openapi3.Schema, error) {
	fixRegexPatterns(outputSchema)

	raw, err := json.Marshal(outputSchema)
	if err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}

	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}
	return schema, nil
}

// fixRegexPatterns исправляет дважды экранированные обратные слэши в
// значениях "pattern" — артефакт выгрузки схем из внешней системы.
func fixRegexPatterns(node any) {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			if key == "pattern" {
				if s, ok := value.(string); ok {
					v[key] = strings.ReplaceAll(s, `\\`, `\`)
					continue
				}
			}
			fixRegexPatterns(value)
		}
	case []any:
		for _, item := range v {
			fixRegexPatterns(item)
		}
	}
}

// issueFromError преобразует ошибку проверки элемента idx (с нуля)
// в запись результата.
func issueFromError(idx int, err error) ValidationIssue {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		return ValidationIssue{
			ItemIndex:    idx + 1,
			InstancePath: fmt.Sprintf("workitems[%d]", idx),
			Keyword:      "error",
			Params:       map[string]any{},
			Message:      err.Error(),
		}
	}

	// Отсутствие обязательного поля прежний валидатор относил к самому
	// объекту, а kin-openapi дописывает имя поля в конец пути.
	segments := schemaErr.JSONPointer()
	if schemaErr.SchemaField == "required" && len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}
	return ValidationIssue{
		ItemIndex:    idx + 1,
		InstancePath: instancePath(idx, segments),
		SchemaPath:   schemaPath(segments, schemaErr.SchemaField),
		Keyword:      schemaErr.SchemaField,
		Params:       keywordParams(schemaErr.Schema, schemaErr.SchemaField),
		Message:      reasonOf(schemaErr),
	}
}

// instancePath строит путь к значению: workitems[3].address.zip, сегменты-индексы — в скобках.
func instancePath(idx int, segments []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "workitems[%d]", idx)
	for _, seg := range segments {
		if isIndexSegment(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
		} else {
			b.WriteByte('.')
			b.WriteString(seg)
		}
	}
	return b.String()
}

// schemaPath строит путь к правилу схемы в стиле draft-4:
// properties.<поле>…<keyword>, сегменты-индексы — items.
func schemaPath(segments []string, keyword string) string {
	parts := make([]string, 0, len(segments)*2+1)
	for _, seg := range segments {
		if isIndexSegment(seg) {
			parts = append(parts, "items")
		} else {
			parts = append(parts, "properties", seg)
		}
	}
	parts = append(parts, keyword)
	return strings.Join(parts, ".")
}

// isIndexSegment сообщает, является ли сегмент пути индексом массива.
func isIndexSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// keywordParams возвращает значение нарушенного ключевого слова из схемы.
func keywordParams(schema *openapi3.Schema, keyword string) any {
	if schema == nil {
		return map[string]any{}
	}
	switch keyword {
	case "pattern":
		return schema.Pattern
	case "required":
		return schema.Required
	case "type":
		if schema.Type != nil {
			return schema.Type.Slice()
		}
	case "enum":
		return schema.Enum
	case "format":
		return schema.Format
	case "minLength":
		return schema.MinLength
	case "maxLength":
		return schema.MaxLength
	case "minimum":
		return schema.Min
	case "maximum":
		return schema.Max
	case "minItems":
		return schema.MinItems
	case "maxItems":
		return schema.MaxItems
	}
	return map[string]any{}
}

// reasonOf возвращает краткую причину ошибки без префикса с путём.
func reasonOf(err *openapi3.SchemaError) string {
	if err.Reason != "" {
		return err.Reason
	}
	return err.Error()
}

// missingWorkitemsResult — результат для документа без workitems.
func missingWorkitemsResult() *ValidationResult {
	return &ValidationResult{
		Errors: []ValidationIssue{{
			Keyword: "required",
			Params:  map[string]any{},
			Message: "'workitems' property is missing from input file.",
		}},
	}
}

// errorResult — результат для дефектного входа (нечитаемая схема или данные).
func errorResult(message string) *ValidationResult {
	return &ValidationResult{
		Errors: []ValidationIssue{{
			Keyword: "error",
			Params:  map[string]any{},
			Message: message,
		}},
	}
}
