package service

import (
	"reflect"
	"strings"
	"testing"
)

// workitemSchemaDoc — документ задания с дважды экранированным
// шаблоном в zip, как выгружает внешняя система.
const workitemSchemaDoc = `{
	"outputDataDefinition": {
		"outputSchema": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string"},
				"zip": {"type": "string", "pattern": "^\\\\d{5}$"},
				"tags": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

func newValidationService() *ValidationService {
	return NewValidationService(testLogger())
}

// TestValidationService_Validate_AllValid проверяет пакет без ошибок.
func TestValidationService_Validate_AllValid(t *testing.T) {
	data := `{"workitems": [
		{"name": "first", "zip": "12345"},
		{"name": "second", "tags": ["a", "b"]}
	]}`

	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(data))

	if !result.IsValid {
		t.Fatalf("IsValid = false, ожидался true: %+v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("ошибок %d, ожидалось 0", len(result.Errors))
	}
	if result.ItemCount != 2 || result.ValidItems != 2 || result.InvalidItems != 0 {
		t.Errorf("счётчики = %d/%d/%d, ожидались 2/2/0",
			result.ItemCount, result.ValidItems, result.InvalidItems)
	}
}

// TestValidationService_Validate_InvalidItems проверяет смешанный пакет:
// на невалидный элемент — одна запись с номером элемента с единицы.
func TestValidationService_Validate_InvalidItems(t *testing.T) {
	data := `{"workitems": [
		{"zip": "12345"},
		{"name": 123},
		{"name": "ok"}
	]}`

	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(data))

	if result.IsValid {
		t.Fatal("IsValid = true, ожидался false")
	}
	if result.ItemCount != 3 || result.ValidItems != 1 || result.InvalidItems != 2 {
		t.Fatalf("счётчики = %d/%d/%d, ожидались 3/1/2",
			result.ItemCount, result.ValidItems, result.InvalidItems)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("ошибок %d, ожидалось 2: %+v", len(result.Errors), result.Errors)
	}

	// Первый элемент: отсутствует обязательное поле
	missing := result.Errors[0]
	if missing.ItemIndex != 1 {
		t.Errorf("ItemIndex = %d, ожидался 1", missing.ItemIndex)
	}
	if missing.Keyword != "required" {
		t.Errorf("Keyword = %q, ожидался %q", missing.Keyword, "required")
	}
	if missing.InstancePath != "workitems[0]" {
		t.Errorf("InstancePath = %q, ожидался %q", missing.InstancePath, "workitems[0]")
	}
	if !reflect.DeepEqual(missing.Params, []string{"name"}) {
		t.Errorf("Params = %v, ожидался [name]", missing.Params)
	}
	if missing.Message == "" {
		t.Error("Message пуст")
	}

	// Второй элемент: неверный тип поля
	badType := result.Errors[1]
	if badType.ItemIndex != 2 {
		t.Errorf("ItemIndex = %d, ожидался 2", badType.ItemIndex)
	}
	if badType.Keyword != "type" {
		t.Errorf("Keyword = %q, ожидался %q", badType.Keyword, "type")
	}
	if badType.InstancePath != "workitems[1].name" {
		t.Errorf("InstancePath = %q, ожидался %q", badType.InstancePath, "workitems[1].name")
	}
	if badType.SchemaPath != "properties.name.type" {
		t.Errorf("SchemaPath = %q, ожидался %q", badType.SchemaPath, "properties.name.type")
	}
}

// TestValidationService_Validate_PatternFix проверяет, что дважды
// экранированный шаблон чинится перед компиляцией.
func TestValidationService_Validate_PatternFix(t *testing.T) {
	data := `{"workitems": [
		{"name": "good", "zip": "12345"},
		{"name": "bad", "zip": "abcde"}
	]}`

	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(data))

	if result.IsValid {
		t.Fatal("IsValid = true, ожидался false")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("ошибок %d, ожидалась 1: %+v", len(result.Errors), result.Errors)
	}

	issue := result.Errors[0]
	if issue.Keyword != "pattern" {
		t.Errorf("Keyword = %q, ожидался %q", issue.Keyword, "pattern")
	}
	if issue.InstancePath != "workitems[1].zip" {
		t.Errorf("InstancePath = %q, ожидался %q", issue.InstancePath, "workitems[1].zip")
	}
	// Шаблон в результате — уже исправленный
	if issue.Params != `^\d{5}$` {
		t.Errorf("Params = %v, ожидался %q", issue.Params, `^\d{5}$`)
	}
}

// TestValidationService_Validate_ArrayItem проверяет путь до элемента
// вложенного массива.
func TestValidationService_Validate_ArrayItem(t *testing.T) {
	data := `{"workitems": [{"name": "x", "tags": ["ok", 5]}]}`

	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(data))

	if result.IsValid {
		t.Fatal("IsValid = true, ожидался false")
	}
	issue := result.Errors[0]
	if issue.InstancePath != "workitems[0].tags[1]" {
		t.Errorf("InstancePath = %q, ожидался %q", issue.InstancePath, "workitems[0].tags[1]")
	}
	if issue.SchemaPath != "properties.tags.items.type" {
		t.Errorf("SchemaPath = %q, ожидался %q", issue.SchemaPath, "properties.tags.items.type")
	}
}

// TestValidationService_Validate_MissingWorkitems проверяет документ
// без массива workitems.
func TestValidationService_Validate_MissingWorkitems(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"объект без workitems", `{"other": 1}`},
		{"скаляр вместо объекта", `42`},
		{"массив вместо объекта", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(tt.data))

			if result.IsValid {
				t.Fatal("IsValid = true, ожидался false")
			}
			if len(result.Errors) != 1 {
				t.Fatalf("ошибок %d, ожидалась 1", len(result.Errors))
			}
			issue := result.Errors[0]
			if issue.Keyword != "required" {
				t.Errorf("Keyword = %q, ожидался %q", issue.Keyword, "required")
			}
			if issue.Message != "'workitems' property is missing from input file." {
				t.Errorf("Message = %q", issue.Message)
			}
			if issue.ItemIndex != 0 {
				t.Errorf("ItemIndex = %d, ожидался 0 (ошибка уровня файла)", issue.ItemIndex)
			}
		})
	}
}

// TestValidationService_Validate_WorkitemsNotList проверяет workitems
// не-массив.
func TestValidationService_Validate_WorkitemsNotList(t *testing.T) {
	data := `{"workitems": {"name": "x"}}`

	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(data))

	if result.IsValid {
		t.Fatal("IsValid = true, ожидался false")
	}
	issue := result.Errors[0]
	if issue.Keyword != "type" {
		t.Errorf("Keyword = %q, ожидался %q", issue.Keyword, "type")
	}
	if issue.Message != "'workitems' is not a valid list." {
		t.Errorf("Message = %q", issue.Message)
	}
}

// TestValidationService_Validate_EmptyWorkitems проверяет пустой пакет.
func TestValidationService_Validate_EmptyWorkitems(t *testing.T) {
	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(`{"workitems": []}`))

	if !result.IsValid {
		t.Fatalf("IsValid = false, ожидался true: %+v", result.Errors)
	}
	if result.ItemCount != 0 {
		t.Errorf("ItemCount = %d, ожидался 0", result.ItemCount)
	}
}

// TestValidationService_Validate_BadSchemaDoc проверяет дефектные
// документы схемы.
func TestValidationService_Validate_BadSchemaDoc(t *testing.T) {
	tests := []struct {
		name      string
		schemaDoc string
		wantPart  string
	}{
		{
			name:      "нет outputDataDefinition",
			schemaDoc: `{"foo": 1}`,
			wantPart:  "'outputDataDefinition' is missing",
		},
		{
			name:      "нет outputSchema",
			schemaDoc: `{"outputDataDefinition": {"bar": 2}}`,
			wantPart:  "'outputSchema' is missing",
		},
		{
			name:      "схема не JSON",
			schemaDoc: `{broken`,
			wantPart:  "Validation error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newValidationService().Validate([]byte(tt.schemaDoc), []byte(`{"workitems": []}`))

			if result.IsValid {
				t.Fatal("IsValid = true, ожидался false")
			}
			if len(result.Errors) != 1 {
				t.Fatalf("ошибок %d, ожидалась 1", len(result.Errors))
			}
			issue := result.Errors[0]
			if issue.Keyword != "error" {
				t.Errorf("Keyword = %q, ожидался %q", issue.Keyword, "error")
			}
			if !strings.Contains(issue.Message, tt.wantPart) {
				t.Errorf("Message = %q, ожидалось вхождение %q", issue.Message, tt.wantPart)
			}
		})
	}
}

// TestValidationService_Validate_MalformedData проверяет нечитаемые данные.
func TestValidationService_Validate_MalformedData(t *testing.T) {
	result := newValidationService().Validate([]byte(workitemSchemaDoc), []byte(`{broken`))

	if result.IsValid {
		t.Fatal("IsValid = true, ожидался false")
	}
	issue := result.Errors[0]
	if issue.Keyword != "error" {
		t.Errorf("Keyword = %q, ожидался %q", issue.Keyword, "error")
	}
	if !strings.HasPrefix(issue.Message, "Validation error:") {
		t.Errorf("Message = %q, ожидался префикс %q", issue.Message, "Validation error:")
	}
}
