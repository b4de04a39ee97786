// Пакет roles — роли принципалов allow-list и их сравнение.
// Ролей две: user (работа с объектами) и admin (плюс управление
// allow-list и журналом активности).
package roles

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// IsAtLeast сообщает, покрывает ли роль role требования required.
// Неизвестная роль не покрывает ничего.
func IsAtLeast(role, required string) bool {
	wr, ok := roleWeight[role]
	if !ok {
		return false
	}
	wreq, ok := roleWeight[required]
	if !ok {
		return false
	}
	return wr >= wreq
}

// IsAdmin — сокращение для IsAtLeast(role, RoleAdmin).
func IsAdmin(role string) bool {
	return role == RoleAdmin
}
