// errors.go — ошибки жизненного цикла учётных данных и предикаты
// классификации ответов AWS.
package credential

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// Ошибки провайдера и кэша учётных данных.
var (
	// ErrProvisioning — выпуск учётных данных не удался: кандидаты
	// длительности исчерпаны либо обмен отклонён (плохие ключи, плохой ARN).
	ErrProvisioning = errors.New("не удалось выпустить учётные данные хранилища")
	// ErrTokenExpired — бэкенд сообщил об истёкшем токене.
	ErrTokenExpired = errors.New("токен учётных данных истёк")
	// ErrUpstreamTimeout — исходящий вызов превысил отведённый таймаут.
	ErrUpstreamTimeout = errors.New("превышен таймаут обращения к внешнему сервису")
)

// Коды ошибок AWS, означающие истёкший или недействительный токен сессии.
var expiredTokenCodes = map[string]bool{
	"ExpiredToken":          true,
	"ExpiredTokenException": true,
	"InvalidToken":          true,
	"TokenRefreshRequired":  true,
}

// IsTokenExpired сообщает, означает ли ошибка истёкший токен сессии.
// Понимает как типизированные ошибки AWS, так и ErrTokenExpired.
func IsTokenExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return expiredTokenCodes[apiErr.ErrorCode()]
	}
	return false
}

// isDurationTooLong сообщает, отклонил ли STS запрос из-за того, что
// запрошенная длительность сессии превышает максимум роли. STS возвращает
// общий ValidationError, поэтому дополнительно сверяемся с именем
// параметра в сообщении.
func isDurationTooLong(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.ErrorCode() != "ValidationError" {
		return false
	}
	return strings.Contains(apiErr.ErrorMessage(), "DurationSeconds")
}

// IsTimeout сообщает, истёк ли таймаут исходящего вызова.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
