// authgate.go — middleware авторизации Bucket Gate.
// Извлекает идентичность вызывающего из заголовка запроса, проверяет её
// по allow-list (без учёта регистра) и помещает принципала в контекст.
// Любой сбой проверки трактуется как отказ (fail closed).
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/bucketgate/internal/api/errors"
	"github.com/arturkryukov/bucketgate/internal/config"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
	"github.com/arturkryukov/bucketgate/internal/domain/roles"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyPrincipal — разрешённый принципал в контексте запроса.
	ContextKeyPrincipal contextKey = "auth_principal"
)

// AuthPrincipal — разрешённый принципал, помещаемый в контекст запроса.
type AuthPrincipal struct {
	// ID — UUID записи принципала в allow-list.
	ID string
	// Identifier — идентификатор вызывающего (email).
	Identifier string
	// Role — роль из allow-list (admin, user).
	Role string
}

// IsAdmin сообщает, является ли принципал администратором.
func (p *AuthPrincipal) IsAdmin() bool {
	return roles.IsAdmin(p.Role)
}

// PrincipalResolver — поиск принципала в allow-list без учёта регистра.
// Реализуется service.PrincipalService.
// Если принципал не найден — возвращает nil, nil.
type PrincipalResolver interface {
	Resolve(ctx context.Context, identifier string) (*model.Principal, error)
}

// AuthGate — middleware авторизации по allow-list.
type AuthGate struct {
	resolver PrincipalResolver
	header   string
	mode     config.AuthMode
	bypass   string
	logger   *slog.Logger
}

// NewAuthGate создаёт middleware авторизации.
// header — имя заголовка идентичности (BG_IDENTITY_HEADER).
// mode — режим авторизации (enforced или bypass).
// bypass — фиксированный принципал для режима bypass (BG_AUTH_BYPASS_PRINCIPAL).
func NewAuthGate(
	resolver PrincipalResolver,
	header string,
	mode config.AuthMode,
	bypass string,
	logger *slog.Logger,
) *AuthGate {
	return &AuthGate{
		resolver: resolver,
		header:   header,
		mode:     mode,
		bypass:   bypass,
		logger:   logger.With(slog.String("component", "auth_gate")),
	}
}

// Identity возвращает middleware, разрешающий идентичность вызывающего.
// В режиме enforced идентичность берётся из заголовка: отсутствие
// заголовка — 401 MISSING_IDENTITY, отсутствие в allow-list — 403
// NOT_AUTHORIZED, роль по умолчанию не назначается никогда.
// В режиме bypass вместо заголовка подставляется фиксированный
// принципал, но поиск в allow-list выполняется так же.
func (g *AuthGate) Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := g.bypass
			if g.mode != config.AuthModeBypass {
				identifier = strings.TrimSpace(r.Header.Get(g.header))
				if identifier == "" {
					apierrors.MissingIdentity(w, "Отсутствует заголовок идентичности "+g.header)
					return
				}
			}

			principal, err := g.resolver.Resolve(r.Context(), identifier)
			if err != nil {
				// Сбой поиска — отказ, а не роль по умолчанию.
				g.logger.Error("Ошибка поиска принципала в allow-list",
					slog.String("identifier", identifier),
					slog.String("error", err.Error()),
				)
				apierrors.NotAuthorized(w, "Доступ запрещён")
				return
			}
			if principal == nil {
				g.logger.Debug("Вызывающий не найден в allow-list",
					slog.String("identifier", identifier),
				)
				apierrors.NotAuthorized(w, "Вызывающий не входит в allow-list")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, &AuthPrincipal{
				ID:         principal.ID,
				Identifier: principal.Identifier,
				Role:       principal.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin возвращает middleware, требующий роль администратора.
// Должен использоваться ПОСЛЕ Identity().
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				apierrors.MissingIdentity(w, "Отсутствует принципал в контексте")
				return
			}

			if !principal.IsAdmin() {
				apierrors.AdminRequired(w, "Требуется роль администратора")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// PrincipalFromContext извлекает принципала из контекста запроса.
// Возвращает nil, если принципал не найден.
func PrincipalFromContext(ctx context.Context) *AuthPrincipal {
	principal, _ := ctx.Value(ContextKeyPrincipal).(*AuthPrincipal)
	return principal
}

// IdentifierFromContext извлекает идентификатор вызывающего из контекста.
// Возвращает пустую строку, если принципал не найден.
func IdentifierFromContext(ctx context.Context) string {
	principal := PrincipalFromContext(ctx)
	if principal == nil {
		return ""
	}
	return principal.Identifier
}
