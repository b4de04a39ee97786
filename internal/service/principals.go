// Пакет service — бизнес-логика Bucket Gate.
// principals.go — CRUD allow-list принципалов с защитой от самоблокировки.
// Поиск по идентификатору идёт через LRU-кэш с TTL
// (hashicorp/golang-lru/v2/expirable); отрицательные результаты не кэшируются,
// мутации инвалидируют запись, чтобы отзыв доступа действовал сразу.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
	"github.com/arturkryukov/bucketgate/internal/domain/roles"
	"github.com/arturkryukov/bucketgate/internal/repository"
)

// Prometheus-метрики кэша принципалов.
var (
	principalCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bg_principal_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш принципалов.",
	})
	principalCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bg_principal_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша принципалов.",
	})
)

// registeredBySystem — значение registered_by для записей, созданных при старте.
const registeredBySystem = "system"

// PrincipalService — сервис управления allow-list принципалов.
type PrincipalService struct {
	repo   repository.PrincipalRepository
	cache  *expirable.LRU[string, *model.Principal]
	logger *slog.Logger
}

// NewPrincipalService создаёт сервис принципалов.
// cacheSize — максимальное количество записей в кэше поиска,
// cacheTTL — время жизни записи после добавления.
func NewPrincipalService(
	repo repository.PrincipalRepository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *PrincipalService {
	return &PrincipalService{
		repo:   repo,
		cache:  expirable.NewLRU[string, *model.Principal](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "principals_service")),
	}
}

// Resolve ищет принципала по идентификатору без учёта регистра.
// Реализует middleware.PrincipalResolver: не найден — nil, nil.
// Кэшируются только положительные результаты.
func (s *PrincipalService) Resolve(ctx context.Context, identifier string) (*model.Principal, error) {
	key := cacheKey(identifier)

	if p, ok := s.cache.Get(key); ok {
		principalCacheHitsTotal.Inc()
		return p, nil
	}
	principalCacheMissesTotal.Inc()

	p, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("поиск принципала: %w", err)
	}

	s.cache.Add(key, p)
	return p, nil
}

// List возвращает все записи allow-list в порядке создания.
func (s *PrincipalService) List(ctx context.Context) ([]*model.Principal, error) {
	principals, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка принципалов: %w", err)
	}
	return principals, nil
}

// Create добавляет принципала в allow-list.
// Дубликат идентификатора (без учёта регистра) — ErrPrincipalExists.
func (s *PrincipalService) Create(ctx context.Context, actor *middleware.AuthPrincipal, identifier, role string) (*model.Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if !isValidIdentifier(identifier) {
		return nil, ErrInvalidIdentifier
	}
	if !roles.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	p := &model.Principal{
		Identifier:   identifier,
		Role:         role,
		RegisteredBy: actor.Identifier,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrPrincipalExists
		}
		return nil, fmt.Errorf("создание принципала: %w", err)
	}

	s.cache.Remove(cacheKey(identifier))
	s.logger.Info("Принципал добавлен в allow-list",
		slog.String("identifier", p.Identifier),
		slog.String("role", p.Role),
		slog.String("registered_by", p.RegisteredBy),
	)
	return p, nil
}

// UpdateRole меняет роль принципала.
// Актор не может понизить собственную роль ниже admin — ErrSelfDemotion,
// allow-list при этом не меняется.
func (s *PrincipalService) UpdateRole(ctx context.Context, actor *middleware.AuthPrincipal, id, role string) (*model.Principal, error) {
	if !roles.IsValidRole(role) {
		return nil, ErrInvalidRole
	}
	if actor.ID == id && !roles.IsAdmin(role) {
		return nil, ErrSelfDemotion
	}

	p, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление роли принципала: %w", err)
	}

	s.cache.Remove(cacheKey(p.Identifier))
	s.logger.Info("Роль принципала обновлена",
		slog.String("identifier", p.Identifier),
		slog.String("role", p.Role),
		slog.String("updated_by", actor.Identifier),
	)
	return p, nil
}

// Delete удаляет принципала из allow-list.
// Актор не может удалить собственную запись — ErrSelfDeletion.
func (s *PrincipalService) Delete(ctx context.Context, actor *middleware.AuthPrincipal, id string) error {
	if actor.ID == id {
		return ErrSelfDeletion
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("получение принципала: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление принципала: %w", err)
	}

	s.cache.Remove(cacheKey(p.Identifier))
	s.logger.Info("Принципал удалён из allow-list",
		slog.String("identifier", p.Identifier),
		slog.String("deleted_by", actor.Identifier),
	)
	return nil
}

// Bootstrap заводит стартового администратора, если в allow-list нет
// ни одного admin. Вызывается один раз при старте процесса; пустой
// identifier отключает механизм.
func (s *PrincipalService) Bootstrap(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("подсчёт администраторов: %w", err)
	}
	if count > 0 {
		s.logger.Debug("Bootstrap пропущен: администратор уже есть",
			slog.Int("admins", count),
		)
		return nil
	}

	// Идентификатор может уже присутствовать с ролью user — тогда повышаем.
	existing, err := s.repo.GetByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		if _, err := s.repo.UpdateRole(ctx, existing.ID, roles.RoleAdmin); err != nil {
			return fmt.Errorf("повышение стартового администратора: %w", err)
		}
		s.cache.Remove(cacheKey(existing.Identifier))
		s.logger.Info("Стартовый администратор повышен до admin",
			slog.String("identifier", existing.Identifier),
		)
	case errors.Is(err, repository.ErrNotFound):
		p := &model.Principal{
			Identifier:   identifier,
			Role:         roles.RoleAdmin,
			RegisteredBy: registeredBySystem,
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("создание стартового администратора: %w", err)
		}
		s.logger.Info("Стартовый администратор создан",
			slog.String("identifier", p.Identifier),
		)
	default:
		return fmt.Errorf("поиск стартового администратора: %w", err)
	}

	return nil
}

// cacheKey нормализует идентификатор для ключа кэша.
func cacheKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// isValidIdentifier проверяет, что идентификатор похож на email:
// непустой, без пробелов, ровно один символ @ не по краям.
func isValidIdentifier(identifier string) bool {
	if identifier == "" || strings.ContainsAny(identifier, " \t") {
		return false
	}
	at := strings.Index(identifier, "@")
	if at <= 0 || at != strings.LastIndex(identifier, "@") {
		return false
	}
	return at < len(identifier)-1
}
