// cache.go — кэш единственной аренды клиента S3.
// Выпуск сериализован за мьютексом: при холодном старте или истечении
// ровно один вызов обращается к провайдеру, остальные ждут результат.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Provider выпускает новую аренду клиента хранилища.
type Provider interface {
	Provision(ctx context.Context) (*Lease, error)
}

// Cache — держатель текущей аренды. Аренда считается действительной,
// пока не наступило её время истечения; устаревшая аренда заменяется
// прозрачно при следующем обращении.
type Cache struct {
	provider Provider
	logger   *slog.Logger

	mu    sync.Mutex
	lease *Lease

	// now подменяется в тестах
	now func() time.Time
}

// NewCache создаёт кэш аренды поверх провайдера.
func NewCache(provider Provider, logger *slog.Logger) *Cache {
	return &Cache{
		provider: provider,
		logger:   logger.With(slog.String("component", "credential_cache")),
		now:      time.Now,
	}
}

// EnsureFresh возвращает действительную аренду, выпуская новую при
// холодном старте или истечении. Действительная аренда возвращается
// без обращения к провайдеру. При неудаче выпуска слот очищается:
// полуинициализированная аренда не переживает ошибку, следующий вызов
// начинает с чистого листа.
func (c *Cache) EnsureFresh(ctx context.Context) (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lease != nil && c.lease.Fresh(c.now()) {
		return c.lease, nil
	}

	lease, err := c.provider.Provision(ctx)
	if err != nil {
		c.lease = nil
		credentialProvisionsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("выпуск аренды: %w", err)
	}

	c.lease = lease
	credentialProvisionsTotal.WithLabelValues("success").Inc()
	return c.lease, nil
}

// Invalidate принудительно сбрасывает текущую аренду, не дожидаясь
// пассивной проверки времени истечения. Следующий EnsureFresh выпустит
// новую.
func (c *Cache) Invalidate(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lease != nil {
		c.logger.Info("Аренда учётных данных сброшена",
			slog.String("reason", reason),
		)
	}
	c.lease = nil
	leaseInvalidationsTotal.WithLabelValues(reason).Inc()
}

// CheckReady возвращает состояние слота аренды для readiness probe.
// Пустой слот и устаревшая аренда — degraded, не fail: выпуск выполняется
// лениво при первом обращении и не должен выводить сервис из ротации.
func (c *Cache) CheckReady() (status string, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.lease == nil:
		return "degraded", "аренда ещё не выпущена"
	case !c.lease.Fresh(c.now()):
		return "degraded", "аренда устарела и будет перевыпущена"
	case c.lease.ExpiresAt == nil:
		return "ok", "долгоживущие учётные данные"
	default:
		return "ok", fmt.Sprintf("аренда действительна до %s", c.lease.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

// WithFreshClient выполняет fn с гарантированно действительной арендой.
// Если бэкенд сообщает об истёкшем токене посреди вызова, аренда
// принудительно сбрасывается, выпускается новая и fn повторяется ровно
// один раз. Повторное истечение в рамках той же попытки означает, что
// выпускаемые учётные данные непригодны, и возвращается ErrProvisioning.
func (c *Cache) WithFreshClient(ctx context.Context, fn func(ctx context.Context, lease *Lease) error) error {
	lease, err := c.EnsureFresh(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, lease)
	if err == nil || !IsTokenExpired(err) {
		return err
	}

	c.logger.Warn("Бэкенд сообщил об истёкшем токене, повторяем с новой арендой")
	c.Invalidate("token_expired")

	lease, err = c.EnsureFresh(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, lease)
	if err != nil && IsTokenExpired(err) {
		c.Invalidate("token_expired")
		return fmt.Errorf("токен истёк повторно после перевыпуска: %w", ErrProvisioning)
	}
	return err
}
