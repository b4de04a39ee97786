package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
	"github.com/arturkryukov/bucketgate/internal/domain/roles"
	"github.com/arturkryukov/bucketgate/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock repository ---

// mockPrincipalRepo — мок PrincipalRepository для unit-тестов.
type mockPrincipalRepo struct {
	createFn          func(ctx context.Context, p *model.Principal) error
	getByIDFn         func(ctx context.Context, id string) (*model.Principal, error)
	getByIdentifierFn func(ctx context.Context, identifier string) (*model.Principal, error)
	listFn            func(ctx context.Context) ([]*model.Principal, error)
	updateRoleFn      func(ctx context.Context, id, role string) (*model.Principal, error)
	deleteFn          func(ctx context.Context, id string) error
	countAdminsFn     func(ctx context.Context) (int, error)
}

func (m *mockPrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockPrincipalRepo) GetByID(ctx context.Context, id string) (*model.Principal, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockPrincipalRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.Principal, error) {
	if m.getByIdentifierFn != nil {
		return m.getByIdentifierFn(ctx, identifier)
	}
	return nil, repository.ErrNotFound
}

func (m *mockPrincipalRepo) List(ctx context.Context) ([]*model.Principal, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPrincipalRepo) UpdateRole(ctx context.Context, id, role string) (*model.Principal, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, id, role)
	}
	return nil, repository.ErrNotFound
}

func (m *mockPrincipalRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return repository.ErrNotFound
}

func (m *mockPrincipalRepo) CountAdmins(ctx context.Context) (int, error) {
	if m.countAdminsFn != nil {
		return m.countAdminsFn(ctx)
	}
	return 0, nil
}

// newPrincipalService создаёт сервис с тестовым кэшем.
func newPrincipalService(repo repository.PrincipalRepository) *PrincipalService {
	return NewPrincipalService(repo, 128, time.Minute, testLogger())
}

// adminActor — аутентифицированный администратор для тестов мутаций.
func adminActor() *middleware.AuthPrincipal {
	return &middleware.AuthPrincipal{
		ID:         "id-admin",
		Identifier: "admin@test.com",
		Role:       roles.RoleAdmin,
	}
}

// --- Тесты Resolve ---

// TestPrincipalService_Resolve_CacheHit проверяет, что повторный поиск
// идёт из кэша, без обращения к БД.
func TestPrincipalService_Resolve_CacheHit(t *testing.T) {
	callCount := 0
	repo := &mockPrincipalRepo{
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			callCount++
			return &model.Principal{ID: "id-1", Identifier: "user@test.com", Role: roles.RoleUser}, nil
		},
	}
	svc := newPrincipalService(repo)

	// Первый вызов — cache miss, идёт в БД
	p, err := svc.Resolve(context.Background(), "user@test.com")
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	if p == nil || p.ID != "id-1" {
		t.Fatalf("Resolve = %+v, ожидался id-1", p)
	}
	if callCount != 1 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 1", callCount)
	}

	// Второй вызов — cache hit, в БД не идёт
	p, err = svc.Resolve(context.Background(), "user@test.com")
	if err != nil {
		t.Fatalf("Resolve ошибка (cache hit): %v", err)
	}
	if p == nil || p.ID != "id-1" {
		t.Fatalf("Resolve (cache hit) = %+v, ожидался id-1", p)
	}
	if callCount != 1 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 1 (cache hit)", callCount)
	}
}

// TestPrincipalService_Resolve_CaseInsensitive проверяет, что кэш
// нормализует регистр идентификатора.
func TestPrincipalService_Resolve_CaseInsensitive(t *testing.T) {
	callCount := 0
	repo := &mockPrincipalRepo{
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			callCount++
			return &model.Principal{ID: "id-1", Identifier: "user@test.com", Role: roles.RoleUser}, nil
		},
	}
	svc := newPrincipalService(repo)

	if _, err := svc.Resolve(context.Background(), "User@Test.COM"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), "user@test.com"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}

	if callCount != 1 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 1 (разный регистр — один ключ)", callCount)
	}
}

// TestPrincipalService_Resolve_NotFound проверяет, что отсутствие записи
// не является ошибкой и не кэшируется.
func TestPrincipalService_Resolve_NotFound(t *testing.T) {
	callCount := 0
	repo := &mockPrincipalRepo{
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			callCount++
			return nil, repository.ErrNotFound
		},
	}
	svc := newPrincipalService(repo)

	p, err := svc.Resolve(context.Background(), "ghost@test.com")
	if err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	if p != nil {
		t.Errorf("Resolve = %+v, ожидался nil", p)
	}

	// Отрицательный результат не кэшируется: повторный вызов снова идёт в БД,
	// чтобы только что добавленный принципал получил доступ без задержки.
	if _, err := svc.Resolve(context.Background(), "ghost@test.com"); err != nil {
		t.Fatalf("Resolve ошибка (повтор): %v", err)
	}
	if callCount != 2 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 2 (негатив не кэшируется)", callCount)
	}
}

// TestPrincipalService_Resolve_RepoError проверяет проброс ошибки БД.
func TestPrincipalService_Resolve_RepoError(t *testing.T) {
	repo := &mockPrincipalRepo{
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			return nil, errors.New("соединение разорвано")
		},
	}
	svc := newPrincipalService(repo)

	_, err := svc.Resolve(context.Background(), "user@test.com")
	if err == nil {
		t.Fatal("ожидалась ошибка БД")
	}
}

// --- Тесты Create ---

// TestPrincipalService_Create проверяет создание принципала.
func TestPrincipalService_Create(t *testing.T) {
	var created *model.Principal
	repo := &mockPrincipalRepo{
		createFn: func(_ context.Context, p *model.Principal) error {
			p.ID = "id-new"
			created = p
			return nil
		},
	}
	svc := newPrincipalService(repo)

	p, err := svc.Create(context.Background(), adminActor(), "  new@test.com  ", roles.RoleUser)
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if p.Identifier != "new@test.com" {
		t.Errorf("Identifier = %q, ожидался %q (пробелы обрезаны)", p.Identifier, "new@test.com")
	}
	if p.Role != roles.RoleUser {
		t.Errorf("Role = %q, ожидался %q", p.Role, roles.RoleUser)
	}
	if created.RegisteredBy != "admin@test.com" {
		t.Errorf("RegisteredBy = %q, ожидался %q", created.RegisteredBy, "admin@test.com")
	}
}

// TestPrincipalService_Create_Duplicate проверяет конфликт идентификатора.
func TestPrincipalService_Create_Duplicate(t *testing.T) {
	repo := &mockPrincipalRepo{
		createFn: func(_ context.Context, _ *model.Principal) error {
			return repository.ErrConflict
		},
	}
	svc := newPrincipalService(repo)

	_, err := svc.Create(context.Background(), adminActor(), "dup@test.com", roles.RoleUser)
	if !errors.Is(err, ErrPrincipalExists) {
		t.Errorf("ошибка = %v, ожидалась ErrPrincipalExists", err)
	}
}

// TestPrincipalService_Create_InvalidRole проверяет отклонение неизвестной роли.
func TestPrincipalService_Create_InvalidRole(t *testing.T) {
	repoCalled := false
	repo := &mockPrincipalRepo{
		createFn: func(_ context.Context, _ *model.Principal) error {
			repoCalled = true
			return nil
		},
	}
	svc := newPrincipalService(repo)

	_, err := svc.Create(context.Background(), adminActor(), "new@test.com", "superuser")
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ошибка = %v, ожидалась ErrInvalidRole", err)
	}
	if repoCalled {
		t.Error("repo.Create вызван при невалидной роли")
	}
}

// TestPrincipalService_Create_InvalidIdentifier проверяет валидацию идентификатора.
func TestPrincipalService_Create_InvalidIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
	}{
		{"пустой", ""},
		{"только пробелы", "   "},
		{"без @", "user.test.com"},
		{"@ в начале", "@test.com"},
		{"@ в конце", "user@"},
		{"два @", "user@@test.com"},
		{"пробел внутри", "us er@test.com"},
	}

	svc := newPrincipalService(&mockPrincipalRepo{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), adminActor(), tt.identifier, roles.RoleUser)
			if !errors.Is(err, ErrInvalidIdentifier) {
				t.Errorf("ошибка = %v, ожидалась ErrInvalidIdentifier", err)
			}
		})
	}
}

// --- Тесты UpdateRole ---

// TestPrincipalService_UpdateRole проверяет смену роли и инвалидацию кэша.
func TestPrincipalService_UpdateRole(t *testing.T) {
	resolveCount := 0
	repo := &mockPrincipalRepo{
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			resolveCount++
			return &model.Principal{ID: "id-user", Identifier: "user@test.com", Role: roles.RoleUser}, nil
		},
		updateRoleFn: func(_ context.Context, id, role string) (*model.Principal, error) {
			return &model.Principal{ID: id, Identifier: "user@test.com", Role: role}, nil
		},
	}
	svc := newPrincipalService(repo)

	// Прогреваем кэш
	if _, err := svc.Resolve(context.Background(), "user@test.com"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}

	p, err := svc.UpdateRole(context.Background(), adminActor(), "id-user", roles.RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole ошибка: %v", err)
	}
	if p.Role != roles.RoleAdmin {
		t.Errorf("Role = %q, ожидался %q", p.Role, roles.RoleAdmin)
	}

	// Мутация инвалидировала кэш: следующий Resolve снова идёт в БД
	if _, err := svc.Resolve(context.Background(), "user@test.com"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	if resolveCount != 2 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 2 (кэш инвалидирован)", resolveCount)
	}
}

// TestPrincipalService_UpdateRole_SelfDemotion проверяет запрет понижения
// собственной роли: allow-list не меняется.
func TestPrincipalService_UpdateRole_SelfDemotion(t *testing.T) {
	repoCalled := false
	repo := &mockPrincipalRepo{
		updateRoleFn: func(_ context.Context, id, role string) (*model.Principal, error) {
			repoCalled = true
			return &model.Principal{ID: id, Role: role}, nil
		},
	}
	svc := newPrincipalService(repo)

	actor := adminActor()
	_, err := svc.UpdateRole(context.Background(), actor, actor.ID, roles.RoleUser)
	if !errors.Is(err, ErrSelfDemotion) {
		t.Errorf("ошибка = %v, ожидалась ErrSelfDemotion", err)
	}
	if repoCalled {
		t.Error("repo.UpdateRole вызван при самопонижении")
	}
}

// TestPrincipalService_UpdateRole_SelfAdminAllowed проверяет, что смена
// собственной роли на admin (no-op) разрешена.
func TestPrincipalService_UpdateRole_SelfAdminAllowed(t *testing.T) {
	repo := &mockPrincipalRepo{
		updateRoleFn: func(_ context.Context, id, role string) (*model.Principal, error) {
			return &model.Principal{ID: id, Identifier: "admin@test.com", Role: role}, nil
		},
	}
	svc := newPrincipalService(repo)

	actor := adminActor()
	p, err := svc.UpdateRole(context.Background(), actor, actor.ID, roles.RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole ошибка: %v", err)
	}
	if p.Role != roles.RoleAdmin {
		t.Errorf("Role = %q, ожидался %q", p.Role, roles.RoleAdmin)
	}
}

// TestPrincipalService_UpdateRole_NotFound проверяет отсутствие записи.
func TestPrincipalService_UpdateRole_NotFound(t *testing.T) {
	svc := newPrincipalService(&mockPrincipalRepo{})

	_, err := svc.UpdateRole(context.Background(), adminActor(), "id-ghost", roles.RoleUser)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// --- Тесты Delete ---

// TestPrincipalService_Delete проверяет удаление и инвалидацию кэша.
func TestPrincipalService_Delete(t *testing.T) {
	resolveCount := 0
	deleted := ""
	repo := &mockPrincipalRepo{
		getByIDFn: func(_ context.Context, id string) (*model.Principal, error) {
			return &model.Principal{ID: id, Identifier: "user@test.com", Role: roles.RoleUser}, nil
		},
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			resolveCount++
			return &model.Principal{ID: "id-user", Identifier: "user@test.com", Role: roles.RoleUser}, nil
		},
		deleteFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newPrincipalService(repo)

	// Прогреваем кэш
	if _, err := svc.Resolve(context.Background(), "user@test.com"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}

	if err := svc.Delete(context.Background(), adminActor(), "id-user"); err != nil {
		t.Fatalf("Delete ошибка: %v", err)
	}
	if deleted != "id-user" {
		t.Errorf("удалён %q, ожидался %q", deleted, "id-user")
	}

	// Отзыв доступа действует сразу: кэш инвалидирован
	if _, err := svc.Resolve(context.Background(), "user@test.com"); err != nil {
		t.Fatalf("Resolve ошибка: %v", err)
	}
	if resolveCount != 2 {
		t.Errorf("repo.GetByIdentifier вызван %d раз, ожидался 2 (кэш инвалидирован)", resolveCount)
	}
}

// TestPrincipalService_Delete_Self проверяет запрет удаления собственной записи.
func TestPrincipalService_Delete_Self(t *testing.T) {
	repoCalled := false
	repo := &mockPrincipalRepo{
		deleteFn: func(_ context.Context, _ string) error {
			repoCalled = true
			return nil
		},
	}
	svc := newPrincipalService(repo)

	actor := adminActor()
	err := svc.Delete(context.Background(), actor, actor.ID)
	if !errors.Is(err, ErrSelfDeletion) {
		t.Errorf("ошибка = %v, ожидалась ErrSelfDeletion", err)
	}
	if repoCalled {
		t.Error("repo.Delete вызван при самоудалении")
	}
}

// TestPrincipalService_Delete_NotFound проверяет отсутствие записи.
func TestPrincipalService_Delete_NotFound(t *testing.T) {
	svc := newPrincipalService(&mockPrincipalRepo{})

	err := svc.Delete(context.Background(), adminActor(), "id-ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// --- Тесты Bootstrap ---

// TestPrincipalService_Bootstrap_Disabled проверяет, что пустой идентификатор
// отключает механизм без обращений к БД.
func TestPrincipalService_Bootstrap_Disabled(t *testing.T) {
	repoCalled := false
	repo := &mockPrincipalRepo{
		countAdminsFn: func(_ context.Context) (int, error) {
			repoCalled = true
			return 0, nil
		},
	}
	svc := newPrincipalService(repo)

	if err := svc.Bootstrap(context.Background(), "  "); err != nil {
		t.Fatalf("Bootstrap ошибка: %v", err)
	}
	if repoCalled {
		t.Error("repo.CountAdmins вызван при пустом идентификаторе")
	}
}

// TestPrincipalService_Bootstrap_AdminExists проверяет пропуск, когда
// администратор уже есть.
func TestPrincipalService_Bootstrap_AdminExists(t *testing.T) {
	createCalled := false
	repo := &mockPrincipalRepo{
		countAdminsFn: func(_ context.Context) (int, error) { return 1, nil },
		createFn: func(_ context.Context, _ *model.Principal) error {
			createCalled = true
			return nil
		},
	}
	svc := newPrincipalService(repo)

	if err := svc.Bootstrap(context.Background(), "boot@test.com"); err != nil {
		t.Fatalf("Bootstrap ошибка: %v", err)
	}
	if createCalled {
		t.Error("repo.Create вызван, хотя администратор уже есть")
	}
}

// TestPrincipalService_Bootstrap_CreatesAdmin проверяет создание стартового
// администратора от имени system.
func TestPrincipalService_Bootstrap_CreatesAdmin(t *testing.T) {
	var created *model.Principal
	repo := &mockPrincipalRepo{
		countAdminsFn: func(_ context.Context) (int, error) { return 0, nil },
		createFn: func(_ context.Context, p *model.Principal) error {
			p.ID = "id-boot"
			created = p
			return nil
		},
	}
	svc := newPrincipalService(repo)

	if err := svc.Bootstrap(context.Background(), "boot@test.com"); err != nil {
		t.Fatalf("Bootstrap ошибка: %v", err)
	}
	if created == nil {
		t.Fatal("repo.Create не вызван")
	}
	if created.Role != roles.RoleAdmin {
		t.Errorf("Role = %q, ожидался %q", created.Role, roles.RoleAdmin)
	}
	if created.RegisteredBy != registeredBySystem {
		t.Errorf("RegisteredBy = %q, ожидался %q", created.RegisteredBy, registeredBySystem)
	}
}

// TestPrincipalService_Bootstrap_PromotesExisting проверяет повышение
// существующей записи user до admin.
func TestPrincipalService_Bootstrap_PromotesExisting(t *testing.T) {
	promotedRole := ""
	repo := &mockPrincipalRepo{
		countAdminsFn: func(_ context.Context) (int, error) { return 0, nil },
		getByIdentifierFn: func(_ context.Context, _ string) (*model.Principal, error) {
			return &model.Principal{ID: "id-user", Identifier: "boot@test.com", Role: roles.RoleUser}, nil
		},
		updateRoleFn: func(_ context.Context, id, role string) (*model.Principal, error) {
			promotedRole = role
			return &model.Principal{ID: id, Identifier: "boot@test.com", Role: role}, nil
		},
	}
	svc := newPrincipalService(repo)

	if err := svc.Bootstrap(context.Background(), "boot@test.com"); err != nil {
		t.Fatalf("Bootstrap ошибка: %v", err)
	}
	if promotedRole != roles.RoleAdmin {
		t.Errorf("повышение до %q, ожидался %q", promotedRole, roles.RoleAdmin)
	}
}

// --- Тесты isValidIdentifier ---

// TestIsValidIdentifier проверяет валидацию идентификатора.
func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		want       bool
	}{
		{"user@example.com", true},
		{"a@b", true},
		{"user.name+tag@sub.example.com", true},
		{"", false},
		{"user", false},
		{"@example.com", false},
		{"user@", false},
		{"user@@example.com", false},
		{"us er@example.com", false},
		{"user\t@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			if got := isValidIdentifier(tt.identifier); got != tt.want {
				t.Errorf("isValidIdentifier(%q) = %v, ожидался %v", tt.identifier, got, tt.want)
			}
		})
	}
}
