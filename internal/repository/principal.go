package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/bucketgate/internal/domain/model"
)

// PrincipalRepository — интерфейс CRUD для таблицы principals (allow-list).
type PrincipalRepository interface {
	// Create создаёт запись принципала. Дубликат идентификатора
	// (без учёта регистра) — ErrConflict.
	Create(ctx context.Context, p *model.Principal) error
	// GetByID возвращает принципала по UUID.
	GetByID(ctx context.Context, id string) (*model.Principal, error)
	// GetByIdentifier возвращает принципала по идентификатору
	// без учёта регистра.
	GetByIdentifier(ctx context.Context, identifier string) (*model.Principal, error)
	// List возвращает все записи allow-list в порядке создания.
	List(ctx context.Context) ([]*model.Principal, error)
	// UpdateRole меняет роль принципала и возвращает обновлённую запись.
	UpdateRole(ctx context.Context, id, role string) (*model.Principal, error)
	// Delete удаляет запись по UUID.
	Delete(ctx context.Context, id string) error
	// CountAdmins возвращает количество администраторов в allow-list.
	CountAdmins(ctx context.Context) (int, error)
}

// principalRepo — реализация PrincipalRepository.
type principalRepo struct {
	db DBTX
}

// NewPrincipalRepository создаёт репозиторий принципалов.
func NewPrincipalRepository(db DBTX) PrincipalRepository {
	return &principalRepo{db: db}
}

const principalColumns = `id, identifier, role, registered_by, registered_at, updated_at`

func (r *principalRepo) Create(ctx context.Context, p *model.Principal) error {
	query := `
		INSERT INTO principals (identifier, role, registered_by)
		VALUES ($1, $2, $3)
		RETURNING id, registered_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.Identifier, p.Role, p.RegisteredBy,
	).Scan(&p.ID, &p.RegisteredAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания принципала: %w", err)
	}
	return nil
}

func (r *principalRepo) GetByID(ctx context.Context, id string) (*model.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE id = $1`, principalColumns)

	p := &model.Principal{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Identifier, &p.Role, &p.RegisteredBy, &p.RegisteredAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения принципала: %w", err)
	}
	return p, nil
}

func (r *principalRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM principals WHERE LOWER(identifier) = LOWER($1)`, principalColumns)

	p := &model.Principal{}
	err := r.db.QueryRow(ctx, query, identifier).Scan(
		&p.ID, &p.Identifier, &p.Role, &p.RegisteredBy, &p.RegisteredAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска принципала по идентификатору: %w", err)
	}
	return p, nil
}

func (r *principalRepo) List(ctx context.Context) ([]*model.Principal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM principals
		ORDER BY registered_at ASC, identifier ASC`, principalColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка принципалов: %w", err)
	}
	defer rows.Close()

	var result []*model.Principal
	for rows.Next() {
		p := &model.Principal{}
		if err := rows.Scan(
			&p.ID, &p.Identifier, &p.Role, &p.RegisteredBy, &p.RegisteredAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования принципала: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *principalRepo) UpdateRole(ctx context.Context, id, role string) (*model.Principal, error) {
	query := fmt.Sprintf(`
		UPDATE principals
		SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING %s`, principalColumns)

	p := &model.Principal{}
	err := r.db.QueryRow(ctx, query, id, role).Scan(
		&p.ID, &p.Identifier, &p.Role, &p.RegisteredBy, &p.RegisteredAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления роли принципала: %w", err)
	}
	return p, nil
}

func (r *principalRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления принципала: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *principalRepo) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM principals WHERE role = 'admin'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта администраторов: %w", err)
	}
	return count, nil
}
