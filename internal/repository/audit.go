package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/bucketgate/internal/domain/model"
)

// AuditRepository — журнал активности: только добавление, чтение в
// обратном хронологическом порядке, вытеснение старых записей сверх
// лимита хранения.
type AuditRepository interface {
	// AppendAndPrune добавляет запись и в той же транзакции удаляет
	// записи сверх keep последних, чтобы лимит хранения соблюдался
	// без фонового процесса.
	AppendAndPrune(ctx context.Context, rec *model.AuditRecord, keep int) error
	// List возвращает записи в порядке убывания времени.
	List(ctx context.Context, limit, offset int) ([]*model.AuditRecord, error)
	// Count возвращает количество записей журнала.
	Count(ctx context.Context) (int, error)
}

// auditRepo — реализация AuditRepository.
// Конструктор принимает пул, а не DBTX: репозиторий сам управляет
// транзакцией добавления с обрезкой.
type auditRepo struct {
	db DBTX
	tx *TxRunner
}

// NewAuditRepository создаёт репозиторий журнала активности.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepo{db: pool, tx: NewTxRunner(pool)}
}

const auditColumns = `id, principal_id, action, object_key, object_size, outcome, detail, created_at`

func (r *auditRepo) AppendAndPrune(ctx context.Context, rec *model.AuditRecord, keep int) error {
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := appendRecord(ctx, tx, rec); err != nil {
			return err
		}
		return pruneRecords(ctx, tx, keep)
	})
}

// appendRecord вставляет запись журнала.
func appendRecord(ctx context.Context, db DBTX, rec *model.AuditRecord) error {
	query := `
		INSERT INTO audit_records (principal_id, action, object_key, object_size, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := db.QueryRow(ctx, query,
		rec.PrincipalID, rec.Action, rec.ObjectKey, rec.ObjectSize, rec.Outcome, rec.Detail,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка добавления записи журнала: %w", err)
	}
	return nil
}

// pruneRecords удаляет записи сверх keep последних (старые — первыми).
func pruneRecords(ctx context.Context, db DBTX, keep int) error {
	query := `
		DELETE FROM audit_records
		WHERE id NOT IN (
			SELECT id FROM audit_records
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		)`

	if _, err := db.Exec(ctx, query, keep); err != nil {
		return fmt.Errorf("ошибка обрезки журнала: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, limit, offset int) ([]*model.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, auditColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditRecord
	for rows.Next() {
		rec := &model.AuditRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.PrincipalID, &rec.Action, &rec.ObjectKey,
			&rec.ObjectSize, &rec.Outcome, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *auditRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
