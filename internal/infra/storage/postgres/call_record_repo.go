package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/storage"
)

const recordColumns = 11

// CallRecordRepo implements storage.CallRecordRepository on PostgreSQL.
type CallRecordRepo struct {
	db *sqlx.DB
}

func NewCallRecordRepo(db *DB) *CallRecordRepo {
	return &CallRecordRepo{db: db.DB}
}

// InsertBatch writes records with one multi-row INSERT.
// Rows whose id already exists are skipped.
func (r *CallRecordRepo) InsertBatch(ctx context.Context, records []domain.CallRecord) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO call_records
		(id, kind, success, failure_kind, status_code, attempts, volume, elapsed_ms, cost, error, created_at)
		VALUES `)

	args := make([]any, 0, len(records)*recordColumns)
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * recordColumns
		b.WriteString("(")
		for j := 1; j <= recordColumns; j++ {
			if j > 1 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", base+j)
		}
		b.WriteString(")")

		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		args = append(args,
			rec.ID, string(rec.Kind), rec.Success, string(rec.FailureKind), rec.StatusCode,
			rec.Attempts, rec.Volume, rec.ElapsedMs, rec.Cost, rec.Error, createdAt,
		)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert call records: %w", err)
	}
	return nil
}

func (r *CallRecordRepo) GetByID(ctx context.Context, id string) (*domain.CallRecord, error) {
	var rec domain.CallRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM call_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call record: %w", err)
	}
	return &rec, nil
}

func (r *CallRecordRepo) List(ctx context.Context, q storage.RecordQuery) ([]domain.CallRecord, error) {
	where, args := whereClause(q)
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT * FROM call_records %s ORDER BY created_at DESC LIMIT $%d`, where, len(args))

	var out []domain.CallRecord
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	return out, nil
}

func (r *CallRecordRepo) Summarize(ctx context.Context, q storage.RecordQuery) ([]domain.KindSummary, error) {
	where, args := whereClause(q)
	query := fmt.Sprintf(`
		SELECT
			kind,
			COUNT(*) AS total_requests,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failure_count,
			COALESCE(SUM(volume), 0) AS total_volume,
			COALESCE(SUM(cost), 0) AS total_cost,
			COALESCE(AVG(elapsed_ms), 0) AS avg_elapsed_ms
		FROM call_records %s
		GROUP BY kind
		ORDER BY kind`, where)

	var out []domain.KindSummary
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("summarize call records: %w", err)
	}
	return out, nil
}

func (r *CallRecordRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM call_records WHERE created_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("delete call records: %w", err)
	}
	return res.RowsAffected()
}

func whereClause(q storage.RecordQuery) (string, []any) {
	var conds []string
	var args []any
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if q.Kind != "" {
		args = append(args, string(q.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
