package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// AuditStore implements domain.AuditStore on the execution_audit table.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Record appends one audit row.
func (s *AuditStore) Record(ctx context.Context, rec domain.AuditRecord) error {
	const query = `
		INSERT INTO execution_audit (ts, symbol, direction, outcome, attempts, rejection_reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`
	_, err := s.pool.Exec(ctx, query,
		rec.Timestamp, rec.Symbol, string(rec.Direction),
		rec.Outcome, rec.Attempts, rec.RejectionReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: record audit %s/%s: %w", rec.Symbol, rec.Outcome, err)
	}
	return nil
}

// List returns audit rows newest-first with pagination and optional time
// filtering.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditRecord, error) {
	query := `SELECT id, ts, symbol, direction, outcome, attempts, COALESCE(rejection_reason, '')
		FROM execution_audit WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit records: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// ListBefore returns rows strictly older than the cutoff, oldest first,
// for archival.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditRecord, error) {
	const query = `SELECT id, ts, symbol, direction, outcome, attempts, COALESCE(rejection_reason, '')
		FROM execution_audit WHERE ts < $1 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit records before %s: %w", before, err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// DeleteBefore removes archived rows strictly older than the cutoff.
func (s *AuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM execution_audit WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete audit records before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

type auditRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAuditRows(rows auditRows) ([]domain.AuditRecord, error) {
	var recs []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var direction string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &direction,
			&rec.Outcome, &rec.Attempts, &rec.RejectionReason); err != nil {
			return nil, fmt.Errorf("postgres: scan audit record: %w", err)
		}
		rec.Direction = domain.SignalDirection(direction)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: audit rows: %w", err)
	}
	return recs, nil
}
