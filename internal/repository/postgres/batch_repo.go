package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/helixcare/portal-core/internal/audit"
)

type BatchRepo struct {
	db *sql.DB
}

func NewBatchRepo(db *sql.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// CreateBatch — запись батча однократная: после запечатывания батч
// не мутируется и не удаляется.
func (r *BatchRepo) CreateBatch(ctx context.Context, b audit.Batch) (audit.Batch, error) {
	b.ID = uuid.NewString()

	query := `
		INSERT INTO audit_batches (id, created_at, merkle_root, anchor_ref, status, member_count)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.ExecContext(ctx, query,
		b.ID, b.CreatedAt, b.MerkleRoot, b.AnchorRef, string(b.Status), b.MemberCount,
	); err != nil {
		return audit.Batch{}, fmt.Errorf("%w: create batch: %v", audit.ErrStoreUnavailable, err)
	}
	return b, nil
}

func (r *BatchRepo) GetBatch(ctx context.Context, id string) (audit.Batch, error) {
	query := `
		SELECT id, created_at, merkle_root, anchor_ref, status, member_count
		FROM audit_batches WHERE id = $1`

	var b audit.Batch
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.CreatedAt, &b.MerkleRoot, &b.AnchorRef, &status, &b.MemberCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Batch{}, fmt.Errorf("%w: batch %s", audit.ErrNotFound, id)
	}
	if err != nil {
		return audit.Batch{}, fmt.Errorf("%w: get batch: %v", audit.ErrStoreUnavailable, err)
	}
	b.Status = audit.BatchStatus(status)
	return b, nil
}

func (r *BatchRepo) ListBatches(ctx context.Context, limit int) ([]audit.Batch, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, created_at, merkle_root, anchor_ref, status, member_count
		FROM audit_batches ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list batches: %v", audit.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var batches []audit.Batch
	for rows.Next() {
		var b audit.Batch
		var status string
		if err := rows.Scan(&b.ID, &b.CreatedAt, &b.MerkleRoot, &b.AnchorRef, &status, &b.MemberCount); err != nil {
			return nil, fmt.Errorf("%w: scan batch: %v", audit.ErrStoreUnavailable, err)
		}
		b.Status = audit.BatchStatus(status)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
