package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type refundRepository struct {
	db *sql.DB
}

// NewRefundRepository создаёт PostgreSQL-реализацию RefundRepository.
func NewRefundRepository(store *Store) domain.RefundRepository {
	return &refundRepository{db: store.DB()}
}

func (r *refundRepository) Create(refund domain.Refund) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}

	// UNIQUE(order_id) в схеме — второй запрос по тому же заказу
	// упирается в индекс, а не в данные.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refunds (
			id, order_id, user_id, reason, status, approver_id, processed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		refund.ID, refund.OrderID, refund.UserID, refund.Reason, string(refund.Status),
		refund.ApproverID, nullableTime(refund.ProcessedAt), refund.CreatedAt, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRefund
		}
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

func (r *refundRepository) GetByOrder(orderID string) (domain.Refund, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var refund domain.Refund
	var status string
	var processedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, reason, status, approver_id, processed_at, created_at, updated_at
		FROM refunds
		WHERE order_id = $1
	`, orderID).Scan(
		&refund.ID, &refund.OrderID, &refund.UserID, &refund.Reason, &status,
		&refund.ApproverID, &processedAt, &refund.CreatedAt, &refund.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Refund{}, domain.ErrRefundNotFound
		}
		return domain.Refund{}, fmt.Errorf("select refund: %w", err)
	}
	refund.Status = domain.RefundStatus(status)
	if processedAt.Valid {
		refund.ProcessedAt = processedAt.Time
	}
	return refund, nil
}

func (r *refundRepository) Save(refund domain.Refund) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE refunds
		SET status = $1,
		    approver_id = $2,
		    processed_at = $3,
		    updated_at = NOW()
		WHERE order_id = $4
	`,
		string(refund.Status), refund.ApproverID, nullableTime(refund.ProcessedAt), refund.OrderID,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrRefundNotFound
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

var _ domain.RefundRepository = (*refundRepository)(nil)
