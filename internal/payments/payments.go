// Package payments records payment attempts against orders.
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// RecordPaid upserts the payment row for a gateway transaction and marks
// it paid. The unique index on gateway_transaction_id makes a webhook
// redelivery converge on the same row instead of creating a duplicate.
func (c *Conf) RecordPaid(ctx context.Context, orderID, gatewayTxnID string, amount int64, currency string) (*Payment, error) {
	paymentID := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, currency, status, gateway_transaction_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (gateway_transaction_id) WHERE gateway_transaction_id IS NOT NULL
		DO UPDATE SET status = $5, paid_at = NOW(), updated_at = NOW()
	`, paymentID, orderID, amount, currency, StatusPaid, gatewayTxnID)
	if err != nil {
		return nil, fmt.Errorf("record paid payment: %w", err)
	}
	return c.GetByGatewayTxn(ctx, gatewayTxnID)
}

// RecordFailed upserts the payment row for a failed gateway transaction.
func (c *Conf) RecordFailed(ctx context.Context, orderID, gatewayTxnID string, amount int64, currency string) (*Payment, error) {
	paymentID := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, currency, status, gateway_transaction_id, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (gateway_transaction_id) WHERE gateway_transaction_id IS NOT NULL
		DO UPDATE SET status = $5, failed_at = NOW(), updated_at = NOW()
	`, paymentID, orderID, amount, currency, StatusFailed, gatewayTxnID)
	if err != nil {
		return nil, fmt.Errorf("record failed payment: %w", err)
	}
	return c.GetByGatewayTxn(ctx, gatewayTxnID)
}

// RecordRefund stores the gateway's cumulative refunded total for the
// payment. The gateway reports the running total per charge, not a delta,
// so the amount is assigned rather than added; a redelivered refund event
// carrying the same total converges on the same row.
func (c *Conf) RecordRefund(ctx context.Context, gatewayTxnID string, totalRefunded int64) (*Payment, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback()

	var (
		amount int64
		status string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT amount, status FROM payments WHERE gateway_transaction_id = $1 FOR UPDATE`, gatewayTxnID,
	).Scan(&amount, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("lock payment %s: %w", gatewayTxnID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET refund_amount = $1,
		    status = $2,
		    refunded_at = NOW(),
		    updated_at = NOW()
		WHERE gateway_transaction_id = $3
	`, totalRefunded, refundStatus(status, amount, totalRefunded), gatewayTxnID)
	if err != nil {
		return nil, fmt.Errorf("record refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refund: %w", err)
	}
	return c.GetByGatewayTxn(ctx, gatewayTxnID)
}

// refundStatus flips the payment to refunded once the cumulative refunded
// total covers the captured amount; partial refunds keep the current
// status.
func refundStatus(current string, amount, totalRefunded int64) string {
	if totalRefunded >= amount {
		return StatusRefunded
	}
	return current
}

// GetByGatewayTxn fetches a payment by its gateway transaction id.
func (c *Conf) GetByGatewayTxn(ctx context.Context, gatewayTxnID string) (*Payment, error) {
	query := `
		SELECT id, order_id, amount, currency, status, COALESCE(gateway_transaction_id, ''),
		       refund_amount, paid_at, failed_at, refunded_at, created_at, updated_at
		FROM payments
		WHERE gateway_transaction_id = $1
	`
	var p Payment
	err := c.db.QueryRowContext(ctx, query, gatewayTxnID).Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Status, &p.GatewayTransactionID,
		&p.RefundAmount, &p.PaidAt, &p.FailedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("query payment %s: %w", gatewayTxnID, err)
	}
	return &p, nil
}
