// Package orders owns the order state machine. Every transition runs in
// one database transaction that also applies the matching inventory
// mutation; domain events are published only after the transaction
// commits.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-processing-service/internal/events"
	"order-processing-service/internal/jobs"
	"order-processing-service/internal/products"
)

type Conf struct {
	db         *sql.DB
	ledger     *products.Conf
	jobs       *jobs.Conf
	dispatcher *events.Dispatcher
	nowFunc    func() time.Time
}

func NewConf(db *sql.DB, ledger *products.Conf, jobStore *jobs.Conf, dispatcher *events.Dispatcher) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if ledger == nil || jobStore == nil || dispatcher == nil {
		return nil, fmt.Errorf("missing dependency")
	}
	return &Conf{
		db:         db,
		ledger:     ledger,
		jobs:       jobStore,
		dispatcher: dispatcher,
		nowFunc:    time.Now,
	}, nil
}

// FulfillmentPayload is the job payload for fulfillment submission. The
// order itself is re-hydrated by id inside the job handler.
type FulfillmentPayload struct {
	OrderID string `json:"order_id"`
}

// CreateOrder persists the order and its item snapshots in one
// transaction and publishes order-created after commit.
func (c *Conf) CreateOrder(ctx context.Context, no NewOrder) (*Order, error) {
	if len(no.Items) == 0 {
		return nil, fmt.Errorf("order %s has no items", no.ID)
	}

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, status, payment_status, subtotal, discount, total, currency, coupon_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		`, no.ID, no.UserID, StatusPending, PaymentUnpaid, no.Subtotal, no.Discount, no.Total, no.Currency, no.CouponCode)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range no.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, variant_id, name, sku, unit_price, quantity)
				VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
			`, no.ID, item.ProductID, item.VariantID, item.Name, item.SKU, item.UnitPrice, item.Quantity)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Built from the committed input, not a read-back, so the created
	// event survives a transient read failure.
	now := c.nowFunc().UTC()
	created := &events.OrderCreated{
		OrderID:    no.ID,
		UserID:     no.UserID,
		Subtotal:   no.Subtotal,
		Discount:   no.Discount,
		Total:      no.Total,
		Currency:   no.Currency,
		CouponCode: no.CouponCode,
		CreatedAt:  now,
	}
	for _, item := range no.Items {
		created.Items = append(created.Items, events.OrderCreatedItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	c.dispatcher.Publish(ctx, events.Event{
		Kind:         events.KindOrderCreated,
		OccurredAt:   now,
		OrderCreated: created,
	})

	return c.GetOrder(ctx, no.ID)
}

// UpdateStatus applies one transition of the state machine.
//
// The order row is locked for the duration of the transaction, the
// transition is validated against the table, and the inventory effect for
// the (old, new) pair is applied through the ledger in the same
// transaction. A redelivered transition (new status equals current) is a
// no-op. Events are published only after commit.
func (c *Conf) UpdateStatus(ctx context.Context, orderID, to string) (*Order, error) {
	var (
		from       string
		userID     string
		oos        []products.OutOfStock
		orderItems []OrderItem
		noop       bool
	)

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT status, user_id FROM orders WHERE id = $1 FOR UPDATE`, orderID,
		).Scan(&from, &userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order %s: %w", orderID, err)
		}

		if from == to {
			// at-least-once redelivery of a transition already applied
			noop = true
			return nil
		}
		if !canTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		orderItems, err = c.itemsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		lines := toLines(orderItems)

		switch stockEffectFor(from, to) {
		case effectReserve:
			if err := c.ledger.ReserveTx(ctx, tx, lines); err != nil {
				return err
			}
		case effectReduce:
			oos, err = c.ledger.ReduceTx(ctx, tx, lines)
			if err != nil {
				return err
			}
		case effectRestore:
			if err := c.ledger.RestoreTx(ctx, tx, lines); err != nil {
				return err
			}
		case effectRelease:
			if err := c.ledger.ReleaseTx(ctx, tx, lines); err != nil {
				return err
			}
		}

		// Processing means fulfillment work is owed, on first entry and
		// on a retry out of failed alike.
		if to == StatusProcessing {
			_, err := c.jobs.EnqueueTx(ctx, tx, jobs.KindFulfillmentSubmit, orderID, FulfillmentPayload{OrderID: orderID})
			if err != nil {
				return err
			}
		}

		query := fmt.Sprintf(
			`UPDATE orders SET status = $1, %s updated_at = NOW() WHERE id = $2`,
			timestampClause(to),
		)
		if _, err := tx.ExecContext(ctx, query, to, orderID); err != nil {
			return fmt.Errorf("update order %s status: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Published from data captured inside the transaction: the events for
	// a committed transition must go out even if the read-back below hits
	// a transient error.
	if !noop {
		c.publishTransition(ctx, orderID, userID, from, to, oos)
	}

	return c.GetOrder(ctx, orderID)
}

func (c *Conf) publishTransition(ctx context.Context, orderID, userID, from, to string, oos []products.OutOfStock) {
	now := c.nowFunc().UTC()
	c.dispatcher.Publish(ctx, events.Event{
		Kind:       events.KindOrderStatusChange,
		OccurredAt: now,
		OrderStatusChange: &events.OrderStatusChange{
			OrderID:   orderID,
			UserID:    userID,
			OldStatus: from,
			NewStatus: to,
			ChangedAt: now,
		},
	})
	for _, p := range oos {
		c.dispatcher.Publish(ctx, events.Event{
			Kind:       events.KindProductOutOfStock,
			OccurredAt: now,
			ProductOutOfStock: &events.ProductOutOfStock{
				ProductID: p.ProductID,
				SKU:       p.SKU,
				OrderID:   orderID,
				At:        now,
			},
		})
	}
}

// timestampClause returns the extra SET fragment stamping the transition
// time onto its dedicated column.
func timestampClause(to string) string {
	switch to {
	case StatusProcessing:
		return "processed_at = NOW(),"
	case StatusConfirmed:
		return "confirmed_at = NOW(),"
	case StatusShipped:
		return "shipped_at = NOW(),"
	case StatusDelivered:
		return "delivered_at = NOW(),"
	case StatusCancelled:
		return "cancelled_at = NOW(),"
	}
	return ""
}

// GetOrder fetches an order with its item snapshots using explicit
// queries; nothing is lazily loaded later.
func (c *Conf) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	query := `
		SELECT id, user_id, status, payment_status, subtotal, discount, total, currency,
		       COALESCE(coupon_code, ''), COALESCE(fulfillment_id, ''),
		       processed_at, confirmed_at, shipped_at, delivered_at, cancelled_at,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	var o Order
	err := c.db.QueryRowContext(ctx, query, orderID).Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.Subtotal, &o.Discount, &o.Total, &o.Currency,
		&o.CouponCode, &o.FulfillmentID,
		&o.ProcessedAt, &o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order %s: %w", orderID, err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, COALESCE(variant_id::text, ''), name, sku, unit_price, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID,
			&item.Name, &item.SKU, &item.UnitPrice, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return &o, nil
}

// SetFulfillmentID stores the identifier returned by the fulfillment
// collaborator.
func (c *Conf) SetFulfillmentID(ctx context.Context, orderID, fulfillmentID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE orders SET fulfillment_id = $1, updated_at = NOW() WHERE id = $2`,
		fulfillmentID, orderID,
	)
	if err != nil {
		return fmt.Errorf("set fulfillment id on order %s: %w", orderID, err)
	}
	return nil
}

// SetPaymentStatus updates the denormalized payment status on the order.
func (c *Conf) SetPaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`,
		paymentStatus, orderID,
	)
	if err != nil {
		return fmt.Errorf("set payment status on order %s: %w", orderID, err)
	}
	return nil
}

func (c *Conf) itemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]OrderItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, product_id, COALESCE(variant_id::text, ''), name, sku, unit_price, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID,
			&item.Name, &item.SKU, &item.UnitPrice, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func toLines(items []OrderItem) []products.Line {
	lines := make([]products.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, products.Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		er := tx.Rollback()
		if er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}
