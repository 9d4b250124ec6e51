// Package products is the inventory ledger. It owns the committed stock
// (quantity) and the soft hold counter (reserved_quantity) of products and
// their variants.
//
// All mutating operations are transaction scoped: they take the caller's
// *sql.Tx so a whole order's worth of stock changes commits or rolls back
// as one unit, serialized against concurrent confirm/cancel through row
// locks.
package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// GetProductByID fetches a single product row.
func (c *Conf) GetProductByID(ctx context.Context, productID string) (*Product, error) {
	query := `
		SELECT id, name, sku, price, currency, COALESCE(stripe_price_id, ''),
		       quantity, reserved_quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	var p Product
	err := c.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ID, &p.Name, &p.SKU, &p.Price, &p.Currency, &p.StripePriceID,
		&p.Quantity, &p.ReservedQuantity, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query product %s: %w", productID, err)
	}
	return &p, nil
}

// GetVariantByID fetches a single variant row.
func (c *Conf) GetVariantByID(ctx context.Context, variantID string) (*ProductVariant, error) {
	query := `
		SELECT id, product_id, name, sku, price, quantity, reserved_quantity, created_at, updated_at
		FROM product_variants
		WHERE id = $1
	`
	var v ProductVariant
	err := c.db.QueryRowContext(ctx, query, variantID).Scan(
		&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price,
		&v.Quantity, &v.ReservedQuantity, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query variant %s: %w", variantID, err)
	}
	return &v, nil
}

// ReserveTx places a hold on every line's stock. The hold counts against
// available-to-sell (quantity - reserved_quantity); a line that cannot be
// covered fails the whole transaction with ErrInsufficientStock.
//
// The caller must invoke this at most once per order without an
// intervening release; the state machine's transition guards provide that.
func (c *Conf) ReserveTx(ctx context.Context, tx *sql.Tx, lines []Line) error {
	for _, line := range lines {
		table, id := lineTarget(line)

		var quantity, reserved int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT quantity, reserved_quantity FROM %s WHERE id = $1 FOR UPDATE`, table), id,
		).Scan(&quantity, &reserved)
		if err != nil {
			return fmt.Errorf("lock %s %s: %w", table, id, err)
		}

		newReserved, err := hold(quantity, reserved, line.Quantity)
		if err != nil {
			return fmt.Errorf("reserve %s %s: %w", table, id, err)
		}

		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET reserved_quantity = $1, updated_at = NOW() WHERE id = $2`, table),
			newReserved, id,
		)
		if err != nil {
			return fmt.Errorf("update reservation %s %s: %w", table, id, err)
		}
	}
	return nil
}

// ReleaseTx removes the hold placed by ReserveTx, flooring at zero.
func (c *Conf) ReleaseTx(ctx context.Context, tx *sql.Tx, lines []Line) error {
	for _, line := range lines {
		table, id := lineTarget(line)

		var reserved int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT reserved_quantity FROM %s WHERE id = $1 FOR UPDATE`, table), id,
		).Scan(&reserved)
		if err != nil {
			return fmt.Errorf("lock %s %s: %w", table, id, err)
		}

		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET reserved_quantity = $1, updated_at = NOW() WHERE id = $2`, table),
			releaseHold(reserved, line.Quantity), id,
		)
		if err != nil {
			return fmt.Errorf("release reservation %s %s: %w", table, id, err)
		}
	}
	return nil
}

// ReduceTx commits the stock decrement for every line: variant stock is
// decremented and the parent product's quantity recomputed as the sum of
// its variants; products without a variant are decremented directly. The
// hold placed at reservation time is released in the same step.
//
// Returns the products whose stock reached zero so the caller can publish
// out-of-stock events after commit. Any failure leaves the transaction to
// roll back with no partial stock change.
func (c *Conf) ReduceTx(ctx context.Context, tx *sql.Tx, lines []Line) ([]OutOfStock, error) {
	var oos []OutOfStock

	for _, line := range lines {
		if line.VariantID != "" {
			newProductQty, sku, err := c.reduceVariant(ctx, tx, line)
			if err != nil {
				return nil, err
			}
			if outOfStock(newProductQty) {
				oos = append(oos, OutOfStock{ProductID: line.ProductID, SKU: sku})
			}
			continue
		}

		var quantity, reserved int
		var sku string
		err := tx.QueryRowContext(ctx,
			`SELECT quantity, reserved_quantity, sku FROM products WHERE id = $1 FOR UPDATE`, line.ProductID,
		).Scan(&quantity, &reserved, &sku)
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", line.ProductID, err)
		}

		newQty, err := decrement(quantity, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("reduce product %s: %w", line.ProductID, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products SET quantity = $1, reserved_quantity = $2, updated_at = NOW() WHERE id = $3`,
			newQty, releaseHold(reserved, line.Quantity), line.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("update product %s: %w", line.ProductID, err)
		}

		if outOfStock(newQty) {
			oos = append(oos, OutOfStock{ProductID: line.ProductID, SKU: sku})
		}
	}
	return oos, nil
}

// RestoreTx is the mirror of ReduceTx: increments instead of decrements,
// recomputing the parent product's quantity where variants exist. It must
// only run for orders whose stock was previously reduced; the state
// machine's transition table guards that.
func (c *Conf) RestoreTx(ctx context.Context, tx *sql.Tx, lines []Line) error {
	for _, line := range lines {
		if line.VariantID != "" {
			_, err := tx.ExecContext(ctx,
				`UPDATE product_variants SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`,
				line.Quantity, line.VariantID,
			)
			if err != nil {
				return fmt.Errorf("restore variant %s: %w", line.VariantID, err)
			}
			if err := c.recomputeProductQuantity(ctx, tx, line.ProductID); err != nil {
				return err
			}
			continue
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE products SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`,
			line.Quantity, line.ProductID,
		)
		if err != nil {
			return fmt.Errorf("restore product %s: %w", line.ProductID, err)
		}
	}
	return nil
}

func (c *Conf) reduceVariant(ctx context.Context, tx *sql.Tx, line Line) (int, string, error) {
	// Lock the parent first so concurrent operations on sibling variants
	// serialize in a consistent order.
	var sku string
	err := tx.QueryRowContext(ctx,
		`SELECT sku FROM products WHERE id = $1 FOR UPDATE`, line.ProductID,
	).Scan(&sku)
	if err != nil {
		return 0, "", fmt.Errorf("lock product %s: %w", line.ProductID, err)
	}

	var quantity, reserved int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity, reserved_quantity FROM product_variants WHERE id = $1 FOR UPDATE`, line.VariantID,
	).Scan(&quantity, &reserved)
	if err != nil {
		return 0, "", fmt.Errorf("lock variant %s: %w", line.VariantID, err)
	}

	newQty, err := decrement(quantity, line.Quantity)
	if err != nil {
		return 0, "", fmt.Errorf("reduce variant %s: %w", line.VariantID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE product_variants SET quantity = $1, reserved_quantity = $2, updated_at = NOW() WHERE id = $3`,
		newQty, releaseHold(reserved, line.Quantity), line.VariantID,
	)
	if err != nil {
		return 0, "", fmt.Errorf("update variant %s: %w", line.VariantID, err)
	}

	if err := c.recomputeProductQuantity(ctx, tx, line.ProductID); err != nil {
		return 0, "", err
	}

	var productQty int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM products WHERE id = $1`, line.ProductID,
	).Scan(&productQty)
	if err != nil {
		return 0, "", fmt.Errorf("read product %s quantity: %w", line.ProductID, err)
	}
	return productQty, sku, nil
}

// recomputeProductQuantity denormalizes the parent quantity as the sum of
// its variants' quantities.
func (c *Conf) recomputeProductQuantity(ctx context.Context, tx *sql.Tx, productID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = (
			SELECT COALESCE(SUM(quantity), 0) FROM product_variants WHERE product_id = $1
		), updated_at = NOW()
		WHERE id = $1
	`, productID)
	if err != nil {
		return fmt.Errorf("recompute product %s quantity: %w", productID, err)
	}
	return nil
}

func lineTarget(line Line) (table, id string) {
	if line.VariantID != "" {
		return "product_variants", line.VariantID
	}
	return "products", line.ProductID
}

// IsNotFound reports whether an error from the getters means the row does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
