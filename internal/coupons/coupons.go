// Package coupons tracks coupon redemption against per-coupon and per-user
// limits. Usage is finalized at order placement and never reversed on
// cancellation.
package coupons

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"order-processing-service/internal/events"
	"order-processing-service/pkg/logkey"
)

type Conf struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db, nowFunc: time.Now}, nil
}

// GetByCode fetches a coupon by its case-normalized code.
func (c *Conf) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, usage_limit, usage_limit_per_user,
		       used_count, is_active, starts_at, expires_at, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`
	var cp Coupon
	err := c.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(
		&cp.ID, &cp.Code, &cp.DiscountType, &cp.DiscountValue, &cp.UsageLimit, &cp.UsageLimitPerUser,
		&cp.UsedCount, &cp.IsActive, &cp.StartsAt, &cp.ExpiresAt, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("query coupon %s: %w", code, err)
	}
	return &cp, nil
}

// ValidateForUser checks whether the coupon may be applied by the user at
// checkout time. Validation errors are surfaced synchronously; nothing is
// mutated here.
func (c *Conf) ValidateForUser(ctx context.Context, code, userID string) (*Coupon, error) {
	cp, err := c.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := c.nowFunc()
	if !cp.IsActive {
		return nil, ErrCouponInactive
	}
	if cp.StartsAt != nil && now.Before(*cp.StartsAt) {
		return nil, ErrCouponExpired
	}
	if cp.ExpiresAt != nil && now.After(*cp.ExpiresAt) {
		return nil, ErrCouponExpired
	}
	if cp.UsageLimit != nil && cp.UsedCount >= *cp.UsageLimit {
		return nil, ErrLimitReached
	}

	if cp.UsageLimitPerUser != nil {
		var userUsed int
		err := c.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
			cp.ID, userID,
		).Scan(&userUsed)
		if err != nil {
			return nil, fmt.Errorf("count user usages: %w", err)
		}
		if userUsed >= *cp.UsageLimitPerUser {
			return nil, ErrLimitReached
		}
	}

	return cp, nil
}

// RecordUsage increments the coupon's used_count and, when the increment
// reaches usage_limit, flips is_active to false in the same update. It
// returns the coupon-used event payload for the dispatcher.
//
// A coupon that cannot be found is a logged no-op: usage tracking is
// best-effort relative to order creation and must never block it.
func (c *Conf) RecordUsage(ctx context.Context, code, orderID, userID string, discount int64) (*events.CouponUsed, error) {
	code = strings.ToUpper(code)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		couponID   string
		usedCount  int
		usageLimit sql.NullInt64
		isActive   bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, used_count, usage_limit, is_active FROM coupons WHERE code = $1 FOR UPDATE`, code,
	).Scan(&couponID, &usedCount, &usageLimit, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("coupon not found while recording usage",
				slog.String("code", code), slog.String(logkey.OrderID, orderID))
			return nil, nil
		}
		return nil, fmt.Errorf("lock coupon %s: %w", code, err)
	}

	// Re-check under the row lock: a concurrent order validated against
	// the same last use may have claimed it between checkout validation
	// and here. used_count never passes usage_limit.
	if usageDenied(usedCount, usageLimit, isActive) {
		slog.Warn("coupon usage limit already reached",
			slog.String("code", code), slog.String(logkey.OrderID, orderID),
			slog.Int("used_count", usedCount))
		return nil, nil
	}

	newCount := usedCount + 1
	deactivate := shouldDeactivate(newCount, usageLimit)

	_, err = tx.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = $1,
		    is_active = CASE WHEN $2 THEN FALSE ELSE is_active END,
		    updated_at = NOW()
		WHERE id = $3
	`, newCount, deactivate, couponID)
	if err != nil {
		return nil, fmt.Errorf("update coupon %s: %w", couponID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_usages (coupon_id, order_id, user_id, discount)
		VALUES ($1, $2, $3, $4)
	`, couponID, orderID, userID, discount)
	if err != nil {
		return nil, fmt.Errorf("insert coupon usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit usage: %w", err)
	}

	ev := &events.CouponUsed{
		CouponID:  couponID,
		Code:      code,
		OrderID:   orderID,
		Discount:  discount,
		UsedCount: newCount,
		UsedAt:    c.nowFunc().UTC(),
	}
	if usageLimit.Valid {
		ev.UsageLimit = int(usageLimit.Int64)
	}
	return ev, nil
}

// shouldDeactivate reports whether reaching newCount uses exhausts the
// limit. A NULL limit means unlimited.
func shouldDeactivate(newCount int, usageLimit sql.NullInt64) bool {
	return usageLimit.Valid && int64(newCount) >= usageLimit.Int64
}

// usageDenied reports whether a locked coupon row can accept no further
// usage: it was already deactivated, or used_count has reached the limit.
func usageDenied(usedCount int, usageLimit sql.NullInt64, isActive bool) bool {
	if !isActive {
		return true
	}
	return usageLimit.Valid && int64(usedCount) >= usageLimit.Int64
}
