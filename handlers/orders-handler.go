package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"order-processing-service/internal/auth"
	"order-processing-service/internal/coupons"
	"order-processing-service/internal/orders"
	"order-processing-service/internal/products"
	"order-processing-service/pkg/ctxmanage"
	"order-processing-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

var validate = validator.New()

type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id" validate:"omitempty,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CheckoutRequest struct {
	Items      []CheckoutItem `json:"items" validate:"required,min=1,dive"`
	CouponCode string         `json:"coupon_code" validate:"omitempty,min=1,max=64"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=processing confirmed shipped delivered cancelled refunded failed"`
}

func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		slog.Error("checkout validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid checkout payload"})
		return
	}

	ctx := c.Request.Context()

	// Snapshot name, sku and unit price per line now. Later price edits on
	// the catalog never change what this order charges.
	var (
		items    []orders.NewOrderItem
		subtotal int64
		currency string
	)
	lineItems := []*stripe.CheckoutSessionLineItemParams{}
	for _, item := range req.Items {
		product, err := h.p.GetProductByID(ctx, item.ProductID)
		if err != nil {
			slog.Error("product lookup failed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.ProductID, item.ProductID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid product in order"})
			return
		}

		name, sku, price := product.Name, product.SKU, product.Price
		available := product.Quantity - product.ReservedQuantity
		if item.VariantID != "" {
			variant, err := h.p.GetVariantByID(ctx, item.VariantID)
			if err != nil || variant.ProductID != product.ID {
				slog.Error("variant lookup failed", slog.String(logkey.TraceID, traceId),
					slog.String(logkey.ProductID, item.ProductID))
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid product variant in order"})
				return
			}
			name, sku, price = variant.Name, variant.SKU, variant.Price
			available = variant.Quantity - variant.ReservedQuantity
		}
		if available < item.Quantity {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "insufficient stock for " + sku})
			return
		}

		if currency == "" {
			currency = product.Currency
		}
		subtotal += price * int64(item.Quantity)
		items = append(items, orders.NewOrderItem{
			ProductID: product.ID,
			VariantID: item.VariantID,
			Name:      name,
			SKU:       sku,
			UnitPrice: price,
			Quantity:  item.Quantity,
		})

		li := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
		}
		if item.VariantID == "" && product.StripePriceID != "" {
			li.Price = stripe.String(product.StripePriceID)
		} else {
			li.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(currency)),
				UnitAmount: stripe.Int64(price),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			}
		}
		lineItems = append(lineItems, li)
	}

	var (
		discount   int64
		couponCode string
	)
	if req.CouponCode != "" {
		coupon, err := h.c.ValidateForUser(ctx, req.CouponCode, claims.Subject)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, coupons.ErrCouponNotFound) {
				status = http.StatusNotFound
			}
			slog.Error("coupon validation failed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(status, gin.H{"error": "coupon cannot be applied"})
			return
		}
		discount = coupon.Discount(subtotal)
		couponCode = coupon.Code
	}
	total := subtotal - discount

	sKey := os.Getenv("STRIPE_TEST_KEY")
	if sKey == "" {
		slog.Error("Stripe secret key not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Stripe secret key not found"})
		return
	}
	stripe.Key = sKey

	orderId := uuid.NewString()
	params := &stripe.CheckoutSessionParams{
		SubmitType:               stripe.String("pay"),
		Currency:                 stripe.String(strings.ToLower(currency)),
		BillingAddressCollection: stripe.String("auto"),
		LineItems:                lineItems,
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:               stripe.String("https://example.com/success"),
		CancelURL:                stripe.String("https://example.com/cancel"),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id": orderId,
				"user_id":  claims.Subject,
			},
		},
	}
	sessionStripe, err := session.New(params)
	if err != nil {
		slog.Error("error creating Stripe checkout session", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Stripe checkout session"})
		return
	}

	order, err := h.o.CreateOrder(ctx, orders.NewOrder{
		ID:         orderId,
		UserID:     claims.Subject,
		Items:      items,
		Subtotal:   subtotal,
		Discount:   discount,
		Total:      total,
		Currency:   currency,
		CouponCode: couponCode,
	})
	if err != nil {
		slog.Error("error creating order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":             order.ID,
		"checkout_session_url": sessionStripe.URL,
	})
}

func (h *Handler) GetOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	order, err := h.o.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		slog.Error("error fetching order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, c.Param("id")), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	if order.UserID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder lets the owner cancel their own order. Whether the stock
// comes back as a released hold or a restored quantity depends on how far
// the order had progressed; the state machine decides.
func (h *Handler) CancelOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	orderId := c.Param("id")

	order, err := h.o.GetOrder(c.Request.Context(), orderId)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}
	if order.UserID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	updated, err := h.o.UpdateStatus(c.Request.Context(), orderId, orders.StatusCancelled)
	if err != nil {
		if errors.Is(err, orders.ErrInvalidTransition) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "order can no longer be cancelled"})
			return
		}
		slog.Error("error cancelling order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel order"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// UpdateOrderStatus is the admin entry point for driving an order through
// the state machine.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	orderId := c.Param("id")

	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	order, err := h.o.UpdateStatus(c.Request.Context(), orderId, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, products.ErrInsufficientStock):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "insufficient stock"})
		default:
			slog.Error("error updating order status", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order status"})
		}
		return
	}
	c.JSON(http.StatusOK, order)
}
