package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"order-processing-service/internal/events"
	"order-processing-service/internal/orders"
	"order-processing-service/internal/payments"
	"order-processing-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
)

// webhookDedupTTL bounds how long a processed gateway event id is
// remembered for redelivery suppression.
const webhookDedupTTL = 24 * time.Hour

// Webhook ingests payment gateway events. Every branch is safe under
// at-least-once redelivery: the cache suppresses exact duplicates
// best-effort, and the payment upserts plus the state machine guards make
// a replay that slips past it converge on the same state.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := uuid.NewString()
	const MaxBodyBytes = int64(65536)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	var event stripe.Event
	err := c.ShouldBindJSON(&event)
	if err != nil {
		slog.Error("failed to bind gateway event", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if h.eventSeen(ctx, traceId, event.ID) {
		slog.Info("duplicate gateway event ignored", slog.String(logkey.TraceID, traceId),
			slog.String("event_id", event.ID))
		c.Status(http.StatusOK)
		return
	}

	var handled bool
	switch event.Type {
	case "payment_intent.succeeded":
		handled = h.paymentSucceeded(c, traceId, event)
	case "payment_intent.payment_failed":
		handled = h.paymentFailed(c, traceId, event)
	case "charge.refunded":
		handled = h.chargeRefunded(c, traceId, event)
	default:
		slog.Info("unhandled gateway event type", slog.String(logkey.TraceID, traceId),
			slog.String("event_type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{
			"message": "Event type not handled",
			"event":   event.Type,
		})
		handled = true
	}

	// Marked only after the event was fully applied. A failed attempt
	// leaves the id unseen so the gateway's redelivery gets processed.
	if handled {
		h.markEventProcessed(ctx, traceId, event)
	}
}

// eventSeen reports whether this gateway event id was already processed.
// A cache error counts as unseen; the payment upserts and state-machine
// guards keep an occasional duplicate harmless.
func (h *Handler) eventSeen(ctx context.Context, traceId, eventID string) bool {
	if eventID == "" {
		return false
	}
	val, err := h.cache.Get(ctx, h.cache.GenerateKey("webhook", eventID))
	if err != nil {
		slog.Error("webhook dedup cache unavailable", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		return false
	}
	return val != ""
}

func (h *Handler) markEventProcessed(ctx context.Context, traceId string, event stripe.Event) {
	if event.ID == "" {
		return
	}
	key := h.cache.GenerateKey("webhook", event.ID)
	if _, err := h.cache.SetIfAbsent(ctx, key, string(event.Type), webhookDedupTTL); err != nil {
		slog.Error("webhook dedup cache unavailable", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
	}
}

func (h *Handler) paymentSucceeded(c *gin.Context, traceId string, event stripe.Event) bool {
	var paymentIntent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
		slog.Error("failed to unmarshal payment intent", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}

	ctx := c.Request.Context()
	orderId := paymentIntent.Metadata["order_id"]
	if orderId == "" {
		slog.Error("payment intent without order id", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.PaymentID, paymentIntent.ID))
		c.Status(http.StatusOK)
		return true
	}
	currency := strings.ToUpper(string(paymentIntent.Currency))

	payment, err := h.pay.RecordPaid(ctx, orderId, paymentIntent.ID, paymentIntent.Amount, currency)
	if err != nil {
		slog.Error("failed to record payment", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return false
	}
	if err := h.o.SetPaymentStatus(ctx, orderId, orders.PaymentPaid); err != nil {
		slog.Error("failed to mark order paid", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
		return false
	}

	// A paid order commits its stock. A redelivered success event finds the
	// order already confirmed and the transition is a no-op.
	if _, err := h.o.UpdateStatus(ctx, orderId, orders.StatusConfirmed); err != nil {
		if errors.Is(err, orders.ErrInvalidTransition) {
			slog.Warn("order not confirmable on payment", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		} else {
			slog.Error("failed to confirm order", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to confirm order"})
			return false
		}
	}

	paidAt := time.Now().UTC()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	h.dispatcher.Publish(ctx, events.Event{
		Kind:       events.KindPaymentCompleted,
		OccurredAt: time.Now().UTC(),
		PaymentCompleted: &events.PaymentCompleted{
			PaymentID:            payment.ID,
			OrderID:              orderId,
			Amount:               payment.Amount,
			Currency:             payment.Currency,
			GatewayTransactionID: payment.GatewayTransactionID,
			PaidAt:               paidAt,
		},
	})
	c.Status(http.StatusOK)
	return true
}

func (h *Handler) paymentFailed(c *gin.Context, traceId string, event stripe.Event) bool {
	var paymentIntent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
		slog.Error("failed to unmarshal payment intent", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}

	ctx := c.Request.Context()
	orderId := paymentIntent.Metadata["order_id"]
	if orderId == "" {
		c.Status(http.StatusOK)
		return true
	}
	currency := strings.ToUpper(string(paymentIntent.Currency))

	payment, err := h.pay.RecordFailed(ctx, orderId, paymentIntent.ID, paymentIntent.Amount, currency)
	if err != nil {
		slog.Error("failed to record failed payment", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return false
	}
	if err := h.o.SetPaymentStatus(ctx, orderId, orders.PaymentFailed); err != nil {
		slog.Error("failed to mark order payment failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderId), slog.String(logkey.ERROR, err.Error()))
	}

	reason := ""
	if paymentIntent.LastPaymentError != nil {
		reason = paymentIntent.LastPaymentError.Msg
	}
	h.dispatcher.Publish(ctx, events.Event{
		Kind:       events.KindPaymentFailed,
		OccurredAt: time.Now().UTC(),
		PaymentFailed: &events.PaymentFailed{
			PaymentID:            payment.ID,
			OrderID:              orderId,
			Amount:               payment.Amount,
			Currency:             payment.Currency,
			GatewayTransactionID: payment.GatewayTransactionID,
			Reason:               reason,
			FailedAt:             time.Now().UTC(),
		},
	})
	c.Status(http.StatusOK)
	return true
}

func (h *Handler) chargeRefunded(c *gin.Context, traceId string, event stripe.Event) bool {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		slog.Error("failed to unmarshal charge", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		slog.Warn("refunded charge without payment intent", slog.String(logkey.TraceID, traceId))
		c.Status(http.StatusOK)
		return true
	}

	ctx := c.Request.Context()
	payment, err := h.pay.RecordRefund(ctx, charge.PaymentIntent.ID, charge.AmountRefunded)
	if err != nil {
		slog.Error("failed to record refund", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to record refund"})
		return false
	}
	if payment.Status == payments.StatusRefunded {
		if err := h.o.SetPaymentStatus(ctx, payment.OrderID, orders.PaymentRefunded); err != nil {
			slog.Error("failed to mark order refunded", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, payment.OrderID), slog.String(logkey.ERROR, err.Error()))
		}
	}
	c.Status(http.StatusOK)
	return true
}
