package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"order-processing-service/internal/analytics"
	"order-processing-service/internal/coupons"
	"order-processing-service/internal/events"
	"order-processing-service/internal/fulfillment"
	"order-processing-service/internal/jobs"
	"order-processing-service/internal/mailer"
	"order-processing-service/internal/notify"
	"order-processing-service/internal/orders"
	"order-processing-service/internal/stores/kafka"
	"order-processing-service/pkg/logkey"
)

// EmailPayload is the job payload for the transactional email kinds.
type EmailPayload struct {
	OrderID  string `json:"order_id"`
	To       string `json:"to"`
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

type appDeps struct {
	orders      *orders.Conf
	coupons     *coupons.Conf
	jobs        *jobs.Conf
	kafka       *kafka.Conf
	notify      *notify.Conf
	analytics   *analytics.Conf
	mailer      *mailer.Conf
	fulfillment *fulfillment.Client
	emailTo     string
}

// registerSubscribers binds the side effects of each domain event. Every
// subscriber here either enqueues a job (reliable work) or performs a
// best-effort call whose failure is only logged by the dispatcher.
func registerSubscribers(d *events.Dispatcher, deps appDeps) {
	d.Subscribe(events.KindOrderCreated, events.SubscriberFunc{
		SubName: "coupon-usage",
		Fn: func(ctx context.Context, ev events.Event) error {
			oc := ev.OrderCreated
			if oc.CouponCode == "" {
				return nil
			}
			used, err := deps.coupons.RecordUsage(ctx, oc.CouponCode, oc.OrderID, oc.UserID, oc.Discount)
			if err != nil {
				return fmt.Errorf("record coupon usage: %w", err)
			}
			if used != nil {
				d.Publish(ctx, events.Event{
					Kind:       events.KindCouponUsed,
					OccurredAt: used.UsedAt,
					CouponUsed: used,
				})
			}
			return nil
		},
	})
	d.Subscribe(events.KindOrderCreated, events.SubscriberFunc{
		SubName: "order-confirmation-email",
		Fn: func(ctx context.Context, ev events.Event) error {
			oc := ev.OrderCreated
			_, err := deps.jobs.Enqueue(ctx, jobs.KindEmailOrderConfirmation, oc.OrderID, EmailPayload{
				OrderID: oc.OrderID,
				To:      deps.emailTo,
			})
			return err
		},
	})
	d.Subscribe(events.KindOrderCreated, events.SubscriberFunc{
		SubName: "purchase-pixel",
		Fn: func(ctx context.Context, ev events.Event) error {
			oc := ev.OrderCreated
			payload := analytics.PurchasePayload{
				Event:    "purchase",
				OrderID:  oc.OrderID,
				UserID:   oc.UserID,
				Total:    oc.Total,
				Currency: oc.Currency,
			}
			for _, item := range oc.Items {
				payload.Items = append(payload.Items, analytics.PixelItem{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					UnitPrice: item.UnitPrice,
				})
			}
			deps.analytics.Track(ctx, payload)
			return nil
		},
	})

	d.Subscribe(events.KindOrderStatusChange, events.SubscriberFunc{
		SubName: "status-changed-producer",
		Fn: func(ctx context.Context, ev events.Event) error {
			sc := ev.OrderStatusChange
			return produce(ctx, deps.kafka, kafka.TopicOrderStatusChanged, sc.OrderID, kafka.OrderStatusChangedEvent{
				OrderID:   sc.OrderID,
				OldStatus: sc.OldStatus,
				NewStatus: sc.NewStatus,
				CreatedAt: sc.ChangedAt,
			})
		},
	})

	d.Subscribe(events.KindPaymentCompleted, events.SubscriberFunc{
		SubName: "payment-receipt-email",
		Fn: func(ctx context.Context, ev events.Event) error {
			pc := ev.PaymentCompleted
			_, err := deps.jobs.Enqueue(ctx, jobs.KindEmailPaymentReceipt, pc.OrderID, EmailPayload{
				OrderID:  pc.OrderID,
				To:       deps.emailTo,
				Amount:   pc.Amount,
				Currency: pc.Currency,
			})
			return err
		},
	})
	d.Subscribe(events.KindPaymentCompleted, events.SubscriberFunc{
		SubName: "order-paid-producer",
		Fn: func(ctx context.Context, ev events.Event) error {
			pc := ev.PaymentCompleted
			return produce(ctx, deps.kafka, kafka.TopicOrderPaid, pc.OrderID, kafka.OrderPaidEvent{
				OrderID:   pc.OrderID,
				PaymentID: pc.PaymentID,
				Amount:    pc.Amount,
				Currency:  pc.Currency,
				CreatedAt: pc.PaidAt,
			})
		},
	})

	d.Subscribe(events.KindPaymentFailed, events.SubscriberFunc{
		SubName: "payment-failed-alert",
		Fn: func(ctx context.Context, ev events.Event) error {
			pf := ev.PaymentFailed
			return deps.notify.Alert(ctx, "Payment failed", map[string]string{
				"order_id": pf.OrderID,
				"amount":   fmt.Sprintf("%d %s", pf.Amount, pf.Currency),
				"reason":   pf.Reason,
			})
		},
	})
	d.Subscribe(events.KindPaymentFailed, events.SubscriberFunc{
		SubName: "payment-failed-email",
		Fn: func(ctx context.Context, ev events.Event) error {
			pf := ev.PaymentFailed
			_, err := deps.jobs.Enqueue(ctx, jobs.KindEmailPaymentFailed, pf.OrderID, EmailPayload{
				OrderID: pf.OrderID,
				To:      deps.emailTo,
			})
			return err
		},
	})

	d.Subscribe(events.KindProductOutOfStock, events.SubscriberFunc{
		SubName: "out-of-stock-alert",
		Fn: func(ctx context.Context, ev events.Event) error {
			oos := ev.ProductOutOfStock
			return deps.notify.Alert(ctx, "Product out of stock", map[string]string{
				"product_id": oos.ProductID,
				"sku":        oos.SKU,
				"order_id":   oos.OrderID,
			})
		},
	})
	d.Subscribe(events.KindProductOutOfStock, events.SubscriberFunc{
		SubName: "out-of-stock-producer",
		Fn: func(ctx context.Context, ev events.Event) error {
			oos := ev.ProductOutOfStock
			return produce(ctx, deps.kafka, kafka.TopicProductOutOfStock, oos.ProductID, kafka.ProductOutOfStockEvent{
				ProductID: oos.ProductID,
				SKU:       oos.SKU,
				OrderID:   oos.OrderID,
				CreatedAt: oos.At,
			})
		},
	})

	d.Subscribe(events.KindCouponUsed, events.SubscriberFunc{
		SubName: "coupon-used-producer",
		Fn: func(ctx context.Context, ev events.Event) error {
			cu := ev.CouponUsed
			return produce(ctx, deps.kafka, kafka.TopicCouponUsed, cu.CouponID, kafka.CouponUsedEvent{
				CouponID:  cu.CouponID,
				Code:      cu.Code,
				OrderID:   cu.OrderID,
				UsedCount: cu.UsedCount,
				CreatedAt: cu.UsedAt,
			})
		},
	})
}

func produce(ctx context.Context, k *kafka.Conf, topic, key string, v any) error {
	if k == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return k.ProduceMessage(ctx, topic, []byte(key), data)
}

// registerFulfillmentJobs binds the fulfillment lane: submit the order to
// the collaborator, store the returned id, and mark the order failed when
// the retry budget runs out.
func registerFulfillmentJobs(r *jobs.Runner, deps appDeps) {
	r.Register(jobs.KindFulfillmentSubmit, jobs.Handler{
		Run: func(ctx context.Context, job jobs.Job) error {
			var p orders.FulfillmentPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return fmt.Errorf("decode fulfillment payload: %w", err)
			}
			order, err := deps.orders.GetOrder(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if order.FulfillmentID != "" {
				// redelivered job after a crash between submit and ack
				return nil
			}

			sub := fulfillment.Submission{
				OrderID:  order.ID,
				UserID:   order.UserID,
				Total:    order.Total,
				Currency: order.Currency,
			}
			for _, item := range order.Items {
				sub.Items = append(sub.Items, fulfillment.SubmissionItem{
					ProductID: item.ProductID,
					VariantID: item.VariantID,
					SKU:       item.SKU,
					Quantity:  item.Quantity,
				})
			}
			fulfillmentID, err := deps.fulfillment.Submit(ctx, sub)
			if err != nil {
				return err
			}
			return deps.orders.SetFulfillmentID(ctx, order.ID, fulfillmentID)
		},
		OnDead: func(ctx context.Context, job jobs.Job, cause error) error {
			var p orders.FulfillmentPayload
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return fmt.Errorf("decode fulfillment payload: %w", err)
			}
			slog.Error("fulfillment submission abandoned",
				slog.String(logkey.OrderID, p.OrderID), slog.String(logkey.ERROR, cause.Error()))
			_, err := deps.orders.UpdateStatus(ctx, p.OrderID, orders.StatusFailed)
			return err
		},
	})
}

// registerEmailJobs binds the transactional email lane. When SMTP is not
// configured the sends degrade to logged no-ops.
func registerEmailJobs(r *jobs.Runner, deps appDeps) {
	send := func(ctx context.Context, job jobs.Job, format func(EmailPayload) (string, string)) error {
		var p EmailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		if deps.mailer == nil || p.To == "" {
			slog.Warn("email delivery skipped", slog.String(logkey.JobKind, job.Kind),
				slog.String(logkey.OrderID, p.OrderID))
			return nil
		}
		subject, body := format(p)
		return deps.mailer.Send(p.To, subject, body)
	}

	r.Register(jobs.KindEmailOrderConfirmation, jobs.Handler{
		Run: func(ctx context.Context, job jobs.Job) error {
			return send(ctx, job, func(p EmailPayload) (string, string) {
				return mailer.OrderConfirmation(p.OrderID)
			})
		},
	})
	r.Register(jobs.KindEmailPaymentReceipt, jobs.Handler{
		Run: func(ctx context.Context, job jobs.Job) error {
			return send(ctx, job, func(p EmailPayload) (string, string) {
				return mailer.PaymentReceipt(p.OrderID, p.Amount, p.Currency)
			})
		},
	})
	r.Register(jobs.KindEmailPaymentFailed, jobs.Handler{
		Run: func(ctx context.Context, job jobs.Job) error {
			return send(ctx, job, func(p EmailPayload) (string, string) {
				return mailer.PaymentFailure(p.OrderID)
			})
		},
	})
}
