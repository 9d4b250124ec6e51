package handlers

import (
	"os"

	"order-processing-service/internal/auth"
	"order-processing-service/internal/cache"
	"order-processing-service/internal/coupons"
	"order-processing-service/internal/events"
	"order-processing-service/internal/orders"
	"order-processing-service/internal/payments"
	"order-processing-service/internal/products"
	"order-processing-service/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	o          *orders.Conf
	p          *products.Conf
	c          *coupons.Conf
	pay        *payments.Conf
	cache      cache.Cache
	dispatcher *events.Dispatcher
}

func NewHandler(o *orders.Conf, p *products.Conf, c *coupons.Conf, pay *payments.Conf,
	cch cache.Cache, dispatcher *events.Dispatcher) *Handler {
	return &Handler{
		o:          o,
		p:          p,
		c:          c,
		pay:        pay,
		cache:      cch,
		dispatcher: dispatcher,
	}
}

func API(endpointPrefix string, k *auth.Keys, h *Handler) *gin.Engine {
	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	m, err := middleware.NewMid(k)
	if err != nil {
		panic(err)
	}

	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)
	v1 := r.Group(endpointPrefix)
	{
		v1.POST("/webhook", h.Webhook)

		v1.Use(m.Authentication())
		v1.POST("/checkout", h.Checkout)
		v1.GET("/view/:id", h.GetOrder)
		v1.POST("/cancel/:id", h.CancelOrder)
		v1.POST("/status/:id", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
	}
	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}
