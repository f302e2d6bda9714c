package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketlink/internal/models"
	"marketlink/internal/service"
	"marketlink/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderPlacer places and reads repair orders
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, customerID, variantID string) (*models.RepairOrder, error)
	GetOrder(ctx context.Context, orderID string) (*models.RepairOrder, error)
	ListCustomerOrders(ctx context.Context, customerID string) ([]models.RepairOrder, error)
}

// PaymentHandler applies verified payment webhooks
type PaymentHandler interface {
	HandlePaymentSucceeded(ctx context.Context, evt *service.PaymentEventData) (service.Outcome, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders           OrderPlacer
	payments         PaymentHandler
	webhookSecret    string
	webhookTolerance time.Duration
	logger           *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderPlacer, payments PaymentHandler, webhookSecret string, webhookTolerance time.Duration) *Handler {
	return &Handler{
		orders:           orders,
		payments:         payments,
		webhookSecret:    webhookSecret,
		webhookTolerance: webhookTolerance,
		logger:           util.NamedLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/customers/:id/orders", h.listCustomerOrders)
	}

	router.POST("/api/webhooks/payment", h.paymentWebhook)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CreateOrderRequest is the order placement payload. The customer id is
// an explicit parameter; authentication happens upstream.
type CreateOrderRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	VariantID  string `json:"variant_id" binding:"required"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), req.CustomerID, req.VariantID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "Repair order created successfully. Proceed to payment.",
			"data":    order,
		})
	case errors.Is(err, models.ErrVariantNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Service variant not found",
		})
	case errors.Is(err, models.ErrStockExhausted), errors.Is(err, models.ErrLockUnavailable):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "Service variant is no longer available",
		})
	default:
		h.logger.Error("Order placement failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to create order",
		})
	}
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": "Order not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order retrieved successfully",
		"data":    order,
	})
}

func (h *Handler) listCustomerOrders(c *gin.Context) {
	orders, err := h.orders.ListCustomerOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Orders retrieved successfully",
		"data":    orders,
	})
}

// webhookEnvelope is the provider's event shape
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// paymentWebhook handles provider payment webhooks. Signature and payload
// problems get a 400 so the provider retries once fixed; business
// rejections (amount mismatch, wrong order state) are acknowledged with
// 200 and success=false so the provider stops redelivering them.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Failed to read request body",
		})
		return
	}

	if err := VerifySignature(payload, c.GetHeader(SignatureHeader), h.webhookSecret, h.webhookTolerance); err != nil {
		h.logger.Warn("Webhook signature verification failed", zap.Error(err))
		util.WebhooksRejectedTotal.WithLabelValues("bad_signature").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Webhook signature verification failed",
		})
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid webhook payload",
		})
		return
	}

	switch envelope.Type {
	case models.EventTypePaymentSucceeded:
		rawObject, _ := json.Marshal(envelope.Data.Object)
		evt := &service.PaymentEventData{
			EventID:     envelope.ID,
			EventType:   envelope.Type,
			OrderID:     envelope.Data.Object.Metadata.OrderID,
			PaymentRef:  envelope.Data.Object.ID,
			AmountMinor: envelope.Data.Object.Amount,
			Payload:     rawObject,
		}

		outcome, err := h.payments.HandlePaymentSucceeded(c.Request.Context(), evt)
		c.JSON(webhookStatus(err), gin.H{
			"success":  outcome.Accepted,
			"message":  outcome.Reason,
			"order_id": outcome.OrderID,
		})

	case models.EventTypePaymentFailed:
		h.logger.Warn("Payment failed webhook received", zap.String("event_id", envelope.ID))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Payment failure event received",
		})

	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Event type " + envelope.Type + " received (unhandled)",
		})
	}
}

// webhookStatus maps processor errors to HTTP statuses. Only payload
// problems are surfaced as client errors; business rejections are
// acknowledged to stop provider retries.
func webhookStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrMalformedEvent), errors.Is(err, models.ErrOrderNotFound):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAmountMismatch), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
