package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/niltonstano/storefront-orderflow/internal/checkout"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
	"github.com/niltonstano/storefront-orderflow/internal/payments"
	"github.com/niltonstano/storefront-orderflow/internal/validation"
)

// CheckoutService is the orchestrator surface the routes call.
type CheckoutService interface {
	Checkout(ctx context.Context, in checkout.Input) (*checkout.Result, error)
}

// PaymentService applies payment confirmations.
type PaymentService interface {
	Confirm(ctx context.Context, orderID string, outcome payments.Outcome, transactionID string) (*orders.Order, error)
}

// OrderReader serves the read endpoint.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// Handlers groups the services behind the HTTP surface.
type Handlers struct {
	Checkout CheckoutService
	Payments PaymentService
	Orders   OrderReader
}

// RegisterRoutes registers the storefront routes.
func RegisterRoutes(r *gin.Engine, h Handlers) {
	v := validation.New()

	r.POST("/checkout", checkoutHandler(h.Checkout, v))
	r.POST("/orders/:id/confirm", confirmHandler(h.Payments, v))
	r.GET("/orders/:id", getOrderHandler(h.Orders))
}

func checkoutHandler(svc CheckoutService, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		// idempotency token is required and must be a UUID
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}
		if _, err := uuid.Parse(idempKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_idempotency_key"})
			return
		}

		in := checkout.Input{
			IdempotencyKey: idempKey,
			Address:        req.Address,
			PostalCode:     req.PostalCode,
			Shipping: orders.Shipping{
				Service:      req.Shipping.Service,
				Price:        req.Shipping.Price,
				DeadlineDays: req.Shipping.DeadlineDays,
				Company:      req.Shipping.Company,
			},
			DeclaredTotal: req.Total,
			CustomerID:    req.CustomerID,
			CustomerEmail: req.CustomerEmail,
		}
		for _, it := range req.Items {
			in.Items = append(in.Items, checkout.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		result, err := svc.Checkout(ctx, in)
		if err != nil {
			writeError(c, err)
			return
		}

		if result.Replayed {
			// return the original success payload unchanged when we have it
			if result.ResponseBody != "" {
				status := result.ResponseStatus
				if status == 0 {
					status = http.StatusOK
				}
				c.Data(status, "application/json", []byte(result.ResponseBody))
				return
			}
			c.JSON(http.StatusOK, result.Order.Projection())
			return
		}

		c.Header("Location", "/orders/"+result.Order.OrderID)
		c.JSON(http.StatusCreated, result.Order.Projection())
	}
}

func confirmHandler(svc PaymentService, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.ConfirmPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		updated, err := svc.Confirm(c.Request.Context(), c.Param("id"), payments.Outcome(req.Outcome), req.TransactionID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id":       updated.OrderID,
			"status":         updated.Status,
			"customer_email": updated.CustomerEmail,
		})
	}
}

func getOrderHandler(reader OrderReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := reader.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.Projection())
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var invalidCart *checkout.InvalidCartError
	var priceMismatch *checkout.PriceMismatchError
	var invalidTransition *orders.InvalidTransitionError

	switch {
	case errors.As(err, &invalidCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cart", "lines": invalidCart.Lines})
	case errors.As(err, &priceMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "price_mismatch",
			"declared": priceMismatch.Declared,
			"computed": priceMismatch.Computed,
		})
	case errors.Is(err, payments.ErrUnknownOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_outcome"})
	case errors.Is(err, checkout.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.As(err, &invalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "invalid_transition",
			"from":  invalidTransition.From,
			"to":    invalidTransition.To,
		})
	case errors.Is(err, orders.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dependency_unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}
