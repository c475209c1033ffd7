// Package handlers exposes the dispatch core's upstream mutators over
// HTTP.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/dispatch"
	"github.com/greenside-dev/course-dispatch/internal/orders"
	"github.com/greenside-dev/course-dispatch/internal/service"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	dispatcher *service.Dispatcher
	logger     *logrus.Logger
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(dispatcher *service.Dispatcher, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{dispatcher: dispatcher, logger: logger}
}

// CreateOrderRequest is the order placement payload.
type CreateOrderRequest struct {
	TargetHole int               `json:"target_hole" binding:"required"`
	Items      []OrderItemInput  `json:"items" binding:"required"`
}

// OrderItemInput is one requested item line.
type OrderItemInput struct {
	Name       string `json:"name" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	Complexity string `json:"complexity"`
	UnitPrice  string `json:"unit_price"`
}

// CreateOrder places a new order.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_REQUEST",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}

	items := make([]orders.Item, 0, len(req.Items))
	for _, in := range req.Items {
		price, err := decimal.NewFromString(in.UnitPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid unit price",
				Code:  "INVALID_REQUEST",
				Details: map[string]string{
					"unit_price": in.UnitPrice,
				},
			})
			return
		}
		complexity := orders.Complexity(in.Complexity)
		if complexity == "" {
			complexity = orders.ComplexityMedium
		}
		items = append(items, orders.Item{
			Name:       in.Name,
			Quantity:   in.Quantity,
			Complexity: complexity,
			UnitPrice:  price,
		})
	}

	o, err := h.dispatcher.CreateOrder(course.Hole(req.TargetHole), items)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Failed to create order",
			Code:  "INVALID_INPUT",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusCreated, o)
}

// DispatchOrder runs a dispatch decision for a pending order.
func (h *OrderHandler) DispatchOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid order id", Code: "INVALID_REQUEST"})
		return
	}
	cand, err := h.dispatcher.DispatchOrder(id)
	if err != nil {
		switch err {
		case dispatch.ErrNoCandidate:
			c.JSON(http.StatusConflict, ErrorResponse{Error: "No feasible candidate", Code: "NO_CANDIDATE"})
		case dispatch.ErrOfferExhausted:
			c.JSON(http.StatusConflict, ErrorResponse{Error: "Offer list exhausted", Code: "OFFER_EXHAUSTED"})
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Dispatch failed",
				Code:  "DISPATCH_FAILED",
				Details: map[string]string{
					"reason": err.Error(),
				},
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": id,
		"asset_id": cand.AssetID,
		"batch":    cand.Batch,
		"score":    cand.Score,
	})
}

// AcceptOffer commits the outstanding offer for an order.
func (h *OrderHandler) AcceptOffer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid order id", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.dispatcher.AcceptOffer(id); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Failed to accept offer",
			Code:  "OFFER_CONFLICT",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": "assigned"})
}

// DeclineOffer declines the outstanding offer and advances the cascade.
func (h *OrderHandler) DeclineOffer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid order id", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.dispatcher.DeclineOffer(id); err != nil {
		switch err {
		case dispatch.ErrNoCandidate, dispatch.ErrOfferExhausted:
			c.JSON(http.StatusOK, gin.H{"order_id": id, "status": "requeued"})
		default:
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "Failed to decline offer",
				Code:  "OFFER_CONFLICT",
				Details: map[string]string{
					"reason": err.Error(),
				},
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": "reoffered"})
}

// CompleteOrder marks an order delivered.
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid order id", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.dispatcher.CompleteOrder(id); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Failed to complete order",
			Code:  "ORDER_CONFLICT",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": "delivered"})
}

// ListOrders returns every order.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": h.dispatcher.ListOrders()})
}
