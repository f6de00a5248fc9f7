package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/service"
	"settlement-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	carts   *service.CartService
	orders  *service.OrderService
	wallets *service.WalletService
	payouts *service.PayoutService
}

// NewHandler creates a new HTTP handler
func NewHandler(carts *service.CartService, orders *service.OrderService, wallets *service.WalletService, payouts *service.PayoutService) *Handler {
	return &Handler{
		carts:   carts,
		orders:  orders,
		wallets: wallets,
		payouts: payouts,
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
		v1.POST("/carts/:buyerId/items", h.addCartItem)
		v1.GET("/carts/:id", h.getCart)
		v1.GET("/carts/:id/validate", h.validateCart)
		v1.PATCH("/carts/:id/items/:itemId", h.updateCartItem)
		v1.DELETE("/carts/:id/items/:itemId", h.removeCartItem)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/status", h.updateOrderStatus)
		v1.GET("/buyers/:id/orders", h.listBuyerOrders)

		v1.GET("/sellers/:id/wallet", h.getWalletSummary)
		v1.GET("/sellers/:id/wallet/transactions", h.getWalletTransactions)
		v1.GET("/sellers/:id/payouts", h.listPayouts)

		v1.POST("/payouts", h.createPayout)
		v1.POST("/payouts/:id/approve", h.approvePayout)
		v1.POST("/payouts/:id/reject", h.rejectPayout)
		v1.POST("/payouts/:id/complete", h.completePayout)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// AddCartItemRequest is the payload for adding an offer to a cart
type AddCartItemRequest struct {
	OfferID  int64 `json:"offer_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	buyerID, err := strconv.ParseInt(c.Param("buyerId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid buyer ID"})
		return
	}

	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.AddItem(c.Request.Context(), buyerID, req.OfferID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getCart(c *gin.Context) {
	cartID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart ID"})
		return
	}

	cart, items, err := h.carts.GetCart(c.Request.Context(), cartID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "items": items})
}

func (h *Handler) validateCart(c *gin.Context) {
	cartID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart ID"})
		return
	}

	issues, err := h.carts.Validate(c.Request.Context(), cartID)
	if err != nil {
		respondError(c, err)
		return
	}

	blocking := false
	for _, issue := range issues {
		if issue.Blocking() {
			blocking = true
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"issues": issues, "checkout_allowed": !blocking})
}

// UpdateCartItemRequest sets a cart line's quantity; zero removes the line
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.carts.UpdateQuantity(c.Request.Context(), itemID, *req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), itemID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateOrderRequest is the payload for committing a cart into an order
type CreateOrderRequest struct {
	CartID          int64                  `json:"cart_id" binding:"required"`
	ShippingAddress models.ShippingAddress `json:"shipping_address" binding:"required"`
	Notes           string                 `json:"notes"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orders.CreateFromCart(c.Request.Context(), req.CartID, req.ShippingAddress, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.orders.Cancel(c.Request.Context(), orderID, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusCancelled})
}

// UpdateOrderStatusRequest moves an order along its status table; shipping
// progress (confirmed→processing→shipped) arrives through here.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.orders.Transition(c.Request.Context(), orderID, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	buyerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid buyer ID"})
		return
	}

	orders, err := h.orders.ListForBuyer(c.Request.Context(), buyerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getWalletSummary(c *gin.Context) {
	sellerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid seller ID"})
		return
	}

	summary, err := h.wallets.Summary(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getWalletTransactions(c *gin.Context) {
	sellerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid seller ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.wallets.Transactions(c.Request.Context(), sellerID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// CreatePayoutRequest is the payload for raising a payout request
type CreatePayoutRequest struct {
	SellerID      int64           `json:"seller_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	BankAccountID int64           `json:"bank_account_id" binding:"required"`
	Notes         string          `json:"notes"`
}

func (h *Handler) createPayout(c *gin.Context) {
	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	payout, err := h.payouts.Create(c.Request.Context(), req.SellerID, req.Amount, req.BankAccountID, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payout)
}

func (h *Handler) listPayouts(c *gin.Context) {
	sellerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid seller ID"})
		return
	}

	payouts, err := h.payouts.ListForSeller(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// PayoutActionRequest carries the admin fields for payout transitions
type PayoutActionRequest struct {
	AdminID        int64  `json:"admin_id" binding:"required"`
	Notes          string `json:"notes"`
	TransactionRef string `json:"transaction_ref"`
}

func (h *Handler) approvePayout(c *gin.Context) {
	h.payoutAction(c, func(payoutID int64, req PayoutActionRequest) error {
		return h.payouts.Approve(c.Request.Context(), payoutID, req.AdminID, req.Notes)
	})
}

func (h *Handler) rejectPayout(c *gin.Context) {
	h.payoutAction(c, func(payoutID int64, req PayoutActionRequest) error {
		return h.payouts.Reject(c.Request.Context(), payoutID, req.AdminID, req.Notes)
	})
}

func (h *Handler) completePayout(c *gin.Context) {
	payoutID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout ID"})
		return
	}

	var req PayoutActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.TransactionRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_ref is required"})
		return
	}

	payout, err := h.payouts.Complete(c.Request.Context(), payoutID, req.AdminID, req.TransactionRef)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

func (h *Handler) payoutAction(c *gin.Context, action func(int64, PayoutActionRequest) error) {
	payoutID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout ID"})
		return
	}

	var req PayoutActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := action(payoutID, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps the settlement error taxonomy onto HTTP responses
func respondError(c *gin.Context, err error) {
	var stockErr *models.StockError
	var validationErr *models.ValidationError
	var transitionErr *models.TransitionError

	switch {
	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "EMPTY_CART", "error": err.Error()})
	case errors.Is(err, models.ErrCartConverted):
		c.JSON(http.StatusConflict, gin.H{"code": "CART_CONVERTED", "error": err.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "STOCK_INSUFFICIENT:" + stockErr.ProductName,
			"error":   stockErr.Error(),
			"offer":   stockErr.OfferID,
			"product": stockErr.ProductName,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":   "VALIDATION_FAILED",
			"error":  validationErr.Error(),
			"issues": validationErr.Issues,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "INVALID_TRANSITION",
			"error":   transitionErr.Error(),
			"from":    transitionErr.From,
			"allowed": transitionErr.Allowed,
		})
	case errors.Is(err, models.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INSUFFICIENT_BALANCE", "error": err.Error()})
	case errors.Is(err, models.ErrInvalidAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_AMOUNT", "error": err.Error()})
	case errors.Is(err, models.ErrBankAccountRequired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "BANK_ACCOUNT_REQUIRED", "error": err.Error()})
	case errors.Is(err, models.ErrPayoutOutstanding):
		c.JSON(http.StatusConflict, gin.H{"code": "PAYOUT_OUTSTANDING", "error": err.Error()})
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrCartNotFound),
		errors.Is(err, models.ErrOfferNotFound),
		errors.Is(err, models.ErrWalletNotFound),
		errors.Is(err, models.ErrPayoutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
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
