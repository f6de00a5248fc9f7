package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Offer represents a seller's sellable listing of a product
type Offer struct {
	ID          int64           `db:"id" json:"id"`
	SellerID    int64           `db:"seller_id" json:"seller_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	CategoryID  int64           `db:"category_id" json:"category_id"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Status      string          `db:"status" json:"status"`
	ExpiresAt   sql.NullTime    `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Offer statuses
const (
	OfferStatusActive   = "active"
	OfferStatusInactive = "inactive"
	OfferStatusSoldOut  = "sold_out"
)

// Sellable reports whether the offer can currently be purchased.
func (o *Offer) Sellable(now time.Time) bool {
	if o.Status != OfferStatusActive {
		return false
	}
	if o.ExpiresAt.Valid && !o.ExpiresAt.Time.After(now) {
		return false
	}
	return true
}

// Cart represents a buyer's cart; one active cart per buyer
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	BuyerID   int64     `db:"buyer_id" json:"buyer_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Cart statuses
const (
	CartStatusActive    = "active"
	CartStatusConverted = "converted"
	CartStatusAbandoned = "abandoned"
)

// CartItem is one cart line with the price snapshot captured at add-time
type CartItem struct {
	ID              int64           `db:"id" json:"id"`
	CartID          int64           `db:"cart_id" json:"cart_id"`
	OfferID         int64           `db:"offer_id" json:"offer_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	PriceAtAddition decimal.Decimal `db:"price_at_addition" json:"price_at_addition"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// ShippingAddress is the denormalized destination snapshot stored on an order.
// Orders stay valid even if the buyer later edits or deletes the address.
type ShippingAddress struct {
	Recipient  string `db:"ship_recipient" json:"recipient" binding:"required"`
	Phone      string `db:"ship_phone" json:"phone"`
	Line1      string `db:"ship_line1" json:"line1" binding:"required"`
	Line2      string `db:"ship_line2" json:"line2"`
	City       string `db:"ship_city" json:"city" binding:"required"`
	PostalCode string `db:"ship_postal_code" json:"postal_code"`
}

// Order is the immutable-after-creation record of a committed purchase
type Order struct {
	ID              int64  `db:"id" json:"id"`
	OrderNumber     string `db:"order_number" json:"order_number"`
	BuyerID         int64  `db:"buyer_id" json:"buyer_id"`
	ShippingAddress `json:"shipping_address"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	TotalCommission decimal.Decimal `db:"total_commission" json:"total_commission"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status          string          `db:"status" json:"status"`
	PaymentStatus   string          `db:"payment_status" json:"payment_status"`
	ShippingStatus  string          `db:"shipping_status" json:"shipping_status"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// orderTransitions is the closed order status transition table. Any
// transition not listed here is rejected.
var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionOrder reports whether an order may move from one status to another.
func CanTransitionOrder(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedOrderTransitions returns the statuses reachable from the given status.
func AllowedOrderTransitions(from string) []string {
	return orderTransitions[from]
}

// CanBeCancelled reports whether the order is still in a cancellable state.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// OrderItem is an immutable snapshot of one cart line at order-creation time,
// including the commission rate and every fee output captured then.
type OrderItem struct {
	ID                int64           `db:"id" json:"id"`
	OrderID           int64           `db:"order_id" json:"order_id"`
	OfferID           int64           `db:"offer_id" json:"offer_id"`
	ProductID         int64           `db:"product_id" json:"product_id"`
	ProductName       string          `db:"product_name" json:"product_name"`
	SellerID          int64           `db:"seller_id" json:"seller_id"`
	Quantity          int             `db:"quantity" json:"quantity"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice        decimal.Decimal `db:"total_price" json:"total_price"`
	CommissionRate    decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount  decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	MarketplaceFee    decimal.Decimal `db:"marketplace_fee" json:"marketplace_fee"`
	WithholdingTax    decimal.Decimal `db:"withholding_tax" json:"withholding_tax"`
	ShippingCostShare decimal.Decimal `db:"shipping_cost_share" json:"shipping_cost_share"`
	NetSellerAmount   decimal.Decimal `db:"net_seller_amount" json:"net_seller_amount"`
}

// SellerWallet holds a seller's running balances. Balances are a projection of
// the wallet_transactions journal and are only mutated together with it.
type SellerWallet struct {
	ID               int64           `db:"id" json:"id"`
	SellerID         int64           `db:"seller_id" json:"seller_id"`
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	PendingBalance   decimal.Decimal `db:"pending_balance" json:"pending_balance"`
	WithdrawnBalance decimal.Decimal `db:"withdrawn_balance" json:"withdrawn_balance"`
	TotalEarned      decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalCommission  decimal.Decimal `db:"total_commission" json:"total_commission"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is an append-only journal entry. Corrections are new
// adjustment entries, never updates.
type WalletTransaction struct {
	ID          int64           `db:"id" json:"id"`
	WalletID    int64           `db:"wallet_id" json:"wallet_id"`
	Type        string          `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	BalanceType string          `db:"balance_type" json:"balance_type"`
	Description string          `db:"description" json:"description"`
	OrderID     sql.NullInt64   `db:"order_id" json:"order_id,omitempty"`
	OrderItemID sql.NullInt64   `db:"order_item_id" json:"order_item_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Wallet transaction types
const (
	TxTypeSale       = "sale"
	TxTypeCommission = "commission"
	TxTypeShipping   = "shipping"
	TxTypeWithdrawal = "withdrawal"
	TxTypeAdjustment = "adjustment"
)

// Balance types a journal entry applies to
const (
	BalancePending   = "pending"
	BalanceAvailable = "available"
)

// PayoutRequest is a seller's request to convert available balance into an
// external bank transfer.
type PayoutRequest struct {
	ID             int64           `db:"id" json:"id"`
	SellerID       int64           `db:"seller_id" json:"seller_id"`
	BankAccountID  int64           `db:"bank_account_id" json:"bank_account_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         string          `db:"status" json:"status"`
	AdminNotes     string          `db:"admin_notes" json:"admin_notes,omitempty"`
	TransactionRef string          `db:"transaction_ref" json:"transaction_ref,omitempty"`
	ProcessedBy    sql.NullInt64   `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt    sql.NullTime    `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Payout statuses
const (
	PayoutStatusPending    = "pending"
	PayoutStatusApproved   = "approved"
	PayoutStatusRejected   = "rejected"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

var payoutTransitions = map[string][]string{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusRejected},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// CanTransitionPayout reports whether a payout may move from one status to another.
func CanTransitionPayout(from, to string) bool {
	for _, allowed := range payoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedPayoutTransitions returns the statuses reachable from the given status.
func AllowedPayoutTransitions(from string) []string {
	return payoutTransitions[from]
}

// PayoutNonTerminalStatuses are the statuses that block a new payout request
// for the same seller.
var PayoutNonTerminalStatuses = []string{
	PayoutStatusPending, PayoutStatusApproved, PayoutStatusProcessing,
}

// ProcessedEvent records a consumed collaborator event for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
