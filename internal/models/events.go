package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypePaymentPaid     = "PAYMENT_PAID"
	EventTypeOrderDelivered  = "ORDER_DELIVERED"
	EventTypeSellerCredited  = "SELLER_CREDITED"
	EventTypePayoutCompleted = "PAYOUT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is committed from a cart
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64                `json:"order_id"`
	OrderNumber string               `json:"order_number"`
	BuyerID     int64                `json:"buyer_id"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Items       []OrderLineEventData `json:"items"`
}

// OrderCancelledEvent published when an order is cancelled and its stock released
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentPaidEvent consumed from the payment collaborator; triggers wallet credit
type PaymentPaidEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	ProviderTxID string `json:"provider_tx_id"`
}

// OrderDeliveredEvent consumed from the shipping collaborator; triggers the
// pending-to-available release
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Carrier string `json:"carrier,omitempty"`
}

// SellerCreditedEvent published after a seller wallet is credited for an order
type SellerCreditedEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	SellerID  int64           `json:"seller_id"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

// PayoutCompletedEvent published when a payout request is completed
type PayoutCompletedEvent struct {
	BaseEvent
	PayoutID       int64           `json:"payout_id"`
	SellerID       int64           `json:"seller_id"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionRef string          `json:"transaction_ref"`
}

// OrderLineEventData represents one order line in events
type OrderLineEventData struct {
	OfferID   int64           `json:"offer_id"`
	SellerID  int64           `json:"seller_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
