package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to confirmed", OrderStatusPending, OrderStatusConfirmed, true},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"pending skips to processing", OrderStatusPending, OrderStatusProcessing, true},
		{"confirmed to processing", OrderStatusConfirmed, OrderStatusProcessing, true},
		{"confirmed to cancelled", OrderStatusConfirmed, OrderStatusCancelled, true},
		{"processing to shipped", OrderStatusProcessing, OrderStatusShipped, true},
		{"shipped to delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"processing cannot cancel", OrderStatusProcessing, OrderStatusCancelled, false},
		{"shipped cannot cancel", OrderStatusShipped, OrderStatusCancelled, false},
		{"delivered is terminal", OrderStatusDelivered, OrderStatusShipped, false},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusPending, false},
		{"no backwards move", OrderStatusShipped, OrderStatusProcessing, false},
		{"no skipping to delivered", OrderStatusPending, OrderStatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionOrder(tt.from, tt.to))
		})
	}
}

func TestOrderCanBeCancelled(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusPending}).CanBeCancelled())
	assert.True(t, (&Order{Status: OrderStatusConfirmed}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusProcessing}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusShipped}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusDelivered}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusCancelled}).CanBeCancelled())
}

func TestCanTransitionPayout(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to approved", PayoutStatusPending, PayoutStatusApproved, true},
		{"pending to rejected", PayoutStatusPending, PayoutStatusRejected, true},
		{"approved to processing", PayoutStatusApproved, PayoutStatusProcessing, true},
		{"approved to rejected", PayoutStatusApproved, PayoutStatusRejected, true},
		{"processing to completed", PayoutStatusProcessing, PayoutStatusCompleted, true},
		{"processing to failed", PayoutStatusProcessing, PayoutStatusFailed, true},
		{"pending cannot complete", PayoutStatusPending, PayoutStatusCompleted, false},
		{"processing cannot reject", PayoutStatusProcessing, PayoutStatusRejected, false},
		{"completed is terminal", PayoutStatusCompleted, PayoutStatusFailed, false},
		{"rejected is terminal", PayoutStatusRejected, PayoutStatusPending, false},
		{"failed is terminal", PayoutStatusFailed, PayoutStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionPayout(tt.from, tt.to))
		})
	}
}

func TestOfferSellable(t *testing.T) {
	now := time.Now()

	active := &Offer{Status: OfferStatusActive}
	assert.True(t, active.Sellable(now))

	inactive := &Offer{Status: OfferStatusInactive}
	assert.False(t, inactive.Sellable(now))

	soldOut := &Offer{Status: OfferStatusSoldOut}
	assert.False(t, soldOut.Sellable(now))

	expired := &Offer{
		Status:    OfferStatusActive,
		ExpiresAt: sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
	}
	assert.False(t, expired.Sellable(now))

	notYetExpired := &Offer{
		Status:    OfferStatusActive,
		ExpiresAt: sql.NullTime{Time: now.Add(time.Minute), Valid: true},
	}
	assert.True(t, notYetExpired.Sellable(now))
}

func TestCartIssueBlocking(t *testing.T) {
	assert.True(t, CartIssue{Type: IssueUnavailable}.Blocking())
	assert.True(t, CartIssue{Type: IssueStock}.Blocking())
	assert.False(t, CartIssue{Type: IssuePriceChanged}.Blocking())
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{
		Entity:  "order",
		From:    OrderStatusShipped,
		To:      OrderStatusCancelled,
		Allowed: AllowedOrderTransitions(OrderStatusShipped),
	}
	assert.Contains(t, err.Error(), "order cannot transition from shipped to cancelled")
	assert.Contains(t, err.Error(), OrderStatusDelivered)
}
