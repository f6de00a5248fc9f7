package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors reported synchronously to the caller; no partial state is
// written when any of these occur.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrCartNotFound        = errors.New("cart not found")
	ErrCartConverted       = errors.New("cart has already been converted")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrPayoutNotFound      = errors.New("payout request not found")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrBankAccountRequired = errors.New("bank account reference is required")
	ErrPayoutOutstanding   = errors.New("seller already has an outstanding payout request")
)

// StockError reports an offer that could not cover the requested quantity.
type StockError struct {
	OfferID     int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested=%d available=%d",
		e.ProductName, e.Requested, e.Available)
}

// ValidationError carries the blocking issues found while validating a cart.
type ValidationError struct {
	Issues []CartIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s(%s)", issue.Type, issue.ProductName)
	}
	return "cart validation failed: " + strings.Join(parts, ", ")
}

// TransitionError rejects a status transition not present in the transition
// table, surfacing the current state and the allowed next states.
type TransitionError struct {
	Entity  string
	From    string
	To      string
	Allowed []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s (allowed: %s)",
		e.Entity, e.From, e.To, strings.Join(e.Allowed, ", "))
}

// Cart issue types
const (
	IssueUnavailable  = "unavailable"
	IssueStock        = "stock"
	IssuePriceChanged = "price_changed"
)

// CartIssue describes one problem found during cart validation.
// price_changed is informational and does not block checkout.
type CartIssue struct {
	OfferID     int64  `json:"offer_id"`
	ProductName string `json:"product_name"`
	Type        string `json:"type"`
	Message     string `json:"message"`
}

// Blocking reports whether the issue prevents checkout.
func (i CartIssue) Blocking() bool {
	return i.Type == IssueUnavailable || i.Type == IssueStock
}
