// Package fees computes the per-line deductions that turn a sale amount into
// a seller's net credit. Computations are pure: rates come in as an explicit
// Config value, never from process-wide state.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativePrice rejects a negative line total; it is the engine's only
// error condition.
var ErrNegativePrice = errors.New("total price must not be negative")

var hundred = decimal.NewFromInt(100)

// Config carries the platform fee rates applied on top of the category
// commission. Rates are percentages (0.89 means 0.89%).
type Config struct {
	MarketplaceFeeRate decimal.Decimal
	WithholdingTaxRate decimal.Decimal
	CommissionEnabled  bool
}

// Breakdown is the deterministic fee split for one order line. Every field is
// rounded to 2 decimal places so stored values reproduce exactly.
type Breakdown struct {
	TotalPrice        decimal.Decimal `json:"total_price"`
	CommissionRate    decimal.Decimal `json:"commission_rate"`
	CommissionAmount  decimal.Decimal `json:"commission_amount"`
	MarketplaceFee    decimal.Decimal `json:"marketplace_fee"`
	WithholdingTax    decimal.Decimal `json:"withholding_tax"`
	ShippingCostShare decimal.Decimal `json:"shipping_cost_share"`
	NetSellerAmount   decimal.Decimal `json:"net_seller_amount"`
}

// Compute splits a line total into commission, marketplace fee, withholding
// tax, shipping share and the seller's net amount. Each component is rounded
// to 2 decimals half-away-from-zero right after its own multiplication, never
// on the aggregate, so line-level and order-level totals replay identically
// from stored inputs.
func Compute(cfg Config, totalPrice, commissionRatePercent, shippingShare decimal.Decimal) (Breakdown, error) {
	if totalPrice.IsNegative() {
		return Breakdown{}, ErrNegativePrice
	}

	commission := decimal.Zero
	if cfg.CommissionEnabled {
		commission = totalPrice.Mul(commissionRatePercent).Div(hundred).Round(2)
	}

	marketplaceFee := totalPrice.Mul(cfg.MarketplaceFeeRate).Div(hundred).Round(2)
	withholdingTax := totalPrice.Mul(cfg.WithholdingTaxRate).Div(hundred).Round(2)
	shipping := shippingShare.Round(2)

	net := totalPrice.Round(2).
		Sub(commission).
		Sub(marketplaceFee).
		Sub(withholdingTax).
		Sub(shipping)

	return Breakdown{
		TotalPrice:        totalPrice.Round(2),
		CommissionRate:    commissionRatePercent,
		CommissionAmount:  commission,
		MarketplaceFee:    marketplaceFee,
		WithholdingTax:    withholdingTax,
		ShippingCostShare: shipping,
		NetSellerAmount:   net,
	}, nil
}

// PlatformCut is the total deducted from the seller excluding shipping.
func (b Breakdown) PlatformCut() decimal.Decimal {
	return b.CommissionAmount.Add(b.MarketplaceFee).Add(b.WithholdingTax)
}
