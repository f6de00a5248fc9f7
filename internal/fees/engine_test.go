package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultConfig() Config {
	return Config{
		MarketplaceFeeRate: dec("0.89"),
		WithholdingTaxRate: dec("1"),
		CommissionEnabled:  true,
	}
}

func TestCompute(t *testing.T) {
	b, err := Compute(defaultConfig(), dec("200.00"), dec("10"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, b.TotalPrice.Equal(dec("200.00")), "total: %s", b.TotalPrice)
	assert.True(t, b.CommissionAmount.Equal(dec("20.00")), "commission: %s", b.CommissionAmount)
	assert.True(t, b.MarketplaceFee.Equal(dec("1.78")), "marketplace fee: %s", b.MarketplaceFee)
	assert.True(t, b.WithholdingTax.Equal(dec("2.00")), "withholding: %s", b.WithholdingTax)
	assert.True(t, b.NetSellerAmount.Equal(dec("176.22")), "net: %s", b.NetSellerAmount)
}

func TestComputeClosure(t *testing.T) {
	cfg := defaultConfig()

	cases := []struct {
		total, rate, shipping string
	}{
		{"200.00", "10", "0"},
		{"99.99", "7.5", "4.50"},
		{"0.01", "10", "0"},
		{"1234.56", "12.25", "25.00"},
		{"0", "10", "0"},
		{"333.33", "3.33", "0.01"},
	}

	for _, tc := range cases {
		b, err := Compute(cfg, dec(tc.total), dec(tc.rate), dec(tc.shipping))
		require.NoError(t, err)

		sum := b.NetSellerAmount.
			Add(b.CommissionAmount).
			Add(b.MarketplaceFee).
			Add(b.WithholdingTax).
			Add(b.ShippingCostShare)
		assert.True(t, sum.Equal(b.TotalPrice),
			"closure broken for total=%s: %s != %s", tc.total, sum, b.TotalPrice)
	}
}

func TestComputeRoundsHalfAwayFromZero(t *testing.T) {
	cfg := Config{
		MarketplaceFeeRate: dec("1"),
		WithholdingTaxRate: decimal.Zero,
		CommissionEnabled:  true,
	}

	// 0.50 * 1% = 0.005, must round up to 0.01 rather than banker's 0.00
	b, err := Compute(cfg, dec("0.50"), decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, b.MarketplaceFee.Equal(dec("0.01")), "got %s", b.MarketplaceFee)
}

func TestComputePerComponentRounding(t *testing.T) {
	// Each component rounds after its own multiplication, not on the sum of
	// raw products.
	cfg := Config{
		MarketplaceFeeRate: dec("0.89"),
		WithholdingTaxRate: dec("1"),
		CommissionEnabled:  true,
	}

	b, err := Compute(cfg, dec("33.33"), dec("10"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, b.CommissionAmount.Equal(dec("3.33")), "commission: %s", b.CommissionAmount)
	assert.True(t, b.MarketplaceFee.Equal(dec("0.30")), "marketplace fee: %s", b.MarketplaceFee)
	assert.True(t, b.WithholdingTax.Equal(dec("0.33")), "withholding: %s", b.WithholdingTax)
	assert.True(t, b.NetSellerAmount.Equal(dec("29.37")), "net: %s", b.NetSellerAmount)
}

func TestComputeCommissionDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.CommissionEnabled = false

	b, err := Compute(cfg, dec("200.00"), dec("10"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, b.CommissionAmount.IsZero())
	assert.True(t, b.NetSellerAmount.Equal(dec("196.22")), "net: %s", b.NetSellerAmount)
}

func TestComputeRejectsNegativeTotal(t *testing.T) {
	_, err := Compute(defaultConfig(), dec("-1.00"), dec("10"), decimal.Zero)
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func TestPlatformCut(t *testing.T) {
	b, err := Compute(defaultConfig(), dec("200.00"), dec("10"), dec("5.00"))
	require.NoError(t, err)
	assert.True(t, b.PlatformCut().Equal(dec("23.78")), "cut: %s", b.PlatformCut())
}
