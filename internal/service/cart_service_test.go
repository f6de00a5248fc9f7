package service

import (
	"database/sql"
	"testing"
	"time"

	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCartIssuesCleanCart(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 1, Quantity: 2, PriceAtAddition: decimal.RequireFromString("19.99")},
	}
	offers := map[int64]*models.Offer{
		1: {ID: 1, ProductName: "Lamp", Status: models.OfferStatusActive, Stock: 4,
			Price: decimal.RequireFromString("19.99")},
	}

	assert.Empty(t, buildCartIssues(items, offers, now))
}

func TestBuildCartIssuesMissingOffer(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 5, Quantity: 1, PriceAtAddition: decimal.RequireFromString("3.00")},
	}

	issues := buildCartIssues(items, map[int64]*models.Offer{}, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueUnavailable, issues[0].Type)
	assert.Equal(t, int64(5), issues[0].OfferID)
	assert.True(t, issues[0].Blocking())
}

func TestBuildCartIssuesInactiveOffer(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 1, Quantity: 1, PriceAtAddition: decimal.RequireFromString("3.00")},
	}
	offers := map[int64]*models.Offer{
		1: {ID: 1, ProductName: "Lamp", Status: models.OfferStatusInactive, Stock: 4,
			Price: decimal.RequireFromString("3.00")},
	}

	issues := buildCartIssues(items, offers, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueUnavailable, issues[0].Type)
	assert.Equal(t, "Lamp", issues[0].ProductName)
}

func TestBuildCartIssuesExpiredOffer(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 1, Quantity: 1, PriceAtAddition: decimal.RequireFromString("3.00")},
	}
	offers := map[int64]*models.Offer{
		1: {ID: 1, ProductName: "Lamp", Status: models.OfferStatusActive, Stock: 4,
			Price:     decimal.RequireFromString("3.00"),
			ExpiresAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true}},
	}

	issues := buildCartIssues(items, offers, now)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueUnavailable, issues[0].Type)
}

func TestBuildCartIssuesStockAndPriceOnSameLine(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 1, Quantity: 5, PriceAtAddition: decimal.RequireFromString("10.00")},
	}
	offers := map[int64]*models.Offer{
		1: {ID: 1, ProductName: "Lamp", Status: models.OfferStatusActive, Stock: 2,
			Price: decimal.RequireFromString("11.00")},
	}

	issues := buildCartIssues(items, offers, now)
	require.Len(t, issues, 2)

	assert.Equal(t, models.IssueStock, issues[0].Type)
	assert.Contains(t, issues[0].Message, "requested 5 but only 2 in stock")
	assert.True(t, issues[0].Blocking())

	assert.Equal(t, models.IssuePriceChanged, issues[1].Type)
	assert.Contains(t, issues[1].Message, "10.00")
	assert.Contains(t, issues[1].Message, "11.00")
	assert.False(t, issues[1].Blocking())
}

func TestBuildCartIssuesPriceEqualDifferentScale(t *testing.T) {
	now := time.Now()
	items := []models.CartItem{
		{OfferID: 1, Quantity: 1, PriceAtAddition: decimal.RequireFromString("10.0")},
	}
	offers := map[int64]*models.Offer{
		1: {ID: 1, ProductName: "Lamp", Status: models.OfferStatusActive, Stock: 4,
			Price: decimal.RequireFromString("10.00")},
	}

	// 10.0 and 10.00 are the same price, not a change
	assert.Empty(t, buildCartIssues(items, offers, now))
}
