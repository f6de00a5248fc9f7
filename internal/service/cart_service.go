package service

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"go.uber.org/zap"
)

// CartService manages a buyer's cart and the checkout validation pass
type CartService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(st *store.Store) *CartService {
	return &CartService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// GetOrCreateCart returns the buyer's active cart, creating one if none exists
func (s *CartService) GetOrCreateCart(ctx context.Context, buyerID int64) (*models.Cart, error) {
	cart, err := s.store.GetActiveCartByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}

	cart = &models.Cart{BuyerID: buyerID}
	if err := s.store.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	cart.Status = models.CartStatusActive

	s.logger.Info("Cart created",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("buyer_id", buyerID))
	return cart, nil
}

// AddItem adds an offer to the buyer's active cart, capturing the offer's
// current price as the line's price snapshot.
func (s *CartService) AddItem(ctx context.Context, buyerID, offerID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.Sellable(time.Now()) {
		return nil, fmt.Errorf("offer %d is not available", offerID)
	}

	cart, err := s.GetOrCreateCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	item := &models.CartItem{
		CartID:          cart.ID,
		OfferID:         offerID,
		Quantity:        quantity,
		PriceAtAddition: offer.Price,
	}
	if err := s.store.UpsertCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return item, nil
}

// UpdateQuantity changes a cart line's quantity; zero removes the line
func (s *CartService) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if quantity == 0 {
		return s.store.DeleteCartItem(ctx, itemID)
	}
	return s.store.UpdateCartItemQuantity(ctx, itemID, quantity)
}

// RemoveItem deletes a cart line
func (s *CartService) RemoveItem(ctx context.Context, itemID int64) error {
	return s.store.DeleteCartItem(ctx, itemID)
}

// GetCart returns a cart with its items
func (s *CartService) GetCart(ctx context.Context, cartID int64) (*models.Cart, []models.CartItem, error) {
	cart, err := s.store.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	return cart, items, nil
}

// Validate checks every cart line against the live offers and reports issues.
// unavailable and stock issues block checkout; price_changed is informational
// and is resolved by syncing the snapshot before checkout proceeds.
func (s *CartService) Validate(ctx context.Context, cartID int64) ([]models.CartIssue, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Validate")
	defer span.End()

	cart, err := s.store.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Status != models.CartStatusActive {
		return nil, models.ErrCartConverted
	}

	items, err := s.store.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}

	offers, err := s.offersForItems(ctx, items)
	if err != nil {
		return nil, err
	}

	return buildCartIssues(items, offers, time.Now()), nil
}

func (s *CartService) offersForItems(ctx context.Context, items []models.CartItem) (map[int64]*models.Offer, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.OfferID
	}

	offers, err := s.store.GetOffersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	offerMap := make(map[int64]*models.Offer, len(offers))
	for i := range offers {
		offerMap[offers[i].ID] = &offers[i]
	}
	return offerMap, nil
}

// buildCartIssues classifies every line against the live offer state. Shared
// by the standalone validation endpoint and the order-creation transaction,
// which re-runs it on row-locked offers.
func buildCartIssues(items []models.CartItem, offers map[int64]*models.Offer, now time.Time) []models.CartIssue {
	var issues []models.CartIssue

	for _, item := range items {
		offer, ok := offers[item.OfferID]
		if !ok || !offer.Sellable(now) {
			name := ""
			if ok {
				name = offer.ProductName
			}
			issues = append(issues, models.CartIssue{
				OfferID:     item.OfferID,
				ProductName: name,
				Type:        models.IssueUnavailable,
				Message:     "offer no longer available",
			})
			continue
		}

		if offer.Stock < item.Quantity {
			issues = append(issues, models.CartIssue{
				OfferID:     item.OfferID,
				ProductName: offer.ProductName,
				Type:        models.IssueStock,
				Message: fmt.Sprintf("requested %d but only %d in stock",
					item.Quantity, offer.Stock),
			})
		}

		if !offer.Price.Equal(item.PriceAtAddition) {
			issues = append(issues, models.CartIssue{
				OfferID:     item.OfferID,
				ProductName: offer.ProductName,
				Type:        models.IssuePriceChanged,
				Message: fmt.Sprintf("price changed from %s to %s",
					item.PriceAtAddition.StringFixed(2), offer.Price.StringFixed(2)),
			})
		}
	}

	return issues
}
