package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"settlement-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondErrorEmptyCart(t *testing.T) {
	w, body := respond(t, models.ErrEmptyCart)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EMPTY_CART", body["code"])
}

func TestRespondErrorCartConverted(t *testing.T) {
	w, body := respond(t, models.ErrCartConverted)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CART_CONVERTED", body["code"])
}

func TestRespondErrorStock(t *testing.T) {
	w, body := respond(t, &models.StockError{
		OfferID:     3,
		ProductName: "Mug",
		Requested:   5,
		Available:   2,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "STOCK_INSUFFICIENT:Mug", body["code"])
	assert.Equal(t, "Mug", body["product"])
}

func TestRespondErrorValidation(t *testing.T) {
	w, body := respond(t, &models.ValidationError{
		Issues: []models.CartIssue{
			{OfferID: 1, Type: models.IssueUnavailable, ProductName: "Mug"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Len(t, body["issues"], 1)
}

func TestRespondErrorTransition(t *testing.T) {
	w, body := respond(t, &models.TransitionError{
		Entity:  "order",
		From:    models.OrderStatusShipped,
		To:      models.OrderStatusCancelled,
		Allowed: models.AllowedOrderTransitions(models.OrderStatusShipped),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	assert.Equal(t, "shipped", body["from"])
}

func TestRespondErrorPayoutGuards(t *testing.T) {
	w, body := respond(t, models.ErrInsufficientBalance)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["code"])

	w, body = respond(t, models.ErrPayoutOutstanding)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PAYOUT_OUTSTANDING", body["code"])

	w, body = respond(t, models.ErrBankAccountRequired)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "BANK_ACCOUNT_REQUIRED", body["code"])
}

func TestRespondErrorNotFound(t *testing.T) {
	for _, err := range []error{
		models.ErrOrderNotFound,
		models.ErrCartNotFound,
		models.ErrOfferNotFound,
		models.ErrWalletNotFound,
		models.ErrPayoutNotFound,
	} {
		w, body := respond(t, err)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", body["code"])
	}
}

func TestRespondErrorDefault(t *testing.T) {
	w, _ := respond(t, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOrderLifecycleRoutesRegistered(t *testing.T) {
	router := gin.New()
	h := NewHandler(nil, nil, nil, nil)
	h.SetupRoutes(router)

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	// shipping progress must be reachable over HTTP, or delivered orders can
	// never release their pending balances
	assert.True(t, registered["POST /api/v1/orders/:id/status"])
	assert.True(t, registered["POST /api/v1/orders/:id/cancel"])
	assert.True(t, registered["POST /api/v1/orders"])
}

func TestHealthEndpoints(t *testing.T) {
	router := gin.New()
	h := NewHandler(nil, nil, nil, nil)
	h.SetupRoutes(router)

	for _, path := range []string{"/health", "/ready"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
