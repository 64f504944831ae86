package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type serviceMock struct {
	cart   *domain.Cart
	err    error
	merged *service.MergeResult

	userID    string
	ref       string
	quantity  int
	variation *domain.Variation
	lines     domain.Lines
	calls     []string
}

func (m *serviceMock) record(call, userID string) {
	m.calls = append(m.calls, call)
	m.userID = userID
}

func (m *serviceMock) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.record("GetCart", userID)
	return m.cart, m.err
}

func (m *serviceMock) AddLine(_ context.Context, userID, ref string, q int, v *domain.Variation) (*domain.Cart, error) {
	m.record("AddLine", userID)
	m.ref, m.quantity, m.variation = ref, q, v
	return m.cart, m.err
}

func (m *serviceMock) UpdateQuantity(_ context.Context, userID, ref string, q int, v *domain.Variation) (*domain.Cart, error) {
	m.record("UpdateQuantity", userID)
	m.ref, m.quantity, m.variation = ref, q, v
	return m.cart, m.err
}

func (m *serviceMock) RemoveLine(_ context.Context, userID, ref string, v *domain.Variation) (*domain.Cart, error) {
	m.record("RemoveLine", userID)
	m.ref, m.variation = ref, v
	return m.cart, m.err
}

func (m *serviceMock) ClearCart(_ context.Context, userID string) error {
	m.record("ClearCart", userID)
	return m.err
}

func (m *serviceMock) MergeGuestCart(_ context.Context, userID string, lines domain.Lines) (*service.MergeResult, error) {
	m.record("MergeGuestCart", userID)
	m.lines = lines
	if m.err != nil {
		return nil, m.err
	}
	return m.merged, nil
}

type catalogMock struct {
	products []*domain.Product
	err      error
	category string
}

func (c *catalogMock) GetProduct(_ context.Context, ref string) (*domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, p := range c.products {
		if p.Ref == ref {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (c *catalogMock) ListProducts(_ context.Context, category string) ([]*domain.Product, error) {
	c.category = category
	return c.products, c.err
}

func newTestRouter(svc CartService, cat catalog.Catalog) http.Handler {
	return NewRouter(RouterConfig{
		Carts:          svc,
		Catalog:        cat,
		JWTSecret:      testSecret,
		RequestTimeout: 5 * time.Second,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	token, err := auth.NewToken(testSecret, "user123", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleCart() *domain.Cart {
	return &domain.Cart{
		UserID: "user123",
		Items: domain.Lines{{
			ProductRef:  "phone",
			Quantity:    2,
			PriceAtTime: decimal.NewNullDecimal(decimal.NewFromInt(1500)),
			Variation:   &domain.Variation{Color: "red"},
		}},
	}
}

func TestGetCart_Success(t *testing.T) {
	svc := &serviceMock{cart: sampleCart()}
	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodGet, "/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user123", svc.userID)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "phone", cart.Items[0].ProductRef)
	assert.True(t, cart.Items.Total().Equal(decimal.NewFromInt(3000)))
}

func TestCart_RequiresToken(t *testing.T) {
	svc := &serviceMock{cart: sampleCart()}
	h := newTestRouter(svc, &catalogMock{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestAddLine_Success(t *testing.T) {
	svc := &serviceMock{cart: sampleCart()}
	body := LineRequestDTO{ProductID: "phone", Quantity: 2, Variation: &domain.Variation{Color: "red", RAM: "8GB"}}

	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPost, "/cart", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "phone", svc.ref)
	assert.Equal(t, 2, svc.quantity)
	assert.Equal(t, &domain.Variation{Color: "red", RAM: "8GB"}, svc.variation)
}

func TestAddLine_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
		code string
	}{
		{"zero quantity", LineRequestDTO{ProductID: "phone", Quantity: 0}, "invalid_quantity"},
		{"too many", LineRequestDTO{ProductID: "phone", Quantity: 100}, "invalid_quantity"},
		{"missing product", LineRequestDTO{Quantity: 1}, "invalid_product_id"},
		{"not json", "garbage", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceMock{cart: sampleCart()}
			rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPost, "/cart", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestUpdateQuantity_ZeroIsAllowed(t *testing.T) {
	svc := &serviceMock{cart: &domain.Cart{UserID: "user123", Items: domain.Lines{}}}
	body := LineRequestDTO{ProductID: "phone", Quantity: 0, Variation: &domain.Variation{Color: "red"}}

	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPut, "/cart", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"UpdateQuantity"}, svc.calls)
	assert.Equal(t, 0, svc.quantity)
}

func TestUpdateQuantity_NegativeRejected(t *testing.T) {
	svc := &serviceMock{}
	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPut, "/cart", LineRequestDTO{ProductID: "phone", Quantity: -1})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestRemoveLine(t *testing.T) {
	svc := &serviceMock{cart: sampleCart()}
	body := LineRequestDTO{ProductID: "phone", Variation: &domain.Variation{Color: "blue"}}

	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodDelete, "/cart/items", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"RemoveLine"}, svc.calls)
	assert.Equal(t, "blue", svc.variation.Color)
}

func TestClearCart(t *testing.T) {
	svc := &serviceMock{}
	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodDelete, "/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, "user123", cart.UserID)
	assert.Empty(t, cart.Items)
}

func TestMergeGuestCart(t *testing.T) {
	svc := &serviceMock{merged: &service.MergeResult{Cart: sampleCart()}}
	body := MergeRequestDTO{Items: domain.Lines{
		{ProductRef: "phone", Quantity: 2, Variation: &domain.Variation{Color: "red"}},
		{ProductRef: "ghost", Quantity: 1},
	}}

	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPost, "/cart/merge", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.lines, 2)

	var resp struct {
		Cart    domain.Cart `json:"cart"`
		Skipped []string    `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Cart.Items, 1)
	assert.NotNil(t, resp.Skipped)
}

func TestMergeGuestCart_Validation(t *testing.T) {
	tests := []struct {
		name  string
		items domain.Lines
		code  string
	}{
		{"missing product", domain.Lines{{Quantity: 1}}, "invalid_product_id"},
		{"zero quantity", domain.Lines{{ProductRef: "phone", Quantity: 0}}, "invalid_quantity"},
		{"negative quantity", domain.Lines{{ProductRef: "phone", Quantity: -3}}, "invalid_quantity"},
		{"too many", domain.Lines{{ProductRef: "phone", Quantity: 1}, {ProductRef: "laptop", Quantity: 100}}, "invalid_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceMock{}

			rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodPost, "/cart/merge", MergeRequestDTO{Items: tt.items})

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{catalog.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
		{domain.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
		{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{domain.ErrQuantityLimit, http.StatusBadRequest, "quantity_limit"},
		{repository.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
		{errors.Join(catalog.ErrUnavailable, errors.New("circuit breaker is open")), http.StatusServiceUnavailable, "service_unavailable"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("mongo: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &serviceMock{err: tt.err}
			rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodGet, "/cart", nil)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	svc := &serviceMock{err: errors.New("mongo: auth failed for user admin")}
	rec := doRequest(t, newTestRouter(svc, &catalogMock{}), http.MethodGet, "/cart", nil)

	assert.NotContains(t, rec.Body.String(), "admin")
}
