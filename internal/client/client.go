// Package client calls the remote cart REST API on behalf of a logged-in
// user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the cart API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s: %s", e.Status, e.Code, e.Message)
}

type MergeResult struct {
	Cart    *domain.Cart `json:"cart"`
	Skipped []string     `json:"skipped"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lineRequest struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variation *domain.Variation `json:"variation,omitempty"`
}

func (c *Client) GetCart(ctx context.Context) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) AddLine(ctx context.Context, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error) {
	var cart domain.Cart
	req := lineRequest{ProductID: productRef, Quantity: quantity, Variation: v}
	if err := c.do(ctx, http.MethodPost, "/cart", req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) UpdateQuantity(ctx context.Context, productRef string, quantity int, v *domain.Variation) (*domain.Cart, error) {
	var cart domain.Cart
	req := lineRequest{ProductID: productRef, Quantity: quantity, Variation: v}
	if err := c.do(ctx, http.MethodPut, "/cart", req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart", nil, nil)
}

func (c *Client) Merge(ctx context.Context, lines domain.Lines) (*MergeResult, error) {
	var res MergeResult
	body := struct {
		Items domain.Lines `json:"items"`
	}{Items: lines}
	if err := c.do(ctx, http.MethodPost, "/cart/merge", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MergeGuestCart lets a guestcart.Store hand its lines to the server.
func (c *Client) MergeGuestCart(ctx context.Context, lines domain.Lines) error {
	res, err := c.Merge(ctx, lines)
	if err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		c.logger.Info("server skipped guest lines", zap.Strings("product_refs", res.Skipped))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
