package pointsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront-rewards/internal/resilience"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("pointsapi: client not configured")

// APIError is a non-2xx answer of the points API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pointsapi: status %d", e.Status)
	}
	return fmt.Sprintf("pointsapi: status %d: %s", e.Status, e.Message)
}

var insufficientMarkers = []string{"insufficient points", "puntos insuficientes", "saldo insuficiente"}

// IsInsufficientPoints reports whether err is an upstream refusal caused by a
// short balance. The upstream does not expose a code, so the message is matched.
func IsInsufficientPoints(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	for _, marker := range insufficientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// OrderItem is one product line of an order submission.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Payment carries the payment form fields forwarded with an order.
type Payment struct {
	CardHolder string `json:"card_holder"`
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
}

// OrderRequest is the body posted to the orders endpoint.
type OrderRequest struct {
	TotalAmount float64     `json:"total_amount"`
	UsedPoints  int64       `json:"used_points"`
	Items       []OrderItem `json:"items"`
	Payment     *Payment    `json:"payment,omitempty"`
}

// OrderResponse is the upstream acknowledgement of an order.
type OrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Client talks to the external points and orders REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    resilience.HTTPClient
}

// NewHTTPClient returns an http.Client whose transport emits client spans.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// Balance fetches the user's current points balance.
func (c *Client) Balance(ctx context.Context, userID string) (rewards.PointsBalance, error) {
	var out rewards.PointsBalance
	if err := c.call(ctx, http.MethodGet, "/points/balance", userID, nil, &out); err != nil {
		return rewards.PointsBalance{}, err
	}
	return out, nil
}

// Redeem submits a rewards redemption.
func (c *Client) Redeem(ctx context.Context, userID string, req rewards.RedemptionRequest) error {
	return c.call(ctx, http.MethodPost, "/rewards/redeem", userID, req, nil)
}

// CreateOrder submits a priced order.
func (c *Client) CreateOrder(ctx context.Context, userID string, req OrderRequest) (OrderResponse, error) {
	var out OrderResponse
	if err := c.call(ctx, http.MethodPost, "/orders", userID, req, &out); err != nil {
		return OrderResponse{}, err
	}
	return out, nil
}

// Ping checks that the upstream answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.BaseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) call(ctx context.Context, method, path, userID string, body, out any) error {
	if c == nil || c.BaseURL == "" {
		return ErrNotConfigured
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts the server message from {"message"} or {"error":{"message"}} bodies.
func errorMessage(payload []byte) string {
	var flat struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(payload, &flat); err != nil {
		return strings.TrimSpace(string(payload))
	}
	if flat.Message != "" {
		return flat.Message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(flat.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	var plain string
	if json.Unmarshal(flat.Error, &plain) == nil {
		return plain
	}
	return ""
}
