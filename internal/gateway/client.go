package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/playarena/credit_engine/pkg/errors"
)

// Client is the contract against the external payment gateway. Its
// responses are advisory: the reconciliation engine maps them onto the
// internal state machine and never trusts them blindly.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrderStatus(ctx context.Context, gatewayOrderID string) (*OrderStatus, error)
}

type CreateOrderRequest struct {
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	CorrelationID string `json:"external_reference"`
	Method        string `json:"method,omitempty"`
}

type CreateOrderResponse struct {
	GatewayOrderID string `json:"order_id"`
	RedirectURL    string `json:"redirect_url"`
}

type OrderStatus struct {
	GatewayOrderID string    `json:"order_id"`
	Status         string    `json:"status"`
	Cancelled      bool      `json:"cancelled"`
	Payments       []Payment `json:"payments"`
}

type Payment struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Detail    string `json:"status_detail"`
	Amount    int64  `json:"amount"`
}

// HTTPClient talks to the gateway's REST API with a bounded timeout.
// A timed-out call means "unknown", never "rejected"; callers receive
// GATEWAY_UNAVAILABLE and are expected to retry with backoff.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode order request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/orders", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create gateway request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "gateway call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errors.New(errors.ErrCodeGatewayUnavailable,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.New(errors.ErrCodeInternalError,
			fmt.Sprintf("gateway rejected order creation: %d %s", resp.StatusCode, string(detail)))
	}

	var out CreateOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "failed to decode gateway response")
	}
	if out.GatewayOrderID == "" || out.RedirectURL == "" {
		return nil, errors.New(errors.ErrCodeGatewayUnavailable, "gateway response missing order id or redirect url")
	}

	return &out, nil
}

func (c *HTTPClient) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*OrderStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/orders/%s", c.baseURL, gatewayOrderID), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create gateway request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "gateway call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "order not known to gateway")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeGatewayUnavailable,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	var out OrderStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "failed to decode gateway response")
	}

	return &out, nil
}
