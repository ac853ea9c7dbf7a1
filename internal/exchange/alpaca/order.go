package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/trigger-trader/pkg/logger"
)

// DefaultBaseURL is the paper trading endpoint.
const DefaultBaseURL = "https://paper-api.alpaca.markets"

// Client places orders through the Alpaca trading API.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Alpaca API client. An empty baseURL selects the
// paper endpoint.
func NewClient(apiKey, secretKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	c.SetBaseURL(baseURL)
	return c
}

// SetBaseURL points the client at another host, e.g. a mock server in tests.
// A trailing "/" or "/v2" is dropped since endpoints carry the version.
func (c *Client) SetBaseURL(u string) {
	if u == "" {
		u = DefaultBaseURL
	}
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/v2")
	c.baseURL = u
}

// BaseURL returns the host the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	return req, nil
}

// NewMarketOrder builds a day market order with a fresh client order id.
func NewMarketOrder(symbol, side string, qty int) OrderRequest {
	return OrderRequest{
		Symbol:        strings.ToUpper(symbol),
		Side:          strings.ToLower(side),
		Type:          "market",
		TimeInForce:   "day",
		Qty:           qty,
		ClientOrderID: uuid.NewString(),
	}
}

// NewOrder sends a new order request to Alpaca.
func (c *Client) NewOrder(ctx context.Context, reqBody OrderRequest) (*OrderResponse, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v2/orders", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new order request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute new order request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read new order response body (status: %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return nil, apiErr
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(bodyBytes, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode new order response (status: %d, body: %s): %w", resp.StatusCode, string(bodyBytes), err)
	}
	logger.Debugf("[OMS] order response: %s", string(bodyBytes))
	return &orderResp, nil
}
