package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventpay/internal/errors"
)

// CollectionRequest is the normalized payment instruction sent to the
// mobile-money gateway.
type CollectionRequest struct {
	PayerAccount string          `json:"customer_number"`
	PayerName    string          `json:"customer_name,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Network      string          `json:"network"`
	Narration    string          `json:"narration,omitempty"`
	Reference    string          `json:"reference"`
	CallbackURL  string          `json:"callback_url,omitempty"`
	PartnerCode  string          `json:"partner_code"`
}

// CollectionResult carries whatever the gateway replied. RawResponse is kept
// verbatim; Reference is the gateway's transaction reference, or the locally
// synthesized one when the gateway did not supply any, so later lookups never
// fail on a missing key.
type CollectionResult struct {
	Reference   string
	RawResponse json.RawMessage
}

// Client sends payment instructions to the external mobile-money gateway.
type Client interface {
	Collect(ctx context.Context, req CollectionRequest) (*CollectionResult, error)
}

// Config holds gateway connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	PartnerCode string
	CallbackURL string
	Timeout     time.Duration
}

// HTTPClient is the production gateway client.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates a gateway client from config.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// NewReference synthesizes a unique local transaction reference.
func NewReference() string {
	return "EVP-" + uuid.New().String()
}

// Collect posts the collection request to the gateway and returns its raw
// reply. A non-2xx reply is a rejection; the body is still returned so the
// caller can persist it for diagnostics.
func (c *HTTPClient) Collect(ctx context.Context, req CollectionRequest) (*CollectionResult, error) {
	if req.Reference == "" {
		req.Reference = NewReference()
	}
	if req.PartnerCode == "" {
		req.PartnerCode = c.cfg.PartnerCode
	}
	if req.CallbackURL == "" && c.cfg.CallbackURL != "" {
		req.CallbackURL = c.cfg.CallbackURL + "/api/payments/callback"
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal collection request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/collections", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build collection request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &errors.GatewayError{Kind: "unreachable", Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.GatewayError{Kind: "malformed_response", Detail: err.Error(), Err: err}
	}

	result := &CollectionResult{
		Reference:   extractReference(body),
		RawResponse: json.RawMessage(body),
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &errors.GatewayError{
			Kind:   "rejected",
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 500)),
		}
	}
	return result, nil
}

// extractReference probes the usual spots gateways put their transaction
// reference in. Returns "" when none is present.
func extractReference(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	candidates := []string{"transaction_id", "transaction_reference", "reference", "transactionid"}
	for _, key := range candidates {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		for _, key := range candidates {
			if v, ok := data[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
