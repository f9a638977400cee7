package upay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adboard/adboard/pkg/config"
)

// StatusPaid is the only gateway status code that denotes final settlement.
const StatusPaid = 2

const createOrderRetries = 2

// Client is the outbound half of the settlement gateway adapter.
type Client struct {
	baseURL   string
	secretKey string
	httpc     *http.Client
	log       *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.Upay.BaseURL, "/"),
		secretKey: cfg.Upay.SecretKey,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

type CreateOrderRequest struct {
	OrderID     string
	AmountCents int64
	PayType     string
	NotifyURL   string
	RedirectURL string
}

type CreateOrderResult struct {
	TradeID    string
	PaymentURL string
	PayAddress string
	PayType    string
	// ActualAmountCents may legitimately differ slightly from the requested
	// amount to disambiguate concurrent orders on one receiving address.
	ActualAmountCents int64
	ExpiresAt         *time.Time
	Raw               json.RawMessage
}

type StatusResult struct {
	Status  int
	TradeID string
	Raw     json.RawMessage
}

// CreateOrder signs and submits an order creation request. Transport errors
// are retried a bounded number of times; the order stays in a recoverable
// pre-commit state on failure.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("upay base_url not configured")
	}
	if c.secretKey == "" {
		return nil, fmt.Errorf("upay secret_key not configured")
	}

	amount := FormatCents(req.AmountCents)
	sigParams := map[string]string{
		"type":         req.PayType,
		"order_id":     req.OrderID,
		"amount":       amount,
		"notify_url":   req.NotifyURL,
		"redirect_url": req.RedirectURL,
	}
	body := map[string]any{
		"type":         req.PayType,
		"order_id":     req.OrderID,
		"amount":       json.Number(amount),
		"notify_url":   req.NotifyURL,
		"redirect_url": req.RedirectURL,
		"signature":    BuildSignature(sigParams, c.secretKey, false),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create_order request: %w", err)
	}

	var raw []byte
	var lastErr error
	for attempt := 0; attempt <= createOrderRetries; attempt++ {
		raw, lastErr = c.post(ctx, c.baseURL+"/api/create_order", payload)
		if lastErr == nil {
			break
		}
		c.log.Warnw("upay_create_order_retry", "order_id", req.OrderID, "attempt", attempt, "err", lastErr)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("upay create_order failed: %w", lastErr)
	}

	res, err := parseCreateOrderResponse(raw)
	if err != nil {
		return nil, err
	}
	if res.PayType == "" {
		res.PayType = req.PayType
	}
	return res, nil
}

// CheckStatus is the pull-based settlement fallback for callbacks that never
// arrive.
func (c *Client) CheckStatus(ctx context.Context, tradeID string) (*StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pay/check-status/"+tradeID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upay check-status failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upay check-status HTTP %d: %s", resp.StatusCode, truncate(raw, 500))
	}

	data := extractData(raw)
	status, _ := strconv.Atoi(strings.TrimSpace(stringField(data, "status", "Status")))
	return &StatusResult{
		Status:  status,
		TradeID: stringField(data, "trade_id", "TradeId"),
		Raw:     raw,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(raw, 500))
	}
	return raw, nil
}

// parseCreateOrderResponse tolerates the field-name drift observed across
// gateway versions (trade_id/TradeId, payment_url/paymentUrl/url,
// expiration_time in unix seconds or millis).
func parseCreateOrderResponse(raw []byte) (*CreateOrderResult, error) {
	data := extractData(raw)
	if data == nil {
		return nil, fmt.Errorf("upay create_order response is not JSON: %s", truncate(raw, 500))
	}

	res := &CreateOrderResult{
		TradeID:    stringField(data, "trade_id", "TradeId"),
		PaymentURL: stringField(data, "payment_url", "paymentUrl", "url"),
		PayAddress: stringField(data, "token", "Token", "address"),
		PayType:    stringField(data, "type", "Type"),
		Raw:        raw,
	}
	if res.TradeID == "" {
		return nil, fmt.Errorf("upay create_order response missing trade_id")
	}
	if s := stringField(data, "actual_amount", "actualAmount"); s != "" {
		cents, err := ParseCents(s)
		if err != nil {
			return nil, fmt.Errorf("upay actual_amount: %w", err)
		}
		res.ActualAmountCents = cents
	}
	if s := stringField(data, "expiration_time", "expirationTime"); s != "" {
		if t := coerceEpoch(s); t != nil {
			res.ExpiresAt = t
		}
	}
	return res, nil
}

func extractData(raw []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil
	}
	if data, ok := obj["data"].(map[string]any); ok {
		return data
	}
	return obj
}

func stringField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// coerceEpoch accepts unix seconds or milliseconds.
func coerceEpoch(s string) *time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if f > 1e12 {
		f = f / 1000.0
	}
	t := time.Unix(int64(f), 0)
	return &t
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
