package upay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Callback is a decoded settlement notification. Params holds every field as
// the normalized string that participates in signature verification.
type Callback struct {
	Status             int
	OrderID            string
	TradeID            string
	AmountCents        int64
	ActualAmountCents  int64
	BlockTransactionID string
	Params             map[string]string
}

// ParseCallback decodes a callback body. Numbers keep their wire form
// (normalized: no trailing zeros) so recomputed signatures match what the
// gateway signed.
func ParseCallback(raw []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("callback is not a JSON object: %w", err)
	}

	params := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			params[k] = val
		case json.Number:
			params[k] = normalizeNumber(val.String())
		case bool:
			params[k] = strconv.FormatBool(val)
		case nil:
			// absent from the signature parameter string
		default:
			b, _ := json.Marshal(val)
			params[k] = string(b)
		}
	}

	cb := &Callback{
		OrderID:            strings.TrimSpace(params["order_id"]),
		TradeID:            strings.TrimSpace(params["trade_id"]),
		BlockTransactionID: strings.TrimSpace(params["block_transaction_id"]),
		Params:             params,
	}
	if s := params["status"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid callback status %q", s)
		}
		cb.Status = n
	}
	if s := params["amount"]; s != "" {
		cents, err := ParseCents(s)
		if err != nil {
			return nil, fmt.Errorf("invalid callback amount: %w", err)
		}
		cb.AmountCents = cents
	}
	if s := params["actual_amount"]; s != "" {
		cents, err := ParseCents(s)
		if err != nil {
			return nil, fmt.Errorf("invalid callback actual_amount: %w", err)
		}
		cb.ActualAmountCents = cents
	}
	return cb, nil
}

// Verify checks the callback signature with the shared secret.
func (cb *Callback) Verify(secretKey string) bool {
	return VerifySignature(cb.Params, secretKey)
}

// normalizeNumber trims a decimal literal the way the gateway does before
// signing: "10.00" -> "10", "10.010" -> "10.01".
func normalizeNumber(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
