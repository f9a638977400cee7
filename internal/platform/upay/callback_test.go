package upay

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "&") + secret)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func TestParseCallbackNormalizesNumbers(t *testing.T) {
	// the gateway signs "10" for an amount it serializes as 10.00
	raw := []byte(`{"status":2,"order_id":"SLT17000000001A2B3C4D","trade_id":"T123","amount":10.00,"actual_amount":10.01,"block_transaction_id":"0xabc"}`)
	cb, err := ParseCallback(raw)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, cb.Status)
	require.Equal(t, "SLT17000000001A2B3C4D", cb.OrderID)
	require.Equal(t, "T123", cb.TradeID)
	require.Equal(t, int64(1000), cb.AmountCents)
	require.Equal(t, int64(1001), cb.ActualAmountCents)
	require.Equal(t, "10", cb.Params["amount"])
	require.Equal(t, "10.01", cb.Params["actual_amount"])
}

func TestParseCallbackAndVerify(t *testing.T) {
	params := map[string]string{
		"status":   "2",
		"order_id": "SLT17000000001A2B3C4D",
		"trade_id": "T123",
		"amount":   "25.5",
	}
	params["signature"] = signParams(params, "sk")

	body := map[string]any{}
	for k, v := range params {
		if k == "amount" {
			body[k] = json.Number("25.50")
			continue
		}
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	cb, err := ParseCallback(raw)
	require.NoError(t, err)
	require.True(t, cb.Verify("sk"))
	require.False(t, cb.Verify("other"))
}

func TestParseCallbackRejectsMalformed(t *testing.T) {
	_, err := ParseCallback([]byte(`[]`))
	require.Error(t, err)

	_, err = ParseCallback([]byte(`{"status":"paid"}`))
	require.Error(t, err)

	_, err = ParseCallback([]byte(`{"amount":"1.001"}`))
	require.Error(t, err)
}
