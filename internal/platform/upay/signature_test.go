package upay

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestBuildSignatureSortsAndSkipsEmpty(t *testing.T) {
	params := map[string]string{
		"b":     "2",
		"a":     "1",
		"empty": "",
	}
	got := BuildSignature(params, "secret", false)
	require.Equal(t, md5hex("a=1&b=2secret"), got)

	got = BuildSignature(params, "secret", true)
	require.Equal(t, md5hex("a=1&b=2&secret"), got)
}

func TestVerifySignatureAcceptsBothConventions(t *testing.T) {
	params := map[string]string{
		"order_id": "SLT17000000001A2B3C4D",
		"amount":   "100",
		"status":   "2",
	}
	paramstr := "amount=100&order_id=SLT17000000001A2B3C4D&status=2"

	withConcat := map[string]string{}
	for k, v := range params {
		withConcat[k] = v
	}
	withConcat["signature"] = md5hex(paramstr + "sk")
	require.True(t, VerifySignature(withConcat, "sk"))

	withAmp := map[string]string{}
	for k, v := range params {
		withAmp[k] = v
	}
	withAmp["signature"] = md5hex(paramstr + "&" + "sk")
	require.True(t, VerifySignature(withAmp, "sk"))
}

func TestVerifySignatureRejects(t *testing.T) {
	params := map[string]string{
		"order_id":  "SLT1",
		"amount":    "100",
		"signature": md5hex("amount=100&order_id=SLT1" + "right"),
	}
	require.False(t, VerifySignature(params, "wrong"))

	// missing signature field
	require.False(t, VerifySignature(map[string]string{"a": "1"}, "sk"))
}

func TestVerifySignatureCaseInsensitiveDigest(t *testing.T) {
	paramstr := "amount=5&order_id=X"
	params := map[string]string{
		"order_id":  "X",
		"amount":    "5",
		"signature": "  " + upper(md5hex(paramstr+"sk")) + "  ",
	}
	require.True(t, VerifySignature(params, "sk"))
}

func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'f' {
			b[i] -= 32
		}
	}
	return string(b)
}
