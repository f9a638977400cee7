package upay

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signature scheme: non-empty params sorted by key, joined as k=v with "&",
// secret appended, MD5 hex. Deployed gateways disagree on whether a "&"
// precedes the secret, so verification tries both conventions in order.

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// BuildSignature signs params with the shared secret. ampersandBeforeSecret
// selects the divergent concatenation convention.
func BuildSignature(params map[string]string, secretKey string, ampersandBeforeSecret bool) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, strings.TrimSpace(params[k])))
	}
	paramStr := strings.Join(pairs, "&")
	if ampersandBeforeSecret && paramStr != "" {
		return md5Hex(paramStr + "&" + secretKey)
	}
	return md5Hex(paramStr + secretKey)
}

// VerifySignature checks a callback payload (signature field excluded from
// the parameter string) against both concatenation conventions, accepting on
// the first match.
func VerifySignature(payload map[string]string, secretKey string) bool {
	signature := strings.ToLower(strings.TrimSpace(payload["signature"]))
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == "signature" {
			continue
		}
		params[k] = v
	}
	for _, ampersand := range []bool{false, true} {
		if signature == strings.ToLower(BuildSignature(params, secretKey, ampersand)) {
			return true
		}
	}
	return false
}
