package upay

import (
	"fmt"
	"strconv"
	"strings"
)

// Amounts are carried as integer cents internally and as decimal strings on
// the wire. The gateway normalizes decimals ("10.00" -> "10") before signing,
// so both directions need an exact, float-free conversion.

// ParseCents converts a decimal string (or bare integer) to cents.
// At most two fractional digits are accepted; anything finer is a gateway
// contract violation.
func ParseCents(s string) (int64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(v, "-") {
		neg = true
		v = v[1:]
	}
	whole, frac := v, ""
	if i := strings.IndexByte(v, '.'); i >= 0 {
		whole, frac = v[:i], v[i+1:]
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders cents as a normalized decimal string: no trailing
// zeros, no dangling point ("1001" cents -> "10.01", "10000" -> "100").
// This is the form that participates in signatures.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := fmt.Sprintf("%s%d.%02d", sign, whole, frac)
	return strings.TrimRight(s, "0")
}
