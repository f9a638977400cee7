package tool

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewTradeNo builds an outbound order reference like "SLT1700000000A1B2C3D4".
// The prefix routes settlement callbacks to the right order family.
func NewTradeNo(prefix string) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s%d%s", prefix, time.Now().Unix(), strings.ToUpper(hex.EncodeToString(buf)))
}
