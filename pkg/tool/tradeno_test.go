package tool

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTradeNo(t *testing.T) {
	slt := NewTradeNo("SLT")
	require.Regexp(t, regexp.MustCompile(`^SLT\d{10}[0-9A-F]{8}$`), slt)

	ad := NewTradeNo("AD")
	require.Regexp(t, regexp.MustCompile(`^AD\d{10}[0-9A-F]{8}$`), ad)

	// suffix entropy keeps same-second numbers distinct
	require.NotEqual(t, NewTradeNo("SLT"), NewTradeNo("SLT"))
}
