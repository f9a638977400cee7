package upay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 10000},
		{"10.01", 1001},
		{"10.1", 1010},
		{"10.00", 1000},
		{"0.5", 50},
		{".5", 50},
		{"10.010", 1001},
		{"-3.25", -325},
		{" 7 ", 700},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseCentsRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "10.001", "1.2.3"} {
		_, err := ParseCents(in)
		require.Error(t, err, in)
	}
}

func TestFormatCentsNormalizes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{10000, "100"},
		{1001, "10.01"},
		{1010, "10.1"},
		{50, "0.5"},
		{0, "0"},
		{-325, "-3.25"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatCents(tc.in))
	}
}

func TestAmountRoundTripMatchesGatewayNormalization(t *testing.T) {
	// the string that participates in the callback signature must come back
	// out of our formatter byte-identical
	for _, wire := range []string{"100", "10.01", "0.5", "33.3"} {
		cents, err := ParseCents(wire)
		require.NoError(t, err)
		require.Equal(t, wire, FormatCents(cents))
	}
}
