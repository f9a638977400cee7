package slots

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/types"
)

func validateCfg() *config.Config {
	cfg := &config.Config{}
	cfg.SlotAds.ButtonTextMaxLen = 30
	cfg.SlotAds.ButtonURLMaxLen = 256
	return cfg
}

func TestValidateControlAccepts(t *testing.T) {
	cfg := validateCfg()
	c := &types.SlotControl{Label: "  Visit us  ", URL: " https://example.com/landing "}
	require.NoError(t, ValidateControl(c, cfg))
	require.Equal(t, "Visit us", c.Label)
	require.Equal(t, "https://example.com/landing", c.URL)
}

func TestValidateControlRejects(t *testing.T) {
	cfg := validateCfg()
	cases := []struct {
		name string
		c    types.SlotControl
	}{
		{"empty label", types.SlotControl{Label: "", URL: "https://example.com"}},
		{"label too long", types.SlotControl{Label: strings.Repeat("x", 31), URL: "https://example.com"}},
		{"control chars", types.SlotControl{Label: "a\nb", URL: "https://example.com"}},
		{"empty url", types.SlotControl{Label: "ok", URL: ""}},
		{"http scheme", types.SlotControl{Label: "ok", URL: "http://example.com"}},
		{"javascript scheme", types.SlotControl{Label: "ok", URL: "javascript:alert(1)"}},
		{"no host", types.SlotControl{Label: "ok", URL: "https://"}},
		{"url too long", types.SlotControl{Label: "ok", URL: "https://example.com/" + strings.Repeat("x", 300)}},
		{"bad style", types.SlotControl{Label: "ok", URL: "https://example.com", Style: lo.ToPtr(types.ControlStyle("neon"))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.c
			require.Error(t, ValidateControl(&c, cfg))
		})
	}
}
