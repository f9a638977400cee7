package slots

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/types"
)

// ValidateControl enforces the button contract shared by buyer creatives and
// admin fallback controls: non-empty printable label within the length limit,
// https URL within the length limit.
func ValidateControl(c *types.SlotControl, cfg *config.Config) error {
	c.Label = strings.TrimSpace(c.Label)
	c.URL = strings.TrimSpace(c.URL)

	if c.Label == "" {
		return fmt.Errorf("button label is required")
	}
	if n := len([]rune(c.Label)); n > cfg.SlotAds.ButtonTextMaxLen {
		return fmt.Errorf("button label exceeds %d characters", cfg.SlotAds.ButtonTextMaxLen)
	}
	for _, r := range c.Label {
		if unicode.IsControl(r) {
			return fmt.Errorf("button label contains control characters")
		}
	}

	if c.URL == "" {
		return fmt.Errorf("button url is required")
	}
	if len(c.URL) > cfg.SlotAds.ButtonURLMaxLen {
		return fmt.Errorf("button url exceeds %d characters", cfg.SlotAds.ButtonURLMaxLen)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("button url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("button url must use https")
	}
	if u.Host == "" {
		return fmt.Errorf("button url is missing a host")
	}

	if c.Style != nil {
		switch *c.Style {
		case types.ControlStylePrimary, types.ControlStyleSuccess, types.ControlStyleDanger:
		default:
			return fmt.Errorf("unknown button style %q", *c.Style)
		}
	}
	return nil
}
