package moderation

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adboard/adboard/pkg/types"
)

// Reviewer screens a buyer creative before it is attached to an order.
type Reviewer interface {
	Review(ctx context.Context, buttonText, buttonURL string) (*types.ModerationVerdict, error)
}

// HeuristicReviewer is the built-in screen: a URL denylist and a handful of
// text categories. A rejection names the category so the buyer knows what to
// fix.
type HeuristicReviewer struct {
	log *zap.SugaredLogger
}

func NewHeuristicReviewer(log *zap.SugaredLogger) *HeuristicReviewer {
	return &HeuristicReviewer{log: log}
}

var _ Reviewer = (*HeuristicReviewer)(nil)

var bannedHosts = []string{
	"bit.ly", "tinyurl.com", "t.ly", "is.gd", // opaque shorteners
}

var textCategories = map[string][]string{
	"gambling": {"casino", "jackpot", "betting"},
	"scam":     {"double your", "guaranteed profit", "free money"},
	"adult":    {"porn", "xxx"},
}

func (r *HeuristicReviewer) Review(ctx context.Context, buttonText, buttonURL string) (*types.ModerationVerdict, error) {
	lowered := strings.ToLower(buttonText)
	for category, words := range textCategories {
		for _, w := range words {
			if strings.Contains(lowered, w) {
				return &types.ModerationVerdict{
					Passed:   false,
					Category: category,
					Reason:   "button text matched a restricted term",
				}, nil
			}
		}
	}

	url := strings.ToLower(buttonURL)
	for _, host := range bannedHosts {
		if strings.Contains(url, "//"+host+"/") || strings.HasSuffix(url, "//"+host) {
			return &types.ModerationVerdict{
				Passed:   false,
				Category: "shortener",
				Reason:   "link shorteners are not allowed, use the destination URL",
			}, nil
		}
	}

	return &types.ModerationVerdict{Passed: true}, nil
}

var Module = fx.Options(
	fx.Provide(
		NewHeuristicReviewer,
		func(r *HeuristicReviewer) Reviewer { return r },
	),
)
