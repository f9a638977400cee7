package schedule

import (
	"fmt"
	"time"

	"github.com/adboard/adboard/pkg/types"
)

// A cadencePolicy returns the first fire time strictly after `after`.
// Policies must be pure so that rolling forward past a gap of missed firings
// is just repeated application.
type cadencePolicy func(params types.CadenceParams, after time.Time) (time.Time, error)

var cadencePolicies = map[types.CadenceKind]cadencePolicy{
	types.CadenceDailyAt:     nextDailyAt,
	types.CadenceEveryNHours: nextEveryNHours,
}

// ValidateCadence rejects unknown kinds and malformed parameters before they
// reach the stored config.
func ValidateCadence(kind types.CadenceKind, params types.CadenceParams) error {
	switch kind {
	case types.CadenceDailyAt:
		if _, _, err := parseClock(params.Time); err != nil {
			return err
		}
		return nil
	case types.CadenceEveryNHours:
		if params.Hours < 1 || params.Hours > 168 {
			return fmt.Errorf("every_n_hours requires 1..168 hours, got %d", params.Hours)
		}
		return nil
	}
	return fmt.Errorf("unsupported cadence kind %q", kind)
}

// ComputeNext returns the first fire time strictly after both `after` and
// `now`. When the process was down across several due firings, the missed
// ones collapse into a single next occurrence instead of a burst.
func ComputeNext(kind types.CadenceKind, params types.CadenceParams, after, now time.Time) (time.Time, error) {
	policy, ok := cadencePolicies[kind]
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported cadence kind %q", kind)
	}
	next, err := policy(params, after)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		next, err = policy(params, next)
		if err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

func nextDailyAt(params types.CadenceParams, after time.Time) (time.Time, error) {
	hh, mm, err := parseClock(params.Time)
	if err != nil {
		return time.Time{}, err
	}
	candidate := time.Date(after.Year(), after.Month(), after.Day(), hh, mm, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func nextEveryNHours(params types.CadenceParams, after time.Time) (time.Time, error) {
	if params.Hours < 1 {
		return time.Time{}, fmt.Errorf("every_n_hours requires a positive interval")
	}
	return after.Add(time.Duration(params.Hours) * time.Hour), nil
}

func parseClock(s string) (int, int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, fmt.Errorf("invalid fire time %q, want HH:MM", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("fire time %q out of range", s)
	}
	return hh, mm, nil
}
