package availability

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

var ErrInvalidRule = errors.New("invalid availability rule")

// ValidateWeeklyRules allows at most one window per weekday, with start strictly before end.
func ValidateWeeklyRules(rules []model.WeeklyRule) error {
	seen := map[int]bool{}
	for _, r := range rules {
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidRule, r.DayOfWeek)
		}
		if seen[r.DayOfWeek] {
			return fmt.Errorf("%w: duplicate rule for day_of_week %d", ErrInvalidRule, r.DayOfWeek)
		}
		seen[r.DayOfWeek] = true
		if err := validateWindow(r.StartTime, r.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// ValidateOverride checks an override. Open overrides must carry both times or neither.
func ValidateOverride(o model.DateOverride) error {
	if _, err := zone.ParseDate(o.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if !o.IsAvailable {
		return nil
	}
	if o.StartTime == "" && o.EndTime == "" {
		return nil
	}
	return validateWindow(o.StartTime, o.EndTime)
}

func validateWindow(startRaw, endRaw string) error {
	start, err := zone.ParseClock(startRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	end, err := zone.ParseClock(endRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if start.Minutes() >= end.Minutes() {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidRule, startRaw, endRaw)
	}
	return nil
}
