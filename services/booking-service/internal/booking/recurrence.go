package booking

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

type Recurrence struct {
	Frequency Frequency `json:"frequency"`
	// Count is the total number of occurrences including the first.
	Count int `json:"count"`
}

func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(raw))); f {
	case Weekly, Biweekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRequest, raw)
}

// expandDates returns the calendar dates of every occurrence, first included.
// Count is clamped to the offering's MaxRecurrence; monthly steps use calendar months.
func expandDates(first zone.Date, rec *Recurrence, o model.Offering) ([]zone.Date, error) {
	if rec == nil || rec.Count <= 1 {
		return []zone.Date{first}, nil
	}
	if !o.RecurrenceEnabled {
		return nil, ErrRecurrenceNotAllowed
	}
	freq, err := ParseFrequency(string(rec.Frequency))
	if err != nil {
		return nil, err
	}

	count := rec.Count
	if o.MaxRecurrence > 0 && count > o.MaxRecurrence {
		count = o.MaxRecurrence
	}
	if count < 1 {
		count = 1
	}

	dates := make([]zone.Date, 0, count)
	for i := 0; i < count; i++ {
		switch freq {
		case Weekly:
			dates = append(dates, first.AddDate(0, 0, 7*i))
		case Biweekly:
			dates = append(dates, first.AddDate(0, 0, 14*i))
		case Monthly:
			dates = append(dates, first.AddDate(0, i, 0))
		}
	}
	return dates, nil
}
