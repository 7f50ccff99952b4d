package usecase

import (
	"fmt"
	"time"
)

// DateRange is an inclusive span of UTC calendar days. Start after End is an
// empty range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ResolveRange builds a range from explicit ISO dates, or else from a day
// count ending today. days <= 0 falls back to defaultDays.
func ResolveRange(startDate, endDate string, days, defaultDays int, now time.Time) (DateRange, error) {
	if startDate != "" || endDate != "" {
		if startDate == "" || endDate == "" {
			return DateRange{}, invalidInput("incomplete_range", "startDate and endDate must be given together")
		}
		start, err := time.Parse(DateLayout, startDate)
		if err != nil {
			return DateRange{}, invalidInput("invalid_start_date", fmt.Sprintf("invalid startDate %q, expected YYYY-MM-DD", startDate))
		}
		end, err := time.Parse(DateLayout, endDate)
		if err != nil {
			return DateRange{}, invalidInput("invalid_end_date", fmt.Sprintf("invalid endDate %q, expected YYYY-MM-DD", endDate))
		}
		return DateRange{Start: start, End: end}, nil
	}
	if days < 0 {
		return DateRange{}, invalidInput("invalid_days", "days must be a positive integer")
	}
	if days == 0 {
		days = defaultDays
	}
	today := truncateDay(now)
	return DateRange{Start: today.AddDate(0, 0, -(days - 1)), End: today}, nil
}

func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(DateLayout) }

// Len is the number of days in the range, 0 when empty.
func (r DateRange) Len() int {
	if r.Start.After(r.End) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Days lists every day of the range in order.
func (r DateRange) Days() []string {
	n := r.Len()
	out := make([]string, 0, n)
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

func (r DateRange) Contains(day string) bool {
	return r.Len() > 0 && day >= r.StartDate() && day <= r.EndDate()
}

func (r DateRange) key(prefix string) string {
	return prefix + ":" + r.StartDate() + ":" + r.EndDate()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
