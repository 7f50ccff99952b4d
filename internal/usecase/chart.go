package usecase

import (
	"fmt"
	"strconv"
	"time"

	"museum-chatbot/internal/domain"
)

const (
	maxDailyBuckets  = 31
	maxWeeklyBuckets = 90
)

// buildChart buckets per-day counts by the span of the range: daily up to a
// month, weekly up to a quarter, calendar months beyond. Edge buckets are
// clipped to the range.
func buildChart(r DateRange, counts map[string]int) []domain.ChartPoint {
	span := r.Len()
	switch {
	case span == 0:
		return []domain.ChartPoint{}
	case span <= maxDailyBuckets:
		return dailyChart(r, counts)
	case span <= maxWeeklyBuckets:
		return weeklyChart(r, counts)
	default:
		return monthlyChart(r, counts)
	}
}

func dailyChart(r DateRange, counts map[string]int) []domain.ChartPoint {
	out := make([]domain.ChartPoint, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, domain.ChartPoint{
			Date:    d.Format(DateLayout),
			Count:   counts[d.Format(DateLayout)],
			DayName: d.Format("Mon"),
			Label:   strconv.Itoa(d.Day()),
		})
	}
	return out
}

func weeklyChart(r DateRange, counts map[string]int) []domain.ChartPoint {
	var out []domain.ChartPoint
	for d := r.Start; !d.After(r.End); {
		end := d.AddDate(0, 0, 6)
		if end.After(r.End) {
			end = r.End
		}
		bucket := DateRange{Start: d, End: end}
		out = append(out, domain.ChartPoint{
			Date:    bucket.StartDate(),
			EndDate: bucket.EndDate(),
			Count:   sumCounts(bucket, counts),
			DayName: fmt.Sprintf("%s - %d", d.Format("Jan 2"), end.Day()),
			Label:   d.Format("Jan 2"),
		})
		d = end.AddDate(0, 0, 1)
	}
	return out
}

func monthlyChart(r DateRange, counts map[string]int) []domain.ChartPoint {
	var out []domain.ChartPoint
	for month := firstOfMonth(r.Start); !month.After(r.End); month = month.AddDate(0, 1, 0) {
		bucket := DateRange{Start: month, End: month.AddDate(0, 1, -1)}
		if bucket.Start.Before(r.Start) {
			bucket.Start = r.Start
		}
		if bucket.End.After(r.End) {
			bucket.End = r.End
		}
		out = append(out, domain.ChartPoint{
			Date:    bucket.StartDate(),
			EndDate: bucket.EndDate(),
			Count:   sumCounts(bucket, counts),
			DayName: month.Format("January 2006"),
			Label:   month.Format("Jan"),
		})
	}
	return out
}

func sumCounts(r DateRange, counts map[string]int) int {
	total := 0
	for _, day := range r.Days() {
		total += counts[day]
	}
	return total
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
