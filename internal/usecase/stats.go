package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"museum-chatbot/internal/domain"
)

const (
	statsCachePrefix    = "stats"
	activityCachePrefix = "activity"
)

// DayReader is the per-day view of the exchange store.
type DayReader interface {
	CountByDay(ctx context.Context, day string) (int, error)
	ProjectByDay(ctx context.Context, day string, fields ...string) ([]domain.Exchange, error)
}

type AggregatorConfig struct {
	Workers  int
	CacheTTL time.Duration
}

// Aggregator computes dashboard statistics for date ranges with one store
// query per day, run on a bounded pool, and caches each range result.
type Aggregator struct {
	days     DayReader
	workers  int
	logger   *slog.Logger
	now      func() time.Time
	stats    *ttlCache[domain.RangeResult]
	activity *ttlCache[domain.ActivityResult]
}

type AggregatorOption func(*Aggregator)

func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAggregatorClock sets the clock used for "today" and cache expiry.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(days DayReader, cfg AggregatorConfig, opts ...AggregatorOption) (*Aggregator, error) {
	if days == nil {
		return nil, fmt.Errorf("usecase: day reader must not be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	a := &Aggregator{
		days:    days,
		workers: cfg.Workers,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.stats, err = newTTLCache[domain.RangeResult](cfg.CacheTTL, a.now); err != nil {
		return nil, err
	}
	if a.activity, err = newTTLCache[domain.ActivityResult](cfg.CacheTTL, a.now); err != nil {
		return nil, err
	}
	return a, nil
}

// Now is the aggregator's clock.
func (a *Aggregator) Now() time.Time { return a.now() }

// Workers is the fan-out cap shared with other per-day readers.
func (a *Aggregator) Workers() int { return a.workers }

// GetRangeStats returns totals, feedback split, satisfaction and the bucketed
// chart for r. A day whose query fails counts as zero.
func (a *Aggregator) GetRangeStats(ctx context.Context, r DateRange) domain.RangeResult {
	key := r.key(statsCachePrefix)
	if res, ok := a.stats.Get(key); ok {
		a.logger.Debug("stats cache hit", "key", key)
		return res
	}
	a.logger.Info("stats cache miss", "key", key, "days", r.Len())

	days := r.Days()
	daily := fanOut(ctx, a.workers, days, a.summarizeDay, func(day string, err error) {
		a.logger.Error("per-day stats query failed, counting it as zero", "day", day, "err", err)
	})

	var totals domain.DailyStat
	counts := make(map[string]int, len(days))
	for i, day := range days {
		totals.Add(daily[i])
		counts[day] = daily[i].Count
	}

	res := domain.RangeResult{
		TotalConversations: totals.Count,
		ConversationsToday: counts[a.today()],
		TotalFeedback:      totals.Positive + totals.Negative,
		PositiveFeedback:   totals.Positive,
		NegativeFeedback:   totals.Negative,
		NoFeedback:         totals.NoFeedback,
		SatisfactionRate:   SatisfactionRate(totals.Positive, totals.Negative),
		AvgResponseTimeMs:  averageResponseTime(totals),
		ConversationsByDay: buildChart(r, counts),
		Period:             period(r),
	}
	a.stats.Set(key, res)
	return res
}

// GetActivity is the count-only variant of GetRangeStats; it never reads
// item attributes.
func (a *Aggregator) GetActivity(ctx context.Context, r DateRange) domain.ActivityResult {
	key := r.key(activityCachePrefix)
	if res, ok := a.activity.Get(key); ok {
		a.logger.Debug("activity cache hit", "key", key)
		return res
	}
	a.logger.Info("activity cache miss", "key", key, "days", r.Len())

	days := r.Days()
	perDay := fanOut(ctx, a.workers, days, a.days.CountByDay, func(day string, err error) {
		a.logger.Error("per-day count query failed, counting it as zero", "day", day, "err", err)
	})

	total := 0
	counts := make(map[string]int, len(days))
	for i, day := range days {
		total += perDay[i]
		counts[day] = perDay[i]
	}
	res := domain.ActivityResult{
		TotalConversations: total,
		ConversationsToday: counts[a.today()],
		ConversationsByDay: buildChart(r, counts),
		Period:             period(r),
	}
	a.activity.Set(key, res)
	return res
}

func (a *Aggregator) summarizeDay(ctx context.Context, day string) (domain.DailyStat, error) {
	items, err := a.days.ProjectByDay(ctx, day, "feedback", "responseTimeMs")
	if err != nil {
		return domain.DailyStat{}, err
	}
	stat := domain.DailyStat{Date: day, Count: len(items)}
	for _, ex := range items {
		switch ex.Feedback {
		case domain.FeedbackPositive:
			stat.Positive++
		case domain.FeedbackNegative:
			stat.Negative++
		default:
			stat.NoFeedback++
		}
		if ex.ResponseTimeMs > 0 {
			stat.TotalResponseTime += ex.ResponseTimeMs
			stat.ResponseTimeCount++
		}
	}
	return stat, nil
}

func (a *Aggregator) today() string {
	return a.now().UTC().Format(DateLayout)
}

func (a *Aggregator) Close() {
	a.stats.Close()
	a.activity.Close()
}

// SatisfactionRate is the positive share of rated exchanges in percent,
// rounded to one decimal, and 0 when nothing was rated.
func SatisfactionRate(positive, negative int) float64 {
	rated := positive + negative
	if rated == 0 {
		return 0
	}
	return math.Round(float64(positive)*1000/float64(rated)) / 10
}

func averageResponseTime(s domain.DailyStat) int64 {
	if s.ResponseTimeCount == 0 {
		return 0
	}
	return int64(math.Round(float64(s.TotalResponseTime) / float64(s.ResponseTimeCount)))
}

func period(r DateRange) domain.Period {
	return domain.Period{Days: r.Len(), StartDate: r.StartDate(), EndDate: r.EndDate()}
}
