package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"museum-chatbot/internal/domain"
)

// fakeDayReader serves exchanges per day and counts every query.
type fakeDayReader struct {
	mu          sync.Mutex
	byDay       map[string][]domain.Exchange
	failDays    map[string]bool
	projections int
	counts      int
	fields      [][]string
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeDayReader() *fakeDayReader {
	return &fakeDayReader{byDay: map[string][]domain.Exchange{}, failDays: map[string]bool{}}
}

func (f *fakeDayReader) enter() func() {
	n := f.inFlight.Add(1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeDayReader) ProjectByDay(_ context.Context, day string, fields ...string) ([]domain.Exchange, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projections++
	f.fields = append(f.fields, fields)
	if f.failDays[day] {
		return nil, errors.New("throttled")
	}
	return f.byDay[day], nil
}

func (f *fakeDayReader) CountByDay(_ context.Context, day string) (int, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts++
	if f.failDays[day] {
		return 0, errors.New("throttled")
	}
	return len(f.byDay[day]), nil
}

func (f *fakeDayReader) add(day string, fb domain.Feedback, responseMs int64) {
	f.byDay[day] = append(f.byDay[day], domain.Exchange{Date: day, Feedback: fb, ResponseTimeMs: responseMs})
}

func (f *fakeDayReader) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projections + f.counts
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := ResolveRange(start, end, 0, 7, time.Now())
	require.NoError(t, err)
	return r
}

func newTestAggregator(t *testing.T, reader DayReader, clock *fakeClock) *Aggregator {
	t.Helper()
	a, err := NewAggregator(reader, AggregatorConfig{}, WithAggregatorClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestAggregator_GetRangeStats(t *testing.T) {
	reader := newFakeDayReader()
	reader.add("2026-03-01", domain.FeedbackPositive, 1000)
	reader.add("2026-03-01", domain.FeedbackNegative, 2000)
	reader.add("2026-03-02", domain.FeedbackNone, 0)
	reader.add("2026-03-03", domain.FeedbackPositive, 1501)
	reader.add("2026-03-03", domain.FeedbackPositive, 0)
	reader.add("2026-02-28", domain.FeedbackPositive, 10) // outside the range

	clock := &fakeClock{t: time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)}
	a := newTestAggregator(t, reader, clock)

	res := a.GetRangeStats(context.Background(), mustRange(t, "2026-03-01", "2026-03-03"))

	require.Equal(t, 5, res.TotalConversations)
	require.Equal(t, 2, res.ConversationsToday)
	require.Equal(t, 3, res.PositiveFeedback)
	require.Equal(t, 1, res.NegativeFeedback)
	require.Equal(t, 1, res.NoFeedback)
	require.Equal(t, 4, res.TotalFeedback)
	require.Equal(t, 75.0, res.SatisfactionRate)
	require.Equal(t, int64(1500), res.AvgResponseTimeMs)
	require.Equal(t, domain.Period{Days: 3, StartDate: "2026-03-01", EndDate: "2026-03-03"}, res.Period)
	require.Equal(t, []domain.ChartPoint{
		{Date: "2026-03-01", Count: 2, DayName: "Sun", Label: "1"},
		{Date: "2026-03-02", Count: 1, DayName: "Mon", Label: "2"},
		{Date: "2026-03-03", Count: 2, DayName: "Tue", Label: "3"},
	}, res.ConversationsByDay)
	require.Equal(t, []string{"feedback", "responseTimeMs"}, reader.fields[0])
}

func TestAggregator_TotalsEqualPerDaySums(t *testing.T) {
	reader := newFakeDayReader()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		day := start.AddDate(0, 0, i).Format(DateLayout)
		for j := 0; j < i%5; j++ {
			reader.add(day, domain.FeedbackNone, int64(100*j))
		}
	}
	a := newTestAggregator(t, reader, &fakeClock{t: start})

	r := mustRange(t, "2026-01-01", "2026-02-14")
	res := a.GetRangeStats(context.Background(), r)

	want := 0
	for _, day := range r.Days() {
		n, err := reader.CountByDay(context.Background(), day)
		require.NoError(t, err)
		want += n
	}
	require.Equal(t, want, res.TotalConversations)

	chartTotal := 0
	for _, p := range res.ConversationsByDay {
		chartTotal += p.Count
	}
	require.Equal(t, want, chartTotal)
}

func TestAggregator_CacheHitIssuesNoQueries(t *testing.T) {
	reader := newFakeDayReader()
	reader.add("2026-03-01", domain.FeedbackPositive, 10)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	a := newTestAggregator(t, reader, clock)
	r := mustRange(t, "2026-03-01", "2026-03-07")

	first := a.GetRangeStats(context.Background(), r)
	require.Equal(t, 7, reader.queries())

	clock.Advance(59 * time.Second)
	second := a.GetRangeStats(context.Background(), r)
	require.Equal(t, 7, reader.queries())
	require.Equal(t, first, second)

	clock.Advance(time.Second)
	a.GetRangeStats(context.Background(), r)
	require.Equal(t, 14, reader.queries())
}

func TestAggregator_CacheKeyIsExactRange(t *testing.T) {
	reader := newFakeDayReader()
	a := newTestAggregator(t, reader, &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})

	a.GetRangeStats(context.Background(), mustRange(t, "2026-03-01", "2026-03-02"))
	a.GetRangeStats(context.Background(), mustRange(t, "2026-03-01", "2026-03-03"))
	require.Equal(t, 5, reader.queries())
}

func TestAggregator_FailedDayCountsAsZero(t *testing.T) {
	reader := newFakeDayReader()
	reader.add("2026-03-01", domain.FeedbackPositive, 10)
	reader.add("2026-03-02", domain.FeedbackNegative, 10)
	reader.add("2026-03-03", domain.FeedbackPositive, 10)
	reader.failDays["2026-03-02"] = true
	a := newTestAggregator(t, reader, &fakeClock{t: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)})

	res := a.GetRangeStats(context.Background(), mustRange(t, "2026-03-01", "2026-03-03"))

	require.Equal(t, 2, res.TotalConversations)
	require.Equal(t, 0, res.NegativeFeedback)
	require.Equal(t, 100.0, res.SatisfactionRate)
	require.Len(t, res.ConversationsByDay, 3)
	require.Equal(t, 0, res.ConversationsByDay[1].Count)
}

func TestAggregator_EmptyRange(t *testing.T) {
	reader := newFakeDayReader()
	a := newTestAggregator(t, reader, &fakeClock{t: time.Now()})

	res := a.GetRangeStats(context.Background(), mustRange(t, "2026-03-05", "2026-03-01"))

	require.Zero(t, res.TotalConversations)
	require.Zero(t, res.SatisfactionRate)
	require.Zero(t, res.AvgResponseTimeMs)
	require.NotNil(t, res.ConversationsByDay)
	require.Empty(t, res.ConversationsByDay)
	require.Zero(t, res.Period.Days)
	require.Zero(t, reader.queries())
}

func TestAggregator_BoundedConcurrency(t *testing.T) {
	reader := newFakeDayReader()
	reader.delay = 5 * time.Millisecond
	a := newTestAggregator(t, reader, &fakeClock{t: time.Now()})

	a.GetRangeStats(context.Background(), mustRange(t, "2026-01-01", "2026-02-15"))

	require.Equal(t, 46, reader.queries())
	require.LessOrEqual(t, reader.maxInFlight.Load(), int32(defaultWorkers))
}

func TestAggregator_GetActivity(t *testing.T) {
	reader := newFakeDayReader()
	reader.add("2026-03-01", domain.FeedbackPositive, 10)
	reader.add("2026-03-02", domain.FeedbackNone, 10)
	reader.add("2026-03-02", domain.FeedbackNone, 10)
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	a := newTestAggregator(t, reader, clock)
	r := mustRange(t, "2026-03-01", "2026-03-02")

	res := a.GetActivity(context.Background(), r)
	require.Equal(t, 3, res.TotalConversations)
	require.Equal(t, 2, res.ConversationsToday)
	require.Len(t, res.ConversationsByDay, 2)
	require.Equal(t, 2, reader.counts)
	require.Zero(t, reader.projections)

	a.GetActivity(context.Background(), r)
	require.Equal(t, 2, reader.counts)

	// Stats and activity are cached under different keys.
	a.GetRangeStats(context.Background(), r)
	require.Equal(t, 2, reader.projections)
}

func TestSatisfactionRate(t *testing.T) {
	require.Equal(t, 0.0, SatisfactionRate(0, 0))
	require.Equal(t, 100.0, SatisfactionRate(3, 0))
	require.Equal(t, 0.0, SatisfactionRate(0, 4))
	require.Equal(t, 66.7, SatisfactionRate(2, 1))
	require.Equal(t, 33.3, SatisfactionRate(1, 2))
	require.Equal(t, 14.3, SatisfactionRate(1, 6))

	for pos := 0; pos <= 20; pos++ {
		for neg := 0; neg <= 20; neg++ {
			got := SatisfactionRate(pos, neg)
			if pos+neg == 0 {
				require.Zero(t, got)
				continue
			}
			exact := 100 * float64(pos) / float64(pos+neg)
			require.InDelta(t, exact, got, 0.05+1e-9, fmt.Sprintf("pos=%d neg=%d", pos, neg))
		}
	}
}
