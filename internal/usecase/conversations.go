package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"museum-chatbot/internal/domain"
)

const (
	defaultPageLimit      = 20
	maxPageLimit          = 100
	feedbackReadAhead     = 100
	defaultListWindowDays = 30
	questionPreviewLen    = 100
	answerPreviewLen      = 150
	negativePreviewLen    = 200
	negativeCandidates    = 50
	recentNegativeLimit   = 10
	feedbackCachePrefix   = "feedback"
	filterNone            = "none"
)

var listFields = []string{
	"conversationId", "sessionId", "timestamp", "date", "question", "answer",
	"feedback", "responseTimeMs", "citationCount", "language",
}

// ExchangeReader is the read side of the exchange store used by the admin views.
type ExchangeReader interface {
	DayReader
	GetExchange(ctx context.Context, conversationID string) (domain.Exchange, error)
	ListByFeedback(ctx context.Context, fb domain.Feedback, maxItems int, fields ...string) ([]domain.Exchange, error)
	ScanWithoutFeedback(ctx context.Context, maxItems int, fields ...string) ([]domain.Exchange, error)
}

type ConversationFilter struct {
	Feedback  string
	StartDate string
	EndDate   string
	Limit     int
	Offset    int
}

type ConversationSummary struct {
	ConversationID string  `json:"conversationId"`
	SessionID      *string `json:"sessionId"`
	Timestamp      string  `json:"timestamp"`
	Date           string  `json:"date"`
	Question       string  `json:"question"`
	AnswerPreview  string  `json:"answerPreview"`
	Feedback       *string `json:"feedback"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
	CitationCount  int     `json:"citationCount"`
	Language       string  `json:"language"`
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
	Total         int                   `json:"total"`
	Offset        int                   `json:"offset"`
	Limit         int                   `json:"limit"`
	HasMore       bool                  `json:"hasMore"`
}

type ConversationDetail struct {
	ConversationID string            `json:"conversationId"`
	SessionID      *string           `json:"sessionId"`
	Timestamp      string            `json:"timestamp"`
	Date           string            `json:"date"`
	Question       string            `json:"question"`
	Answer         string            `json:"answer"`
	Citations      []domain.Citation `json:"citations"`
	CitationCount  int               `json:"citationCount"`
	Feedback       *string           `json:"feedback"`
	FeedbackTs     *string           `json:"feedbackTs"`
	ResponseTimeMs int64             `json:"responseTimeMs"`
	ModelID        *string           `json:"modelId"`
	Language       string            `json:"language"`
	QuestionLength int               `json:"questionLength"`
	AnswerLength   int               `json:"answerLength"`
	Status         string            `json:"status,omitempty"`
}

type FeedbackTotals struct {
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
	NoFeedback       int     `json:"noFeedback"`
	Total            int     `json:"total"`
	SatisfactionRate float64 `json:"satisfactionRate"`
}

type NegativeFeedback struct {
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
	Question       string `json:"question"`
	AnswerPreview  string `json:"answerPreview"`
	FeedbackTs     string `json:"feedbackTs"`
}

type FeedbackSummary struct {
	Summary        FeedbackTotals     `json:"summary"`
	RecentNegative []NegativeFeedback `json:"recentNegative"`
	Period         domain.Period      `json:"period"`
}

// Conversations serves the admin listing, detail and feedback summary views.
type Conversations struct {
	store     ExchangeReader
	agg       *Aggregator
	logger    *slog.Logger
	summaries *ttlCache[FeedbackSummary]
}

func NewConversations(store ExchangeReader, agg *Aggregator, cacheTTL time.Duration, logger *slog.Logger) (*Conversations, error) {
	if store == nil {
		return nil, errors.New("usecase: exchange reader must not be nil")
	}
	if agg == nil {
		return nil, errors.New("usecase: aggregator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	summaries, err := newTTLCache[FeedbackSummary](cacheTTL, agg.Now)
	if err != nil {
		return nil, err
	}
	return &Conversations{store: store, agg: agg, logger: logger, summaries: summaries}, nil
}

// List returns one page of conversation previews, newest first.
func (c *Conversations) List(ctx context.Context, f ConversationFilter) (ConversationPage, error) {
	f, fb, window, err := c.normalizeFilter(f)
	if err != nil {
		return ConversationPage{}, err
	}

	var items []domain.Exchange
	switch {
	case fb != domain.FeedbackNone:
		items, err = c.store.ListByFeedback(ctx, fb, f.Offset+f.Limit+feedbackReadAhead, listFields...)
		if err != nil {
			return ConversationPage{}, newError(ErrorInternal, "list_by_feedback_failed", err)
		}
		if window != nil {
			items = filterExchanges(items, func(ex domain.Exchange) bool { return window.Contains(ex.Date) })
		}
	case window != nil:
		items = c.readDays(ctx, *window)
		if f.Feedback == filterNone {
			items = filterExchanges(items, func(ex domain.Exchange) bool { return ex.Feedback == domain.FeedbackNone })
		}
	case f.Feedback == filterNone:
		items, err = c.store.ScanWithoutFeedback(ctx, f.Offset+f.Limit+feedbackReadAhead, listFields...)
		if err != nil {
			return ConversationPage{}, newError(ErrorInternal, "scan_without_feedback_failed", err)
		}
	default:
		today := truncateDay(c.agg.Now())
		items = c.readDays(ctx, DateRange{Start: today.AddDate(0, 0, -defaultListWindowDays), End: today})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp > items[j].Timestamp })

	total := len(items)
	from := min(f.Offset, total)
	to := min(f.Offset+f.Limit, total)
	page := ConversationPage{
		Conversations: make([]ConversationSummary, 0, to-from),
		Total:         total,
		Offset:        f.Offset,
		Limit:         f.Limit,
		HasMore:       f.Offset+f.Limit < total,
	}
	for _, ex := range items[from:to] {
		page.Conversations = append(page.Conversations, summarize(ex))
	}
	page.Count = len(page.Conversations)
	return page, nil
}

func (c *Conversations) normalizeFilter(f ConversationFilter) (ConversationFilter, domain.Feedback, *DateRange, error) {
	if f.Limit == 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit < 0 || f.Limit > maxPageLimit {
		return f, "", nil, invalidInput("invalid_limit", fmt.Sprintf("limit must be between 1 and %d", maxPageLimit))
	}
	if f.Offset < 0 {
		return f, "", nil, invalidInput("invalid_offset", "offset must not be negative")
	}

	fb := domain.FeedbackNone
	f.Feedback = strings.ToLower(strings.TrimSpace(f.Feedback))
	if f.Feedback != "" && f.Feedback != filterNone {
		parsed, ok := domain.ParseFeedback(f.Feedback)
		if !ok {
			return f, "", nil, invalidInput("invalid_feedback_filter", "feedback must be 'pos', 'neg' or 'none'")
		}
		fb = parsed
	}

	if f.StartDate == "" && f.EndDate == "" {
		return f, fb, nil, nil
	}
	r, err := ResolveRange(f.StartDate, f.EndDate, 0, 0, c.agg.Now())
	if err != nil {
		return f, "", nil, err
	}
	return f, fb, &r, nil
}

// readDays projects the listing fields of every day in r on the shared
// bounded pool. A failed day is logged and skipped.
func (c *Conversations) readDays(ctx context.Context, r DateRange) []domain.Exchange {
	perDay := fanOut(ctx, c.agg.Workers(), r.Days(), func(ctx context.Context, day string) ([]domain.Exchange, error) {
		return c.store.ProjectByDay(ctx, day, listFields...)
	}, func(day string, err error) {
		c.logger.Error("per-day listing query failed, skipping it", "day", day, "err", err)
	})
	var out []domain.Exchange
	for _, items := range perDay {
		out = append(out, items...)
	}
	return out
}

// Get returns the full record of one exchange.
func (c *Conversations) Get(ctx context.Context, conversationID string) (ConversationDetail, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ConversationDetail{}, invalidInput("missing_conversation_id", "Missing conversationId")
	}
	ex, err := c.store.GetExchange(ctx, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return ConversationDetail{}, &Error{Code: ErrorNotFound, Reason: "conversation_not_found", Message: "Conversation not found", Err: err}
	}
	if err != nil {
		return ConversationDetail{}, newError(ErrorInternal, "get_conversation_failed", err)
	}

	citations := ex.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	return ConversationDetail{
		ConversationID: ex.ConversationID,
		SessionID:      optional(ex.SessionID),
		Timestamp:      ex.Timestamp,
		Date:           ex.Date,
		Question:       ex.Question,
		Answer:         ex.Answer,
		Citations:      citations,
		CitationCount:  ex.CitationCount,
		Feedback:       optional(string(ex.Feedback)),
		FeedbackTs:     optional(ex.FeedbackTimestamp),
		ResponseTimeMs: ex.ResponseTimeMs,
		ModelID:        optional(ex.ModelID),
		Language:       ex.Language,
		QuestionLength: len(ex.Question),
		AnswerLength:   len(ex.Answer),
		Status:         ex.Status,
	}, nil
}

// FeedbackSummary returns the rating totals of r and the most recent
// negatively rated exchanges inside it.
func (c *Conversations) FeedbackSummary(ctx context.Context, r DateRange) (FeedbackSummary, error) {
	key := r.key(feedbackCachePrefix)
	if res, ok := c.summaries.Get(key); ok {
		c.logger.Debug("feedback summary cache hit", "key", key)
		return res, nil
	}

	stats := c.agg.GetRangeStats(ctx, r)

	candidates, err := c.store.ListByFeedback(ctx, domain.FeedbackNegative, negativeCandidates,
		"conversationId", "timestamp", "question", "answer", "feedbackTs", "date")
	if err != nil {
		return FeedbackSummary{}, newError(ErrorInternal, "list_negative_feedback_failed", err)
	}
	if len(candidates) > negativeCandidates {
		candidates = candidates[:negativeCandidates]
	}

	negatives := make([]NegativeFeedback, 0, recentNegativeLimit)
	for _, ex := range candidates {
		if !r.Contains(ex.Date) {
			continue
		}
		negatives = append(negatives, NegativeFeedback{
			ConversationID: ex.ConversationID,
			Timestamp:      ex.Timestamp,
			Question:       ex.Question,
			AnswerPreview:  truncateRunes(ex.Answer, negativePreviewLen),
			FeedbackTs:     ex.FeedbackTimestamp,
		})
	}
	sort.SliceStable(negatives, func(i, j int) bool {
		return ratedAt(negatives[i]) > ratedAt(negatives[j])
	})
	if len(negatives) > recentNegativeLimit {
		negatives = negatives[:recentNegativeLimit]
	}

	res := FeedbackSummary{
		Summary: FeedbackTotals{
			Positive:         stats.PositiveFeedback,
			Negative:         stats.NegativeFeedback,
			NoFeedback:       stats.NoFeedback,
			Total:            stats.TotalConversations,
			SatisfactionRate: stats.SatisfactionRate,
		},
		RecentNegative: negatives,
		Period:         stats.Period,
	}
	c.summaries.Set(key, res)
	return res, nil
}

func (c *Conversations) Close() {
	c.summaries.Close()
}

func ratedAt(n NegativeFeedback) string {
	if n.FeedbackTs != "" {
		return n.FeedbackTs
	}
	return n.Timestamp
}

func summarize(ex domain.Exchange) ConversationSummary {
	lang := ex.Language
	if lang == "" {
		lang = defaultLanguage
	}
	return ConversationSummary{
		ConversationID: ex.ConversationID,
		SessionID:      optional(ex.SessionID),
		Timestamp:      ex.Timestamp,
		Date:           ex.Date,
		Question:       preview(ex.Question, questionPreviewLen),
		AnswerPreview:  preview(ex.Answer, answerPreviewLen),
		Feedback:       optional(string(ex.Feedback)),
		ResponseTimeMs: ex.ResponseTimeMs,
		CitationCount:  ex.CitationCount,
		Language:       lang,
	}
}

func filterExchanges(items []domain.Exchange, keep func(domain.Exchange) bool) []domain.Exchange {
	out := items[:0]
	for _, ex := range items {
		if keep(ex) {
			out = append(out, ex)
		}
	}
	return out
}

// preview cuts s to n characters and marks the cut with "...".
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
