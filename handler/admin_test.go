package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"museum-chatbot/internal/domain"
	"museum-chatbot/internal/usecase"
)

type stubStats struct {
	now      time.Time
	ranges   []usecase.DateRange
	activity []usecase.DateRange
}

func (s *stubStats) GetRangeStats(_ context.Context, r usecase.DateRange) domain.RangeResult {
	s.ranges = append(s.ranges, r)
	return domain.RangeResult{TotalConversations: 12, SatisfactionRate: 66.7, ConversationsByDay: []domain.ChartPoint{}}
}

func (s *stubStats) GetActivity(_ context.Context, r usecase.DateRange) domain.ActivityResult {
	s.activity = append(s.activity, r)
	return domain.ActivityResult{TotalConversations: 3}
}

func (s *stubStats) Now() time.Time { return s.now }

type stubConversations struct {
	filter    usecase.ConversationFilter
	id        string
	summaryOf usecase.DateRange
	err       error
}

func (s *stubConversations) List(_ context.Context, f usecase.ConversationFilter) (usecase.ConversationPage, error) {
	s.filter = f
	return usecase.ConversationPage{Total: 1, Limit: 20}, s.err
}

func (s *stubConversations) Get(_ context.Context, id string) (usecase.ConversationDetail, error) {
	s.id = id
	return usecase.ConversationDetail{ConversationID: id}, s.err
}

func (s *stubConversations) FeedbackSummary(_ context.Context, r usecase.DateRange) (usecase.FeedbackSummary, error) {
	s.summaryOf = r
	return usecase.FeedbackSummary{RecentNegative: []usecase.NegativeFeedback{}}, s.err
}

type stubFeedback struct {
	id, value string
	err       error
}

func (s *stubFeedback) Submit(_ context.Context, id, value string) (usecase.FeedbackResult, error) {
	s.id, s.value = id, value
	if s.err != nil {
		return usecase.FeedbackResult{}, s.err
	}
	return usecase.FeedbackResult{Success: true, ConversationID: id, Feedback: domain.FeedbackPositive}, nil
}

type stubUserLister struct {
	limit, offset int
}

func (s *stubUserLister) List(_ context.Context, limit, offset int) (usecase.UserPage, error) {
	s.limit, s.offset = limit, offset
	return usecase.UserPage{Users: []usecase.UserSummary{}}, nil
}

type adminFixture struct {
	h     *AdminHandler
	stats *stubStats
	conv  *stubConversations
	fb    *stubFeedback
	users *stubUserLister
}

func newAdminFixture(t *testing.T) adminFixture {
	t.Helper()
	f := adminFixture{
		stats: &stubStats{now: time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)},
		conv:  &stubConversations{},
		fb:    &stubFeedback{},
		users: &stubUserLister{},
	}
	h, err := NewAdminHandler(f.stats, f.conv, f.fb, f.users, nil)
	require.NoError(t, err)
	f.h = h
	return f
}

func adminEvent(method, path string, params map[string]string, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:            method,
		Path:                  path,
		Headers:               map[string]string{"Content-Type": "application/json"},
		QueryStringParameters: params,
		Body:                  body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewAdminHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewAdminHandler(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestAdmin_StatsDefaultsToSevenDays(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/stats", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "max-age=30", resp.Headers["Cache-Control"])
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])

	require.Len(t, f.stats.ranges, 1)
	require.Equal(t, "2026-05-14", f.stats.ranges[0].StartDate())
	require.Equal(t, "2026-05-20", f.stats.ranges[0].EndDate())

	out := parseBody[domain.RangeResult](t, resp.Body)
	require.Equal(t, 12, out.TotalConversations)
	require.Equal(t, 66.7, out.SatisfactionRate)
}

func TestAdmin_StatsExplicitRange(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/prod/admin/stats", map[string]string{"startDate": "2026-01-01", "endDate": "2026-03-31"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 90, f.stats.ranges[0].Len())
}

func TestAdmin_ActivityAndFeedbackSummary(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/activity", map[string]string{"days": "14"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 14, f.stats.activity[0].Len())

	resp, err = f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/feedback-summary", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 30, f.conv.summaryOf.Len())
}

func TestAdmin_Conversations(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/conversations", map[string]string{"feedback": "neg", "limit": "5", "offset": "10", "startDate": "2026-05-01", "endDate": "2026-05-02"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ConversationFilter{Feedback: "neg", StartDate: "2026-05-01", EndDate: "2026-05-02", Limit: 5, Offset: 10}, f.conv.filter)

	event := adminEvent(http.MethodGet, "/admin/conversations/conv-9", nil, "")
	event.PathParameters = map[string]string{"conversationId": "conv-9"}
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "conv-9", f.conv.id)

	resp, err = f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/conversations/conv-7/", nil, ""))
	require.NoError(t, err)
	require.Equal(t, "conv-7", f.conv.id)
}

func TestAdmin_Users(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/users", map[string]string{"limit": "50", "offset": "5"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 50, f.users.limit)
	require.Equal(t, 5, f.users.offset)
}

func TestAdmin_SubmitFeedback(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodPost, "/feedback", nil, `{"conversationId":"c1","feedback":"up"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "c1", f.fb.id)
	require.Equal(t, "up", f.fb.value)
	out := parseBody[usecase.FeedbackResult](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, domain.FeedbackPositive, out.Feedback)

	event := adminEvent(http.MethodPost, "/feedback", nil, base64.StdEncoding.EncodeToString([]byte(`{"conversationId":"c2","feedback":"neg"}`)))
	event.IsBase64Encoded = true
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "c2", f.fb.id)

	resp, err = f.h.Handle(context.Background(), adminEvent(http.MethodPost, "/feedback", nil, `{bad`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_feedback", Message: "Invalid feedback value. Must be 'pos' or 'neg'"}, status: http.StatusBadRequest, code: "INVALID_INPUT", msg: "Invalid feedback value. Must be 'pos' or 'neg'"},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Message: "Conversation not found"}, status: http.StatusNotFound, code: "NOT_FOUND", msg: "Conversation not found"},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "feedback_update_failed", Err: errors.New("throttled")}, status: http.StatusInternalServerError, code: "INTERNAL_ERROR", msg: "throttled"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR", msg: "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAdminFixture(t)
			f.fb.err = tc.err

			resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodPost, "/feedback", nil, `{"conversationId":"c1","feedback":"pos"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Code)
			require.Equal(t, tc.msg, out.Error)
		})
	}
}

func TestAdmin_InvalidQueryParameters(t *testing.T) {
	f := newAdminFixture(t)
	for _, params := range []map[string]string{
		{"days": "seven"},
		{"startDate": "2026-01-01"},
		{"startDate": "bad", "endDate": "2026-01-01"},
	} {
		resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/stats", params, ""))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, params)
	}
	require.Empty(t, f.stats.ranges)
}

func TestAdmin_OptionsAndUnknownRoutes(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodOptions, "/admin/stats", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, ev := range []events.APIGatewayProxyRequest{
		adminEvent(http.MethodGet, "/admin/unknown", nil, ""),
		adminEvent(http.MethodGet, "/elsewhere", nil, ""),
		adminEvent(http.MethodDelete, "/admin/stats", nil, ""),
	} {
		resp, err := f.h.Handle(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestAdmin_CorrelationID(t *testing.T) {
	f := newAdminFixture(t)

	resp, err := f.h.Handle(context.Background(), adminEvent(http.MethodGet, "/admin/stats", nil, ""))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	event := adminEvent(http.MethodGet, "/admin/stats", nil, "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
