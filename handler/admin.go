package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"museum-chatbot/internal/domain"
	"museum-chatbot/internal/usecase"
)

const (
	defaultStatsDays    = 7
	defaultFeedbackDays = 30
	adminMethods        = "GET,POST,OPTIONS"
)

type StatsService interface {
	GetRangeStats(ctx context.Context, r usecase.DateRange) domain.RangeResult
	GetActivity(ctx context.Context, r usecase.DateRange) domain.ActivityResult
	Now() time.Time
}

type ConversationService interface {
	List(ctx context.Context, f usecase.ConversationFilter) (usecase.ConversationPage, error)
	Get(ctx context.Context, conversationID string) (usecase.ConversationDetail, error)
	FeedbackSummary(ctx context.Context, r usecase.DateRange) (usecase.FeedbackSummary, error)
}

type FeedbackSubmitter interface {
	Submit(ctx context.Context, conversationID, feedback string) (usecase.FeedbackResult, error)
}

type UserLister interface {
	List(ctx context.Context, limit, offset int) (usecase.UserPage, error)
}

type feedbackRequest struct {
	ConversationID string `json:"conversationId"`
	Feedback       string `json:"feedback"`
}

// AdminHandler serves the dashboard API and feedback submission behind API Gateway.
type AdminHandler struct {
	stats         StatsService
	conversations ConversationService
	feedback      FeedbackSubmitter
	users         UserLister
	logger        *slog.Logger
}

func NewAdminHandler(stats StatsService, conversations ConversationService, feedback FeedbackSubmitter, users UserLister, logger *slog.Logger) (*AdminHandler, error) {
	if stats == nil || conversations == nil || feedback == nil || users == nil {
		return nil, errors.New("handler: admin dependencies must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{stats: stats, conversations: conversations, feedback: feedback, users: users, logger: logger}, nil
}

func (h *AdminHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	headers := proxyHeaders(adminMethods, corrID)
	log := h.logger.With("correlationId", corrID, "method", req.HTTPMethod, "path", req.Path)
	start := time.Now()

	status, body, err := h.route(ctx, req)
	if err != nil {
		resp := proxyError(err, headers)
		log.Warn("admin request failed", "status", resp.StatusCode, "err", err, "elapsedMs", time.Since(start).Milliseconds())
		return resp, nil
	}
	resp := proxyJSON(status, body, headers)
	resp.Headers["Cache-Control"] = "max-age=30"
	log.Info("admin request served", "status", status, "elapsedMs", time.Since(start).Milliseconds())
	return resp, nil
}

func (h *AdminHandler) route(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	path := strings.TrimSuffix(req.Path, "/")
	method := strings.ToUpper(req.HTTPMethod)

	if method == http.MethodOptions {
		return http.StatusOK, map[string]any{}, nil
	}
	if method == http.MethodPost && strings.HasSuffix(path, "/feedback") {
		return h.submitFeedback(ctx, req)
	}
	if method != http.MethodGet {
		return http.StatusNotFound, errorResponse{Error: "Not found"}, nil
	}

	_, rest, ok := strings.Cut(path, "/admin/")
	if !ok {
		return http.StatusNotFound, errorResponse{Error: "Not found"}, nil
	}
	params := req.QueryStringParameters
	switch resource, id, _ := strings.Cut(rest, "/"); {
	case resource == "stats" && id == "":
		r, err := h.dateRange(params, defaultStatsDays)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, h.stats.GetRangeStats(ctx, r), nil

	case resource == "activity" && id == "":
		r, err := h.dateRange(params, defaultStatsDays)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, h.stats.GetActivity(ctx, r), nil

	case resource == "feedback-summary" && id == "":
		r, err := h.dateRange(params, defaultFeedbackDays)
		if err != nil {
			return 0, nil, err
		}
		res, err := h.conversations.FeedbackSummary(ctx, r)
		return http.StatusOK, res, err

	case resource == "users" && id == "":
		limit, err := intParam(params, "limit")
		if err != nil {
			return 0, nil, err
		}
		offset, err := intParam(params, "offset")
		if err != nil {
			return 0, nil, err
		}
		page, err := h.users.List(ctx, limit, offset)
		return http.StatusOK, page, err

	case resource == "conversations" && id != "":
		if p := req.PathParameters["conversationId"]; p != "" {
			id = p
		}
		detail, err := h.conversations.Get(ctx, id)
		return http.StatusOK, detail, err

	case resource == "conversations":
		f, err := conversationFilter(params)
		if err != nil {
			return 0, nil, err
		}
		page, err := h.conversations.List(ctx, f)
		return http.StatusOK, page, err
	}
	return http.StatusNotFound, errorResponse{Error: "Not found"}, nil
}

func (h *AdminHandler) submitFeedback(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var body feedbackRequest
	if err := decodeBody(req, &body); err != nil {
		return 0, nil, err
	}
	res, err := h.feedback.Submit(ctx, body.ConversationID, body.Feedback)
	return http.StatusOK, res, err
}

func (h *AdminHandler) dateRange(params map[string]string, defaultDays int) (usecase.DateRange, error) {
	days, err := intParam(params, "days")
	if err != nil {
		return usecase.DateRange{}, err
	}
	return usecase.ResolveRange(params["startDate"], params["endDate"], days, defaultDays, h.stats.Now())
}

func conversationFilter(params map[string]string) (usecase.ConversationFilter, error) {
	limit, err := intParam(params, "limit")
	if err != nil {
		return usecase.ConversationFilter{}, err
	}
	offset, err := intParam(params, "offset")
	if err != nil {
		return usecase.ConversationFilter{}, err
	}
	return usecase.ConversationFilter{
		Feedback:  params["feedback"],
		StartDate: params["startDate"],
		EndDate:   params["endDate"],
		Limit:     limit,
		Offset:    offset,
	}, nil
}
