package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"museum-chatbot/internal/domain"
)

type FeedbackStore interface {
	GetExchange(ctx context.Context, conversationID string) (domain.Exchange, error)
	UpdateFields(ctx context.Context, conversationID, timestamp string, fields map[string]string) error
}

type FeedbackResult struct {
	Success        bool            `json:"success"`
	ConversationID string          `json:"conversationId"`
	Feedback       domain.Feedback `json:"feedback"`
}

// FeedbackService records a rating on a logged exchange.
type FeedbackService struct {
	store  FeedbackStore
	logger *slog.Logger
	now    func() time.Time
}

func NewFeedbackService(store FeedbackStore, logger *slog.Logger, now func() time.Time) (*FeedbackService, error) {
	if store == nil {
		return nil, errors.New("usecase: feedback store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &FeedbackService{store: store, logger: logger, now: now}, nil
}

// Submit normalizes the rating and stores it with a fresh rating timestamp.
// Re-submitting the stored rating writes nothing and keeps the old timestamp.
func (s *FeedbackService) Submit(ctx context.Context, conversationID, raw string) (FeedbackResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return FeedbackResult{}, invalidInput("missing_conversation_id", "Missing required parameter: conversationId")
	}
	if strings.TrimSpace(raw) == "" {
		return FeedbackResult{}, invalidInput("missing_feedback", "Missing required parameter: feedback")
	}
	fb, ok := domain.ParseFeedback(raw)
	if !ok {
		return FeedbackResult{}, invalidInput("invalid_feedback", "Invalid feedback value. Must be 'pos' or 'neg'")
	}

	log := s.logger.With("conversationId", conversationID, "feedback", string(fb))
	ex, err := s.store.GetExchange(ctx, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return FeedbackResult{}, &Error{Code: ErrorNotFound, Reason: "conversation_not_found", Message: "Conversation not found", Err: err}
	}
	if err != nil {
		log.Error("feedback lookup failed", "err", err)
		return FeedbackResult{}, newError(ErrorInternal, "feedback_lookup_failed", err)
	}

	res := FeedbackResult{Success: true, ConversationID: conversationID, Feedback: fb}
	if ex.Feedback == fb {
		log.Info("feedback unchanged, nothing written")
		return res, nil
	}

	err = s.store.UpdateFields(ctx, conversationID, ex.Timestamp, map[string]string{
		"feedback":   string(fb),
		"feedbackTs": s.now().UTC().Format(TimestampLayout),
	})
	if errors.Is(err, domain.ErrNotFound) {
		return FeedbackResult{}, &Error{Code: ErrorNotFound, Reason: "conversation_not_found", Message: "Conversation not found", Err: err}
	}
	if err != nil {
		log.Error("feedback update failed", "err", err)
		return FeedbackResult{}, newError(ErrorInternal, "feedback_update_failed", err)
	}
	log.Info("feedback recorded", "previous", string(ex.Feedback))
	return res, nil
}
