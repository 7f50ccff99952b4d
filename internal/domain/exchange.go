package domain

import "strings"

// Feedback is the normalized rating a caller attached to an exchange.
type Feedback string

const (
	FeedbackNone     Feedback = ""
	FeedbackPositive Feedback = "pos"
	FeedbackNegative Feedback = "neg"
)

const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// ParseFeedback normalizes the accepted spellings of a rating.
func ParseFeedback(raw string) (Feedback, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pos", "positive", "+", "up":
		return FeedbackPositive, true
	case "neg", "negative", "-", "down":
		return FeedbackNegative, true
	default:
		return FeedbackNone, false
	}
}

// Exchange is one logged question/answer interaction.
type Exchange struct {
	ConversationID    string
	Timestamp         string
	Date              string
	SessionID         string
	Question          string
	Answer            string
	Citations         []Citation
	CitationCount     int
	ResponseTimeMs    int64
	Language          string
	ModelID           string
	Status            string
	Feedback          Feedback
	FeedbackTimestamp string
}

// Citation is a reference that is safe to show to the caller.
type Citation struct {
	Type     string         `json:"type"`
	URL      string         `json:"url"`
	Snippet  string         `json:"snippet,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Reference is a retrieved source exactly as the generation backend reported it.
type Reference struct {
	LocationType string
	Location     string
	Text         string
	Metadata     map[string]any
}
