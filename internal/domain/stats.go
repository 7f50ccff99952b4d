package domain

// DailyStat is the aggregate of one calendar day of exchanges.
type DailyStat struct {
	Date              string
	Count             int
	Positive          int
	Negative          int
	NoFeedback        int
	TotalResponseTime int64
	ResponseTimeCount int
}

// Add folds other into s. The date of s is kept.
func (s *DailyStat) Add(other DailyStat) {
	s.Count += other.Count
	s.Positive += other.Positive
	s.Negative += other.Negative
	s.NoFeedback += other.NoFeedback
	s.TotalResponseTime += other.TotalResponseTime
	s.ResponseTimeCount += other.ResponseTimeCount
}

// ChartPoint is one bucket of the conversations chart.
type ChartPoint struct {
	Date    string `json:"date"`
	EndDate string `json:"endDate,omitempty"`
	Count   int    `json:"count"`
	DayName string `json:"dayName"`
	Label   string `json:"label"`
}

type Period struct {
	Days      int    `json:"days"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// RangeResult is the merged aggregate for an inclusive date range.
type RangeResult struct {
	TotalConversations int          `json:"totalConversations"`
	ConversationsToday int          `json:"conversationsToday"`
	TotalFeedback      int          `json:"totalFeedback"`
	PositiveFeedback   int          `json:"positiveFeedback"`
	NegativeFeedback   int          `json:"negativeFeedback"`
	NoFeedback         int          `json:"noFeedback"`
	SatisfactionRate   float64      `json:"satisfactionRate"`
	AvgResponseTimeMs  int64        `json:"avgResponseTimeMs"`
	ConversationsByDay []ChartPoint `json:"conversationsByDay"`
	Period             Period       `json:"period"`
}

// ActivityResult is the count-only chart for an inclusive date range.
type ActivityResult struct {
	TotalConversations int          `json:"totalConversations"`
	ConversationsToday int          `json:"conversationsToday"`
	ConversationsByDay []ChartPoint `json:"conversationsByDay"`
	Period             Period       `json:"period"`
}
