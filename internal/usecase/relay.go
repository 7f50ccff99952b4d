package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"museum-chatbot/internal/domain"
	"museum-chatbot/internal/observability"
)

// Event names, in the order a client observes them.
const (
	EventConversationID = "conversationId"
	EventSessionExpired = "sessionExpired"
	EventSessionID      = "sessionId"
	EventText           = "text"
	EventCitations      = "citations"
	EventGuardrail      = "guardrail"
	EventDone           = "done"
	EventError          = "error"
)

const (
	defaultMaxRetries      = 3
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxQuestionLen  = 2000
	defaultLanguage        = "en"
	defaultNumberOfResults = 5
	maxNumberOfResults     = 100
	eventBuffer            = 32

	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
	DateLayout      = "2006-01-02"
)

type Generator interface {
	Invoke(ctx context.Context, req domain.GenerationRequest) <-chan domain.Chunk
}

type ExchangeWriter interface {
	PutExchange(ctx context.Context, ex domain.Exchange) error
}

// Event is one unit of the client-visible stream. Err is set only on EventError.
type Event struct {
	Name string
	Data any
	Err  *Error
}

type ConversationIDPayload struct {
	ConversationID string `json:"conversationId"`
}

type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

type SessionExpiredPayload struct {
	Message           string `json:"message"`
	PreviousSessionID string `json:"previousSessionId"`
}

type TextPayload struct {
	Text string `json:"text"`
}

type CitationsPayload struct {
	Citations []domain.Citation `json:"citations"`
}

type GuardrailPayload struct {
	Action string `json:"action"`
}

type DonePayload struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversationId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

type ErrorPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

type ChatInput struct {
	Query           string
	SessionID       string
	NumberOfResults int
	Language        string
}

type RelayConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxQuestionLen int
	ModelID        string
	Citations      CitationPolicy
}

// Relay drives one question through the generation backend and relays the
// answer as an ordered event stream.
type Relay struct {
	gen     Generator
	store   ExchangeWriter
	cfg     RelayConfig
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	newID   func() string
}

type RelayOption func(*Relay)

func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRelayMetrics(m *observability.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

// WithRelaySleeper replaces the backoff wait.
func WithRelaySleeper(sleep func(ctx context.Context, d time.Duration) error) RelayOption {
	return func(r *Relay) { r.sleep = sleep }
}

func WithRelayIDs(newID func() string) RelayOption {
	return func(r *Relay) { r.newID = newID }
}

func NewRelay(gen Generator, store ExchangeWriter, cfg RelayConfig, opts ...RelayOption) (*Relay, error) {
	if gen == nil {
		return nil, fmt.Errorf("usecase: generator must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("usecase: exchange store must not be nil")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxQuestionLen <= 0 {
		cfg.MaxQuestionLen = defaultMaxQuestionLen
	}
	r := &Relay{
		gen:    gen,
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Normalize validates a chat request and fills defaults.
func (r *Relay) Normalize(in ChatInput) (ChatInput, error) {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return ChatInput{}, invalidInput("empty_query", "Missing required parameter: query")
	}
	if len(in.Query) > r.cfg.MaxQuestionLen {
		return ChatInput{}, invalidInput("query_too_long", fmt.Sprintf("query must be at most %d characters", r.cfg.MaxQuestionLen))
	}
	if in.NumberOfResults == 0 {
		in.NumberOfResults = defaultNumberOfResults
	}
	if in.NumberOfResults < 1 || in.NumberOfResults > maxNumberOfResults {
		return ChatInput{}, invalidInput("invalid_number_of_results", fmt.Sprintf("numberOfResults must be between 1 and %d", maxNumberOfResults))
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.Language = strings.TrimSpace(in.Language); in.Language == "" {
		in.Language = defaultLanguage
	}
	return in, nil
}

// Stream validates the request and starts relaying. The returned channel
// yields conversationId first and ends with exactly one done or error event,
// unless ctx is cancelled first.
func (r *Relay) Stream(ctx context.Context, in ChatInput) (<-chan Event, error) {
	in, err := r.Normalize(in)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, eventBuffer)
	go r.run(ctx, in, out)
	return out, nil
}

// streamSession is the per-request state of one relay run.
type streamSession struct {
	conversationID string
	token          string
	sessionID      string
	answer         strings.Builder
	textSeen       bool
	citations      []domain.Citation
	guardrail      string
	retries        int
	sessionReset   bool
	start          time.Time
}

type outcomeKind int

const (
	outcomeComplete outcomeKind = iota
	outcomeThrottled
	outcomeSessionInvalid
	outcomeFatal
	outcomeCanceled
)

type attemptOutcome struct {
	kind outcomeKind
	err  error
}

func (r *Relay) run(ctx context.Context, in ChatInput, out chan<- Event) {
	defer close(out)

	s := &streamSession{conversationID: r.newID(), token: in.SessionID, start: r.now()}
	log := r.logger.With("conversationId", s.conversationID)
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			r.metrics.ObserveEvent(ev.Name)
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{Name: EventConversationID, Data: ConversationIDPayload{ConversationID: s.conversationID}}) {
		r.interrupted(ctx, log, s, in)
		return
	}

	for {
		res := r.attempt(ctx, s, in, emit)
		switch res.kind {
		case outcomeComplete:
			r.finalize(ctx, log, s, in, emit)
			return

		case outcomeThrottled:
			if s.textSeen || s.retries >= r.cfg.MaxRetries {
				r.fail(log, s, fromUpstream(res.err), emit)
				return
			}
			wait := r.cfg.InitialBackoff << s.retries
			s.retries++
			r.metrics.ObserveRetry("throttled")
			log.Warn("generation backend throttled, retrying", "attempt", s.retries, "backoff", wait)
			if err := r.sleep(ctx, wait); err != nil {
				r.interrupted(ctx, log, s, in)
				return
			}

		case outcomeSessionInvalid:
			if s.textSeen || s.sessionReset || s.token == "" {
				r.fail(log, s, fromUpstream(res.err), emit)
				return
			}
			previous := s.token
			s.sessionReset = true
			s.token = ""
			r.metrics.ObserveRetry("session_invalid")
			log.Info("continuation token rejected, restarting without it", "sessionId", previous)
			if !emit(Event{Name: EventSessionExpired, Data: SessionExpiredPayload{
				Message:           "Session expired; continuing in a new session.",
				PreviousSessionID: previous,
			}}) {
				r.interrupted(ctx, log, s, in)
				return
			}

		case outcomeFatal:
			r.fail(log, s, fromUpstream(res.err), emit)
			return

		case outcomeCanceled:
			r.interrupted(ctx, log, s, in)
			return
		}
	}
}

// attempt issues one backend call and consumes its chunks until the stream
// ends or a failure chunk arrives.
func (r *Relay) attempt(ctx context.Context, s *streamSession, in ChatInput, emit func(Event) bool) attemptOutcome {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.citations = nil
	s.guardrail = ""
	chunks := r.gen.Invoke(callCtx, domain.GenerationRequest{
		Query:           in.Query,
		SessionID:       s.token,
		NumberOfResults: in.NumberOfResults,
	})
	for {
		var (
			ch domain.Chunk
			ok bool
		)
		select {
		case <-ctx.Done():
			return attemptOutcome{kind: outcomeCanceled}
		case ch, ok = <-chunks:
		}
		if !ok {
			if ctx.Err() != nil {
				return attemptOutcome{kind: outcomeCanceled}
			}
			return attemptOutcome{kind: outcomeComplete}
		}

		switch c := ch.(type) {
		case domain.TextChunk:
			s.answer.WriteString(c.Text)
			s.textSeen = true
			if !emit(Event{Name: EventText, Data: TextPayload{Text: c.Text}}) {
				return attemptOutcome{kind: outcomeCanceled}
			}
		case domain.CitationChunk:
			s.citations = append(s.citations, r.cfg.Citations.Apply(c.References)...)
		case domain.GuardrailChunk:
			s.guardrail = c.Action
		case domain.SessionChunk:
			if s.sessionID != "" || c.SessionID == "" {
				continue
			}
			s.sessionID = c.SessionID
			if !emit(Event{Name: EventSessionID, Data: SessionIDPayload{SessionID: c.SessionID}}) {
				return attemptOutcome{kind: outcomeCanceled}
			}
		case domain.ThrottledChunk:
			return attemptOutcome{kind: outcomeThrottled, err: c.Err}
		case domain.SessionInvalidChunk:
			return attemptOutcome{kind: outcomeSessionInvalid, err: c.Err}
		case domain.FatalChunk:
			if ctx.Err() != nil {
				return attemptOutcome{kind: outcomeCanceled}
			}
			return attemptOutcome{kind: outcomeFatal, err: c.Err}
		default:
			return attemptOutcome{kind: outcomeFatal, err: fmt.Errorf("usecase: unexpected chunk %T", ch)}
		}
	}
}

func (r *Relay) finalize(ctx context.Context, log *slog.Logger, s *streamSession, in ChatInput, emit func(Event) bool) {
	if len(s.citations) > 0 {
		if !emit(Event{Name: EventCitations, Data: CitationsPayload{Citations: s.citations}}) {
			r.interrupted(ctx, log, s, in)
			return
		}
	}
	if s.guardrail != "" {
		if !emit(Event{Name: EventGuardrail, Data: GuardrailPayload{Action: s.guardrail}}) {
			r.interrupted(ctx, log, s, in)
			return
		}
	}

	elapsed := r.now().Sub(s.start)
	r.persist(ctx, log, s, in, domain.StatusComplete, elapsed)
	r.metrics.ObserveOutcome("complete", elapsed)
	emit(Event{Name: EventDone, Data: DonePayload{
		Status:         domain.StatusComplete,
		ConversationID: s.conversationID,
		ResponseTimeMs: elapsed.Milliseconds(),
	}})
}

func (r *Relay) fail(log *slog.Logger, s *streamSession, e *Error, emit func(Event) bool) {
	elapsed := r.now().Sub(s.start)
	log.Error("chat stream failed",
		"code", e.Code,
		"reason", e.Reason,
		"retries", s.retries,
		"elapsedMs", elapsed.Milliseconds(),
		"err", e.Err,
	)
	r.metrics.ObserveOutcome("error", elapsed)
	emit(Event{Name: EventError, Data: ErrorPayload{Error: e.ClientMessage(), Code: e.Code}, Err: e})
}

// interrupted handles a caller that went away. Whatever answer text was
// received is kept as a partial exchange.
func (r *Relay) interrupted(ctx context.Context, log *slog.Logger, s *streamSession, in ChatInput) {
	elapsed := r.now().Sub(s.start)
	r.metrics.ObserveOutcome("interrupted", elapsed)
	if s.answer.Len() == 0 {
		log.Info("chat stream interrupted before any answer text", "elapsedMs", elapsed.Milliseconds())
		return
	}
	log.Info("chat stream interrupted, keeping partial answer", "elapsedMs", elapsed.Milliseconds())
	r.persist(ctx, log, s, in, domain.StatusPartial, elapsed)
}

// persist is best effort; a storage failure never reaches the caller.
func (r *Relay) persist(ctx context.Context, log *slog.Logger, s *streamSession, in ChatInput, status string, elapsed time.Duration) {
	start := s.start.UTC()
	ex := domain.Exchange{
		ConversationID: s.conversationID,
		Timestamp:      start.Format(TimestampLayout),
		Date:           start.Format(DateLayout),
		SessionID:      s.sessionID,
		Question:       in.Query,
		Answer:         s.answer.String(),
		Citations:      s.citations,
		CitationCount:  len(s.citations),
		ResponseTimeMs: elapsed.Milliseconds(),
		Language:       in.Language,
		ModelID:        r.cfg.ModelID,
		Status:         status,
	}
	if err := r.store.PutExchange(context.WithoutCancel(ctx), ex); err != nil {
		r.metrics.ObservePersistFailure()
		log.Error("failed to persist exchange",
			"status", status,
			"elapsedMs", elapsed.Milliseconds(),
			"err", err,
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
