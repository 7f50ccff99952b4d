package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"museum-chatbot/internal/domain"
	"museum-chatbot/internal/observability"
	"museum-chatbot/internal/usecase"
)

const maxChatBody = 64 << 10

type ChatRelay interface {
	Stream(ctx context.Context, in usecase.ChatInput) (<-chan usecase.Event, error)
}

type chatRequest struct {
	Query           string `json:"query"`
	SessionID       string `json:"sessionId"`
	NumberOfResults int    `json:"numberOfResults"`
	Language        string `json:"language"`
}

type queryOutput struct {
	Text string `json:"text"`
}

type queryResponse struct {
	ConversationID  string            `json:"conversationId"`
	SessionID       string            `json:"sessionId,omitempty"`
	Output          queryOutput       `json:"output"`
	Citations       []domain.Citation `json:"citations"`
	GuardrailAction string            `json:"guardrailAction,omitempty"`
	ResponseTimeMs  int64             `json:"responseTimeMs"`
}

// ChatServer exposes the relay as a server-sent event stream and as a
// buffered JSON endpoint.
type ChatServer struct {
	relay           ChatRelay
	knowledgeBaseID string
	metrics         *observability.Metrics
	logger          *slog.Logger
}

func NewChatServer(relay ChatRelay, knowledgeBaseID string, metrics *observability.Metrics, logger *slog.Logger) (*ChatServer, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatServer{relay: relay, knowledgeBaseID: knowledgeBaseID, metrics: metrics, logger: logger}, nil
}

func (s *ChatServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(withCorrelationID)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Post("/query", s.handleQuery)
	r.Post("/*", s.handleStream)
	r.Get("/*", s.handleHealth)
	return r
}

func (s *ChatServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":          "healthy",
		"knowledgeBaseId": s.knowledgeBaseID,
	})
}

func (s *ChatServer) handleStream(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, string(usecase.ErrorInternal), "streaming not supported")
		return
	}

	in, err := decodeChatRequest(w, r)
	if err != nil {
		respondErr(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, err := s.relay.Stream(ctx, in)
	if err != nil {
		respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := 0
	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			log.Warn("client disconnected during event stream", "eventsSent", sent, "err", err)
			cancel()
			// Drain so a partial answer is stored before the request ends.
			for range events {
			}
			return
		}
		flusher.Flush()
		sent++
	}
}

// handleQuery drains the relay and answers with one JSON document.
func (s *ChatServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	in, err := decodeChatRequest(w, r)
	if err != nil {
		respondErr(w, err)
		return
	}
	events, err := s.relay.Stream(r.Context(), in)
	if err != nil {
		respondErr(w, err)
		return
	}

	var (
		resp   = queryResponse{Citations: []domain.Citation{}}
		answer strings.Builder
		failed *usecase.Error
		done   bool
	)
	for ev := range events {
		switch p := ev.Data.(type) {
		case usecase.ConversationIDPayload:
			resp.ConversationID = p.ConversationID
		case usecase.SessionIDPayload:
			resp.SessionID = p.SessionID
		case usecase.TextPayload:
			answer.WriteString(p.Text)
		case usecase.CitationsPayload:
			resp.Citations = p.Citations
		case usecase.GuardrailPayload:
			resp.GuardrailAction = p.Action
		case usecase.DonePayload:
			resp.ResponseTimeMs = p.ResponseTimeMs
			done = true
		}
		if ev.Name == usecase.EventError {
			failed = ev.Err
		}
	}

	switch {
	case failed != nil:
		respondErr(w, failed)
	case !done:
		log.Warn("query ended without a terminal event", "conversationId", resp.ConversationID)
		respondError(w, http.StatusInternalServerError, string(usecase.ErrorInternal), "response was interrupted")
	default:
		resp.Output.Text = answer.String()
		respondJSON(w, http.StatusOK, resp)
	}
}

func (s *ChatServer) requestLogger(r *http.Request) *slog.Logger {
	return s.logger.With("correlationId", r.Header.Get(correlationHeader), "path", r.URL.Path)
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (usecase.ChatInput, error) {
	var req chatRequest
	if r.Body == nil {
		return usecase.ChatInput{}, badRequest("missing_body", "Missing required parameter: query")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		return usecase.ChatInput{}, badRequest("invalid_json", "request body must be valid JSON")
	}
	return usecase.ChatInput{
		Query:           req.Query,
		SessionID:       req.SessionID,
		NumberOfResults: req.NumberOfResults,
		Language:        req.Language,
	}, nil
}

func writeEvent(w http.ResponseWriter, ev usecase.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondErr(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	respondJSON(w, status, body)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Correlation-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCorrelationID makes sure every request carries an id and echoes it.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(correlationHeader, id)
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs srv until ctx is cancelled, then drains it within grace.
func ListenAndServe(ctx context.Context, srv *http.Server, grace time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("handler: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
