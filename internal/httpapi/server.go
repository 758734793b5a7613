package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/stream"
)

// Runner is the engine surface served over HTTP. *engine.Engine satisfies it.
type Runner interface {
	StartRun(ctx context.Context, conversationID, message string, streaming bool) (*stream.RunHandle, error)
	Conversation(ctx context.Context, conversationID string) (*core.ConversationState, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Options configures the HTTP handler.
type Options struct {
	AppName     string
	Version     string
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// ScratchKeys are copied from the conversation scratchpad into the chat
	// response metadata.
	ScratchKeys []string
	Logger      logging.Logger
}

// Server holds the handler dependencies.
type Server struct {
	runner Runner
	opts   Options
	logger logging.Logger
}

// NewHandler creates the HTTP handler for runner.
func NewHandler(runner Runner, optFns ...func(o *Options)) http.Handler {
	opts := Options{
		AppName:     "agentgraph",
		Version:     "dev",
		CORSOrigins: []string{"*"},
		ScratchKeys: []string{"research_data"},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{runner: runner, opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors(opts.CORSOrigins))

	r.Get("/", s.info)
	r.Get("/health", s.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Post("/", s.chat)
		r.Post("/stream", s.streamChat)
		r.Get("/history/{conversationID}", s.history)
		r.Delete("/{conversationID}", s.deleteConversation)
	})

	return r
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// ChatResponse is the body of a completed blocking chat.
type ChatResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status"`
	ToolsUsed      []string       `json:"tools_used"`
	Metadata       map[string]any `json:"metadata"`
	Timestamp      time.Time      `json:"timestamp"`
}

// HistoryResponse lists the turns of a conversation.
type HistoryResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []core.Turn       `json:"messages"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUpdated    time.Time         `json:"last_updated"`
	MessageCount   int               `json:"message_count"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to " + s.opts.AppName,
		"version": s.opts.Version,
		"status":  "running",
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.opts.AppName,
		"version": s.opts.Version,
	})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	start := time.Now()
	h, err := s.runner.StartRun(r.Context(), req.ConversationID, req.Message, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := h.Wait(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	meta := map[string]any{
		"run_id":          res.RunID,
		"steps":           res.Steps,
		"processing_time": time.Since(start).Seconds(),
	}
	if conv, err := s.runner.Conversation(r.Context(), res.ConversationID); err == nil {
		for _, key := range s.opts.ScratchKeys {
			if v, ok := conv.Scratchpad[key]; ok {
				meta[key] = v
			}
		}
	}

	tools := res.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:       res.FinalAnswer,
		ConversationID: res.ConversationID,
		Status:         "completed",
		ToolsUsed:      tools,
		Metadata:       meta,
		Timestamp:      time.Now().UTC(),
	})
}

// streamChat relays engine events as SSE frames until the terminal event.
// Errors raised before the run starts are plain JSON responses.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New("streaming not supported"))
		return
	}

	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	h, err := s.runner.StartRun(r.Context(), req.ConversationID, req.Message, true)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-Id", h.ConversationID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.Events(r.Context()) {
		b, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("httpapi.stream.encode_failed", "run_id", ev.RunID, "seq", ev.Seq, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			s.logger.Warn("httpapi.stream.client_gone", "run_id", ev.RunID, "error", err)
			h.Cancel()
			return
		}
		flusher.Flush()
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	conv, err := s.runner.Conversation(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	turns := conv.Turns
	if turns == nil {
		turns = []core.Turn{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		ConversationID: conv.ID,
		Messages:       turns,
		Metadata:       conv.Scratchpad,
		CreatedAt:      conv.Created,
		LastUpdated:    conv.Updated,
		MessageCount:   len(turns),
	})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	if err := s.runner.DeleteConversation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":         fmt.Sprintf("Conversation %s deleted successfully", id),
		"conversation_id": id,
	})
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "invalid request body: " + err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, engine.ErrEmptyMessage)
		return req, false
	}
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := string(core.KindOf(err))
	switch {
	case errors.Is(err, engine.ErrEmptyMessage):
		kind = "invalid_request"
	case errors.Is(err, engine.ErrTooManyRuns):
		kind = "too_many_runs"
	}

	resp := ErrorResponse{Error: kind, Message: err.Error(), Timestamp: time.Now().UTC()}

	var runErr *core.RunError
	if errors.As(err, &runErr) {
		resp.Details = map[string]any{"run_id": runErr.RunID, "steps": runErr.Steps}
		if runErr.PartialAnswer != "" {
			resp.Details["partial_answer"] = runErr.PartialAnswer
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("httpapi.request.failed", "status", status, "kind", kind, "error", err)
	}
	writeJSON(w, status, resp)
}

// StatusFor maps an engine error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrTooManyRuns):
		return http.StatusTooManyRequests
	}

	switch core.KindOf(err) {
	case core.KindConcurrentRunConflict:
		return http.StatusConflict
	case core.KindStateStoreUnavailable:
		return http.StatusServiceUnavailable
	case core.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case core.KindStepBudgetExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("httpapi.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func cors(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
