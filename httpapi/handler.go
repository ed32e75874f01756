package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/convlog"
	"github.com/minusxai/minusx/orchestrator"
	"github.com/minusxai/minusx/telemetry"
)

// Handler serves the three Conversation HTTP API endpoints against a shared
// agent registry. It holds no per-conversation state: every request
// constructs its own Orchestrator from the request body's log.
type Handler struct {
	Registry *agent.Registry
	Logger   telemetry.Logger
}

// NewHandler constructs a Handler. logger may be telemetry.NewNoopLogger().
func NewHandler(reg *agent.Registry, logger telemetry.Logger) *Handler {
	return &Handler{Registry: reg, Logger: logger}
}

// Routes registers the three endpoints on mux and returns it, so callers can
// mount additional routes (health checks, domain-tool endpoints) alongside.
func (h *Handler) Routes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("POST /chat", h.ServeChat)
	mux.HandleFunc("POST /chat/stream", h.ServeChatStream)
	mux.HandleFunc("POST /chat/close", h.ServeChatClose)
	return mux
}

// ServeChat handles POST /chat: non-streaming JSON request/response.
func (h *Handler) ServeChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := processChat(r.Context(), h.Registry, req, orchestrator.Hooks{})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error(r.Context(), "httpapi: encode chat response", "err", err)
	}
}

// ServeChatStream handles POST /chat/stream: the same processing as
// ServeChat, but emits streaming_event frames for content deltas and tool
// lifecycle as they occur, followed by a terminal done (or error) event.
func (h *Handler) ServeChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Hook callbacks fire from concurrent sibling-task goroutines (see
	// Orchestrator.Dispatch); they must never write to the ResponseWriter
	// directly. Instead they enqueue a closure and a single consumer drains
	// the channel and writes frames serially.
	events := make(chan func(*sseWriter), 256)
	hooks := orchestrator.Hooks{
		OnToolCreated: func(t convlog.Task) {
			events <- func(s *sseWriter) { s.sendToolCreated(t) }
		},
		OnToolCompleted: func(t convlog.Task, result any) {
			events <- func(s *sseWriter) { s.sendToolCompleted(t, result) }
		},
		OnContent: func(chunk, streamID string) {
			events <- func(s *sseWriter) { s.sendStreamedContent(chunk) }
		},
	}

	done := make(chan ChatResponse, 1)
	go func() {
		resp := processChat(r.Context(), h.Registry, req, hooks)
		close(events)
		done <- resp
	}()

	for fn := range events {
		fn(sw)
	}

	resp := <-done
	if resp.Error != "" {
		sw.sendError(orchestrator.NewID(), resp.Error, time.Now())
		return
	}
	sw.sendDone(resp, time.Now())
}

// ServeChatClose handles POST /chat/close: marks every pending leaf of the
// latest root as interrupted and returns the resulting log diff.
func (h *Handler) ServeChatClose(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := processClose(h.Registry, req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Logger.Error(r.Context(), "httpapi: encode close response", "err", err)
	}
}
