package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/minusxai/minusx/agent"
	"github.com/minusxai/minusx/convlog"
)

// streamingEvent is the envelope for every "streaming_event" SSE frame.
type streamingEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type streamedContentPayload struct {
	Chunk string `json:"chunk"`
}

type toolCreatedPayload struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionView `json:"function"`
}

type doneEvent struct {
	Type               string                  `json:"type"`
	LogDiff            convlog.Log             `json:"logDiff"`
	PendingToolCalls   []ToolCallView          `json:"pending_tool_calls"`
	CompletedToolCalls []CompletedToolCallView `json:"completed_tool_calls"`
	LLMCalls           map[string]LLMCallView  `json:"llm_calls"`
	Timestamp          time.Time               `json:"timestamp"`
}

type errorEvent struct {
	Type      string    `json:"type"`
	Error     string    `json:"error"`
	ErrorID   string    `json:"error_id"`
	Timestamp time.Time `json:"timestamp"`
}

// sseWriter serializes SSE frames onto w, flushing after each one so the
// client observes every event as it is produced rather than buffered.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\n", event)
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

func (s *sseWriter) sendStreamedContent(chunk string) {
	s.send("streaming_event", streamingEvent{Type: "StreamedContent", Payload: streamedContentPayload{Chunk: chunk}})
}

func (s *sseWriter) sendToolCreated(t convlog.Task) {
	s.send("streaming_event", streamingEvent{
		Type: "ToolCreated",
		Payload: toolCreatedPayload{
			ID:       t.UniqueID,
			Type:     "function",
			Function: FunctionView{Name: t.Agent, Arguments: agent.StripReserved(t.Args)},
		},
	})
}

func (s *sseWriter) sendToolCompleted(t convlog.Task, result any) {
	s.send("streaming_event", streamingEvent{
		Type: "ToolCompleted",
		Payload: CompletedToolCallView{
			Role:       "tool",
			ToolCallID: t.UniqueID,
			Content:    result,
			RunID:      t.RunID,
			Function:   FunctionNameArgs{Name: t.Agent, Arguments: agent.StripReserved(t.Args)},
			CreatedAt:  t.CreatedAt,
		},
	})
}

func (s *sseWriter) sendDone(resp ChatResponse, now time.Time) {
	s.send("done", doneEvent{
		Type:               "done",
		LogDiff:            resp.LogDiff,
		PendingToolCalls:   resp.PendingToolCalls,
		CompletedToolCalls: resp.CompletedToolCalls,
		LLMCalls:           resp.LLMCalls,
		Timestamp:          now,
	})
}

func (s *sseWriter) sendError(errID, msg string, now time.Time) {
	s.send("error", errorEvent{Type: "error", Error: msg, ErrorID: errID, Timestamp: now})
}
