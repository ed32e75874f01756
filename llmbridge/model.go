// Package llmbridge defines the provider-agnostic message and streaming
// types used to drive an LLM turn, plus adapters translating them to and
// from concrete provider SDKs (Anthropic, OpenAI). It models messages as
// typed parts (text, thinking, tool use/results) rather than flattened
// strings so provider adapters can round-trip rich content without lossy
// string concatenation.
package llmbridge

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	Part interface {
		isPart()
	}

	// TextPart is a plain text content block.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes attached to a user message.
	ImagePart struct {
		// Format is the image encoding, e.g. "png", "jpeg".
		Format string
		Bytes  []byte
	}

	// DocumentPart carries a document attached to a user message, typically a
	// query result or schema excerpt the model should reason over.
	DocumentPart struct {
		Name   string
		Format string
		Bytes  []byte
		Text   string
	}

	// CitationsPart is generated content paired with citation metadata,
	// emitted by providers that support grounded generation in place of a
	// plain TextPart.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a source location.
	Citation struct {
		Title   string
		Source  string
		Excerpt string
	}

	// ThinkingPart represents provider-issued extended-reasoning content.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Final     bool
	}

	// ToolUsePart declares a tool invocation by the assistant.
	ToolUsePart struct {
		// ID is the provider-issued tool call id, used as the dispatched
		// task's UniqueID so task ids and tool_call_ids coincide.
		ID string
		// Name is the tool identifier requested by the model.
		Name string
		// Input is the canonical JSON arguments the model supplied.
		Input json.RawMessage
	}

	// ToolResultPart carries a tool result attached to a user message so the
	// model can read it in a subsequent turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a prompt-caching boundary. Provider adapters
	// that don't support caching ignore it.
	CacheCheckpointPart struct{}

	// Message is a single chat message: a role plus ordered content parts.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// ToolDefinition describes one tool exposed to the model: name,
	// description, and the JSON Schema of its input, derived from an
	// agent.Registration's ParamSpec list (see ToolSchema).
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolChoiceMode controls how a request constrains tool use.
	ToolChoiceMode string

	// ToolChoice optionally forces tool use for a request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures the inputs for one model invocation.
	Request struct {
		// RunID identifies the task this call is made on behalf of, so debug
		// records can be attributed back to a TaskDebug entry.
		RunID string
		// Model is the concrete provider model identifier.
		Model string
		// Messages is the ordered transcript built by the thread translator.
		Messages []*Message
		// System is the system prompt, sent provider-natively rather than as
		// a leading message.
		System string
		// Temperature controls sampling when supported.
		Temperature float32
		// Tools lists the tool definitions available this turn.
		Tools []*ToolDefinition
		// ToolChoice optionally constrains tool use.
		ToolChoice *ToolChoice
		// MaxTokens caps output tokens.
		MaxTokens int
		// Thinking configures extended reasoning when supported.
		Thinking *ThinkingOptions
	}

	// ThinkingOptions configures provider extended-reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content   []Message
		ToolCalls []ToolUsePart
		Usage     TokenUsage
		StopReason string
	}

	// Chunk is one streaming event from the model.
	Chunk struct {
		Type string

		// Text carries an incremental text delta when Type is ChunkText.
		Text string
		// Thinking carries an incremental reasoning delta when Type is
		// ChunkThinking.
		Thinking string
		// ToolCall carries a completed tool invocation when Type is
		// ChunkToolCall.
		ToolCall *ToolUsePart
		// ToolCallDelta carries a raw JSON input fragment, for progressive UI
		// previews only, when Type is ChunkToolCallDelta.
		ToolCallDelta *ToolCallDelta
		// UsageDelta reports incremental token usage when Type is ChunkUsage.
		UsageDelta *TokenUsage
		// StopReason is set when Type is ChunkStop.
		StopReason string
	}

	// ToolCallDelta is an incremental, best-effort tool-call input fragment.
	// It is not guaranteed to be valid JSON on its own; the canonical payload
	// is always the later ChunkToolCall's ToolCall.Input.
	ToolCallDelta struct {
		ID    string
		Name  string
		Delta string
	}

	// Client is the provider-agnostic model client an analyst agent drives.
	Client interface {
		// Complete performs a non-streaming invocation.
		Complete(ctx context.Context, req *Request) (*Response, error)
		// Stream performs a streaming invocation.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers must drain Recv
	// until it returns io.EOF (or another terminal error), then Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		// Usage returns the final accumulated usage once the stream is
		// drained; it is zero-valued before then.
		Usage() TokenUsage
	}
)

const (
	ChunkText          = "text"
	ChunkToolCall      = "tool_call"
	ChunkToolCallDelta = "tool_call_delta"
	ChunkThinking      = "thinking"
	ChunkUsage         = "usage"
	ChunkStop          = "stop"
)

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("llmbridge: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers surface this as a transient failure rather than retrying
// in a tight loop.
var ErrRateLimited = errors.New("llmbridge: rate limited")

func (TextPart) isPart()            {}
func (ImagePart) isPart()           {}
func (DocumentPart) isPart()        {}
func (CitationsPart) isPart()       {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}
