package llmbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIClient adapts the OpenAI Chat Completions API to Client. The server
// uses it when started with -provider openai.
type OpenAIClient struct {
	sdk oai.Client
}

// NewOpenAIClient constructs a Client backed by the OpenAI SDK.
func NewOpenAIClient(opts ...option.RequestOption) *OpenAIClient {
	return &OpenAIClient{sdk: oai.NewClient(opts...)}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := toOpenAIParams(req)
	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmbridge: openai complete: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &Response{}, nil
	}
	choice := completion.Choices[0]

	var resp Response
	if choice.Message.Content != "" {
		resp.Content = []Message{{Role: RoleAssistant, Parts: []Part{TextPart{Text: choice.Message.Content}}}}
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolUsePart{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	resp.Usage = TokenUsage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	resp.StopReason = string(choice.FinishReason)
	return &resp, nil
}

// Stream implements Client.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	params := toOpenAIParams(req)
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{IncludeUsage: oai.Bool(true)}
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	return newOpenAIStreamer(ctx, stream), nil
}

func toOpenAIParams(req *Request) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(req.Model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(float64(req.Temperature))
	}
	if req.System != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toOpenAIMessage(m))
	}
	for _, td := range req.Tools {
		var schema map[string]any
		raw, _ := json.Marshal(td.InputSchema)
		_ = json.Unmarshal(raw, &schema)
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: oai.FunctionDefinitionParam{
				Name:        td.Name,
				Description: oai.String(td.Description),
				Parameters:  schema,
			},
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case ToolChoiceNone:
			params.ToolChoice = oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("none")}
		case ToolChoiceAny:
			params.ToolChoice = oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("required")}
		default:
			params.ToolChoice = oai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oai.String("auto")}
		}
	}
	return params
}

func toOpenAIMessage(m *Message) oai.ChatCompletionMessageParamUnion {
	var text string
	var toolCalls []oai.ChatCompletionMessageToolCallParam
	var toolResult *ToolResultPart
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			text += v.Text
		case ToolUsePart:
			toolCalls = append(toolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      v.Name,
					Arguments: string(v.Input),
				},
			})
		case ToolResultPart:
			vv := v
			toolResult = &vv
		}
	}
	if toolResult != nil {
		content, _ := json.Marshal(toolResult.Content)
		return oai.ToolMessage(string(content), toolResult.ToolUseID)
	}
	switch m.Role {
	case RoleAssistant:
		msg := oai.AssistantMessage(text)
		msg.OfAssistant.ToolCalls = toolCalls
		return msg
	case RoleSystem:
		return oai.SystemMessage(text)
	default:
		return oai.UserMessage(text)
	}
}

// openaiStreamer adapts an OpenAI chat completion SSE stream to Streamer,
// assembling per-index tool-call argument fragments into complete payloads
// on the delta that carries the finish reason, mirroring how the Anthropic
// adapter buffers input_json_delta fragments until content_block_stop.
type openaiStreamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[oai.ChatCompletionChunk]

	pending map[int]*oaiToolBuffer
	usage   TokenUsage
	queued  []Chunk
	done    bool
	err     error
}

type oaiToolBuffer struct {
	id, name string
	args     []string
}

func newOpenAIStreamer(ctx context.Context, stream *ssestream.Stream[oai.ChatCompletionChunk]) *openaiStreamer {
	cctx, cancel := context.WithCancel(ctx)
	return &openaiStreamer{
		ctx:     cctx,
		cancel:  cancel,
		stream:  stream,
		pending: make(map[int]*oaiToolBuffer),
	}
}

func (s *openaiStreamer) Recv() (Chunk, error) {
	for {
		if len(s.queued) > 0 {
			c := s.queued[0]
			s.queued = s.queued[1:]
			return c, nil
		}
		if s.done {
			if s.err != nil {
				return Chunk{}, s.err
			}
			return Chunk{}, io.EOF
		}
		if err := s.advance(); err != nil {
			s.done = true
			s.err = err
		}
	}
}

func (s *openaiStreamer) advance() error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return err
		}
		s.flushTools()
		s.queued = append(s.queued, Chunk{Type: ChunkStop})
		s.done = true
		return nil
	}

	chunk := s.stream.Current()
	if chunk.Usage.TotalTokens > 0 {
		s.usage = TokenUsage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
			TotalTokens:  int(chunk.Usage.TotalTokens),
		}
		s.queued = append(s.queued, Chunk{Type: ChunkUsage, UsageDelta: &s.usage})
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		s.queued = append(s.queued, Chunk{Type: ChunkText, Text: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		idx := int(tc.Index)
		tb := s.pending[idx]
		if tb == nil {
			tb = &oaiToolBuffer{id: tc.ID, name: tc.Function.Name}
			s.pending[idx] = tb
		}
		if tc.Function.Arguments != "" {
			tb.args = append(tb.args, tc.Function.Arguments)
			s.queued = append(s.queued, Chunk{Type: ChunkToolCallDelta, ToolCallDelta: &ToolCallDelta{ID: tb.id, Name: tb.name, Delta: tc.Function.Arguments}})
		}
	}
	if choice.FinishReason != "" {
		s.flushTools()
	}
	return nil
}

func (s *openaiStreamer) flushTools() {
	for idx, tb := range s.pending {
		delete(s.pending, idx)
		args := ""
		for _, a := range tb.args {
			args += a
		}
		if args == "" {
			args = "{}"
		}
		s.queued = append(s.queued, Chunk{Type: ChunkToolCall, ToolCall: &ToolUsePart{ID: tb.id, Name: tb.name, Input: json.RawMessage(args)}})
	}
}

func (s *openaiStreamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *openaiStreamer) Usage() TokenUsage { return s.usage }
