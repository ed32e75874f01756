package llmbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicClient adapts the Anthropic Messages API to Client.
type AnthropicClient struct {
	sdk sdk.Client
}

// NewAnthropicClient constructs a Client backed by the Anthropic SDK, using
// opts for authentication (typically option.WithAPIKey).
func NewAnthropicClient(opts ...option.RequestOption) *AnthropicClient {
	return &AnthropicClient{sdk: sdk.NewClient(opts...)}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, nameMap := toAnthropicParams(req)
	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmbridge: anthropic complete: %w", err)
	}

	var resp Response
	var parts []Part
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			parts = append(parts, TextPart{Text: b.Text})
		case sdk.ThinkingBlock:
			parts = append(parts, ThinkingPart{Text: b.Thinking, Signature: b.Signature, Final: true})
		case sdk.ToolUseBlock:
			name := b.Name
			if canonical, ok := nameMap[name]; ok {
				name = canonical
			}
			payload, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolUsePart{ID: b.ID, Name: name, Input: payload})
		}
	}
	if len(parts) > 0 {
		resp.Content = []Message{{Role: RoleAssistant, Parts: parts}}
	}
	resp.Usage = TokenUsage{
		InputTokens:      int(msg.Usage.InputTokens),
		OutputTokens:     int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
		CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
	}
	resp.StopReason = string(msg.StopReason)
	return &resp, nil
}

// Stream implements Client.
func (c *AnthropicClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	params, nameMap := toAnthropicParams(req)
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	return newAnthropicStreamer(ctx, stream, nameMap), nil
}

// toAnthropicParams translates a provider-agnostic Request into Anthropic SDK
// params, returning the reverse tool-name map (provider-visible name -> our
// canonical name) the streamer and Complete use to undo any name mangling.
func toAnthropicParams(req *Request) (sdk.MessageNewParams, map[string]string) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}

	nameMap := make(map[string]string, len(req.Tools))
	for _, td := range req.Tools {
		nameMap[td.Name] = td.Name
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        td.Name,
				Description: sdk.String(td.Description),
				InputSchema: toAnthropicSchema(td.InputSchema),
			},
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case ToolChoiceNone:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &sdk.ToolChoiceNoneParam{}}
		case ToolChoiceAny:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
		case ToolChoiceTool:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfTool: &sdk.ToolChoiceToolParam{Name: req.ToolChoice.Name}}
		default:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{}}
		}
	}
	if req.Thinking != nil && req.Thinking.Enable {
		params.Thinking = sdk.ThinkingConfigParamUnion{
			OfEnabled: &sdk.ThinkingConfigEnabledParam{BudgetTokens: int64(req.Thinking.BudgetTokens)},
		}
	}

	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toAnthropicMessage(m))
	}

	return params, nameMap
}

func toAnthropicSchema(schema any) sdk.ToolInputSchemaParam {
	raw, _ := json.Marshal(schema)
	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	return sdk.ToolInputSchemaParam{
		Type:       "object",
		Properties: generic["properties"],
	}
}

func toAnthropicMessage(m *Message) sdk.MessageParam {
	role := sdk.MessageParamRoleUser
	if m.Role == RoleAssistant {
		role = sdk.MessageParamRoleAssistant
	}
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			blocks = append(blocks, sdk.NewTextBlock(v.Text))
		case ToolUsePart:
			var input any
			_ = json.Unmarshal(v.Input, &input)
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, input, v.Name))
		case ToolResultPart:
			content, _ := json.Marshal(v.Content)
			blocks = append(blocks, sdk.NewToolResultBlock(v.ToolUseID, string(content), v.IsError))
		case ThinkingPart:
			blocks = append(blocks, sdk.NewThinkingBlock(v.Signature, v.Text))
		}
	}
	return sdk.MessageParam{Role: role, Content: blocks}
}

// anthropicStreamer adapts an Anthropic Messages streaming response to
// Streamer.
type anthropicStreamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	usageMu sync.RWMutex
	usage   TokenUsage

	toolNameMap map[string]string
}

func newAnthropicStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], nameMap map[string]string) *anthropicStreamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &anthropicStreamer{
		ctx:         cctx,
		cancel:      cancel,
		stream:      stream,
		chunks:      make(chan Chunk, 32),
		toolNameMap: nameMap,
	}
	go s.run()
	return s
}

func (s *anthropicStreamer) Recv() (Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return Chunk{}, err
	}
}

func (s *anthropicStreamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *anthropicStreamer) Usage() TokenUsage {
	s.usageMu.RLock()
	defer s.usageMu.RUnlock()
	return s.usage
}

func (s *anthropicStreamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	proc := newAnthropicChunkProcessor(s.emit, s.recordUsage, s.toolNameMap)
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
			} else {
				s.setErr(nil)
			}
			return
		}
		if err := proc.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *anthropicStreamer) emit(c Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- c:
		return nil
	}
}

func (s *anthropicStreamer) recordUsage(u TokenUsage) {
	s.usageMu.Lock()
	s.usage = u
	s.usageMu.Unlock()
}

func (s *anthropicStreamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *anthropicStreamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

// anthropicChunkProcessor converts Anthropic SSE events into Chunks,
// buffering partial tool-call JSON and thinking text per content-block
// index until their ContentBlockStopEvent.
type anthropicChunkProcessor struct {
	emit        func(Chunk) error
	recordUsage func(TokenUsage)
	toolNameMap map[string]string

	toolBlocks     map[int]*toolBuffer
	thinkingBlocks map[int]*thinkingBuffer
	stopReason     string
}

func newAnthropicChunkProcessor(emit func(Chunk) error, recordUsage func(TokenUsage), nameMap map[string]string) *anthropicChunkProcessor {
	return &anthropicChunkProcessor{
		emit:           emit,
		recordUsage:    recordUsage,
		toolNameMap:    nameMap,
		toolBlocks:     make(map[int]*toolBuffer),
		thinkingBlocks: make(map[int]*thinkingBuffer),
	}
}

type toolBuffer struct {
	name      string
	id        string
	fragments []string
}

func (tb *toolBuffer) finalInput() string {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return "{}"
	}
	return joined
}

type thinkingBuffer struct {
	text      strings.Builder
	signature string
}

func (p *anthropicChunkProcessor) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int]*toolBuffer)
		p.thinkingBlocks = make(map[int]*thinkingBuffer)
		p.stopReason = ""
		return nil

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if toolUse.ID == "" || toolUse.Name == "" {
				return fmt.Errorf("llmbridge: anthropic tool_use block missing id or name")
			}
			name := toolUse.Name
			if canonical, ok := p.toolNameMap[name]; ok {
				name = canonical
			}
			p.toolBlocks[idx] = &toolBuffer{name: name, id: toolUse.ID}
		}
		return nil

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return p.emit(Chunk{Type: ChunkText, Text: delta.Text})
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			tb := p.toolBlocks[idx]
			if tb == nil {
				return nil
			}
			tb.fragments = append(tb.fragments, delta.PartialJSON)
			return p.emit(Chunk{Type: ChunkToolCallDelta, ToolCallDelta: &ToolCallDelta{ID: tb.id, Name: tb.name, Delta: delta.PartialJSON}})
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			tb := p.thinkingBlocks[idx]
			if tb == nil {
				tb = &thinkingBuffer{}
				p.thinkingBlocks[idx] = tb
			}
			tb.text.WriteString(delta.Thinking)
			return p.emit(Chunk{Type: ChunkThinking, Thinking: delta.Thinking})
		case sdk.SignatureDelta:
			if delta.Signature == "" {
				return nil
			}
			tb := p.thinkingBlocks[idx]
			if tb == nil {
				tb = &thinkingBuffer{}
				p.thinkingBlocks[idx] = tb
			}
			tb.signature = delta.Signature
			return nil
		}
		return nil

	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		delete(p.thinkingBlocks, idx)
		if tb := p.toolBlocks[idx]; tb != nil {
			delete(p.toolBlocks, idx)
			payload := json.RawMessage(tb.finalInput())
			return p.emit(Chunk{Type: ChunkToolCall, ToolCall: &ToolUsePart{ID: tb.id, Name: tb.name, Input: payload}})
		}
		return nil

	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		usage := TokenUsage{
			InputTokens:      int(ev.Usage.InputTokens),
			OutputTokens:     int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
		}
		if p.recordUsage != nil {
			p.recordUsage(usage)
		}
		return p.emit(Chunk{Type: ChunkUsage, UsageDelta: &usage})

	case sdk.MessageStopEvent:
		chunk := Chunk{Type: ChunkStop, StopReason: p.stopReason}
		p.toolBlocks = make(map[int]*toolBuffer)
		p.thinkingBlocks = make(map[int]*thinkingBuffer)
		return p.emit(chunk)
	}
	return nil
}
