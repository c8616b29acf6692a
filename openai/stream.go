package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/sse"
	"github.com/rs/zerolog"
)

// stream implements [llmux.Stream] over a Chat Completions SSE body.
type stream struct {
	body   io.ReadCloser
	reader *sse.Reader
	ctx    context.Context
	logger zerolog.Logger

	state llmux.StreamState
	queue llmux.Queue
	err   error
	ended bool

	spanIDs     *llmux.IDSource
	callIDs     *llmux.IDSource
	textID      string
	reasoningID string
	tools       map[int]*toolCallBuffer
	usage       llmux.Usage
	reason      llmux.FinishReason
}

// toolCallBuffer assembles one indexed tool call across chunks.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// Interface compliance check.
var _ llmux.Stream = (*stream)(nil)

// NewStream decodes a Chat Completions SSE body into canonical events.
func NewStream(ctx context.Context, body io.ReadCloser) llmux.Stream {
	return newStream(ctx, body, zerolog.Nop())
}

func newStream(ctx context.Context, body io.ReadCloser, logger zerolog.Logger) *stream {
	return &stream{
		body:    body,
		reader:  sse.NewReader(body),
		ctx:     ctx,
		logger:  logger,
		state:   llmux.StreamStateNew,
		spanIDs: llmux.NewIDSource("openai-"),
		callIDs: llmux.NewToolCallIDSource(),
		tools:   make(map[int]*toolCallBuffer),
		reason:  llmux.FinishStop,
	}
}

// Next returns the next canonical event, or io.EOF after EventFinish.
func (s *stream) Next() (llmux.Event, error) {
	switch s.state {
	case llmux.StreamStateComplete:
		return nil, io.EOF
	case llmux.StreamStateError, llmux.StreamStateAborted:
		return nil, s.err
	case llmux.StreamStateClosed:
		return nil, fmt.Errorf("openai: %w", llmux.ErrStreamClosed)
	}

	for {
		if evt, ok := s.queue.Pop(); ok {
			s.state = llmux.StreamStateStreaming
			if _, done := evt.(llmux.EventFinish); done {
				s.state = llmux.StreamStateComplete
			}
			return evt, nil
		}
		if s.ended {
			s.state = llmux.StreamStateComplete
			return nil, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			s.abort(err)
			return nil, s.err
		}

		frame, err := s.reader.Next()
		if errors.Is(err, io.EOF) {
			s.finish()
			continue
		}
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		if frame.Data == doneSentinel {
			s.finish()
			continue
		}
		if err := s.processChunk(frame.Data); err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}
}

// State returns the current stream state.
func (s *stream) State() llmux.StreamState {
	return s.state
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	switch s.state {
	case llmux.StreamStateComplete, llmux.StreamStateError, llmux.StreamStateAborted:
	default:
		s.state = llmux.StreamStateClosed
	}
	return s.body.Close()
}

func (s *stream) terminate(err error) {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.abort(ctxErr)
		return
	}
	s.state = llmux.StreamStateError
	s.err = fmt.Errorf("openai: %w", err)
}

func (s *stream) abort(cause error) {
	s.state = llmux.StreamStateAborted
	s.err = llmux.Aborted("openai", cause)
}

// finish closes open spans, completes buffered tool calls in index order and
// queues EventFinish.
func (s *stream) finish() {
	s.closeReasoning()
	s.closeText()

	indexes := make([]int, 0, len(s.tools))
	for idx := range s.tools {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		tc := s.tools[idx]
		raw := tc.args.String()
		if strings.TrimSpace(raw) == "" {
			raw = "{}"
		}
		s.queue.Push(
			llmux.EventToolInputEnd{ID: tc.id},
			llmux.EventToolCall{ID: tc.id, ToolName: tc.name, Input: json.RawMessage(raw)},
		)
		delete(s.tools, idx)
	}
	if len(indexes) > 0 && s.reason == llmux.FinishStop {
		s.reason = llmux.FinishToolCalls
	}

	s.queue.Push(llmux.EventFinish{Reason: s.reason, Usage: s.usage.Total()})
	s.ended = true
}

func (s *stream) processChunk(data string) error {
	if data == "" {
		return nil
	}
	var chunk apiChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		s.logger.Debug().Err(err).Msg("openai: dropping malformed chunk")
		return nil
	}
	if chunk.Error != nil {
		if chunk.Error.Type != "" {
			return fmt.Errorf("%s: %s", chunk.Error.Type, chunk.Error.Message)
		}
		return errors.New(chunk.Error.Message)
	}
	if chunk.Usage != nil {
		s.mergeUsage(chunk.Usage)
	}

	for _, choice := range chunk.Choices {
		// Only the first choice is decoded; n is never set above 1.
		if choice.Index != 0 {
			continue
		}
		s.processDelta(choice.Delta)
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.reason = mapFinishReason(*choice.FinishReason)
		}
	}
	return nil
}

func (s *stream) processDelta(delta apiChunkDelta) {
	reasoning := delta.ReasoningContent
	if reasoning == nil {
		reasoning = delta.Reasoning
	}
	if reasoning != nil && *reasoning != "" {
		s.emitReasoning(*reasoning)
	}
	if delta.Content != nil && *delta.Content != "" {
		s.closeReasoning()
		s.emitText(*delta.Content)
	}
	for _, tc := range delta.ToolCalls {
		buf, ok := s.tools[tc.Index]
		if !ok {
			s.closeReasoning()
			id := tc.ID
			if id == "" {
				id = s.callIDs.Next()
			}
			buf = &toolCallBuffer{id: id, name: tc.Function.Name}
			s.tools[tc.Index] = buf
			s.queue.Push(llmux.EventToolInputStart{ID: buf.id, ToolName: buf.name})
		} else if buf.name == "" && tc.Function.Name != "" {
			buf.name = tc.Function.Name
		}
		if tc.Function.Arguments == "" {
			continue
		}
		buf.args.WriteString(tc.Function.Arguments)
		s.queue.Push(llmux.EventToolInputDelta{ID: buf.id, Delta: tc.Function.Arguments})
	}
}

// mergeUsage applies the latest reported value of each field.
func (s *stream) mergeUsage(u *apiUsage) {
	if u.PromptTokens != nil {
		s.usage.InputTokens = llmux.Int(*u.PromptTokens)
	}
	if u.CompletionTokens != nil {
		s.usage.OutputTokens = llmux.Int(*u.CompletionTokens)
	}
	if d := u.PromptTokensDetails; d != nil && d.CachedTokens != nil {
		s.usage.CacheReadTokens = llmux.Int(*d.CachedTokens)
	}
}

func (s *stream) emitText(delta string) {
	if s.textID == "" {
		s.textID = s.spanIDs.Next()
		s.queue.Push(llmux.EventTextStart{ID: s.textID})
	}
	s.queue.Push(llmux.EventTextDelta{ID: s.textID, Delta: delta})
}

func (s *stream) emitReasoning(delta string) {
	if s.reasoningID == "" {
		s.reasoningID = s.spanIDs.Next()
		s.queue.Push(llmux.EventReasoningStart{ID: s.reasoningID})
	}
	s.queue.Push(llmux.EventReasoningDelta{ID: s.reasoningID, Delta: delta})
}

func (s *stream) closeText() {
	if s.textID != "" {
		s.queue.Push(llmux.EventTextEnd{ID: s.textID})
		s.textID = ""
	}
}

func (s *stream) closeReasoning() {
	if s.reasoningID != "" {
		s.queue.Push(llmux.EventReasoningEnd{ID: s.reasoningID})
		s.reasoningID = ""
	}
}

func mapFinishReason(raw string) llmux.FinishReason {
	switch raw {
	case "stop":
		return llmux.FinishStop
	case "length":
		return llmux.FinishLength
	case "tool_calls", "function_call":
		return llmux.FinishToolCalls
	case "content_filter":
		return llmux.FinishContentFilter
	default:
		return llmux.FinishStop
	}
}
