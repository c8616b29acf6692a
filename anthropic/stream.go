package anthropic

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

// stream implements [llmux.Stream] by decoding SSE frames from an HTTP
// response body. All decode state lives here and dies with the request.
type stream struct {
	body   io.ReadCloser
	reader *sse.Reader
	ctx    context.Context
	logger zerolog.Logger

	state llmux.StreamState
	queue llmux.Queue
	err   error // terminal error, if any
	ended bool  // EventFinish queued

	spanIDs     *llmux.IDSource
	textID      string // open text span, "" when closed
	reasoningID string // open reasoning span, "" when closed
	tools       map[int]*toolState
	usage       llmux.Usage
	reason      llmux.FinishReason
}

// toolState accumulates one tool_use block's argument JSON.
type toolState struct {
	id       string
	name     string
	inputBuf strings.Builder
}

// Interface compliance check.
var _ llmux.Stream = (*stream)(nil)

// NewStream decodes a Messages API SSE body into canonical events. It is
// what [Client.Stream] returns after a successful response and is exported
// for callers that obtain the body themselves.
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
		spanIDs: llmux.NewIDSource("anthropic-"),
		tools:   make(map[int]*toolState),
		reason:  llmux.FinishStop,
	}
}

// Next returns the next canonical event. It returns io.EOF after
// EventFinish has been delivered.
func (s *stream) Next() (llmux.Event, error) {
	switch s.state {
	case llmux.StreamStateComplete:
		return nil, io.EOF
	case llmux.StreamStateError, llmux.StreamStateAborted:
		return nil, s.err
	case llmux.StreamStateClosed:
		return nil, fmt.Errorf("anthropic: %w", llmux.ErrStreamClosed)
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
		if err := s.processFrame(frame); err != nil {
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

// terminate records a fatal mid-stream error. A read failure caused by
// context cancellation is reported as an abort instead.
func (s *stream) terminate(err error) {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.abort(ctxErr)
		return
	}
	s.state = llmux.StreamStateError
	s.err = fmt.Errorf("anthropic: %w", err)
}

func (s *stream) abort(cause error) {
	s.state = llmux.StreamStateAborted
	s.err = llmux.Aborted("anthropic", cause)
}

// finish closes open spans (reasoning before text) and queues EventFinish.
func (s *stream) finish() {
	s.closeReasoning()
	s.closeText()

	// Tool blocks that never saw content_block_stop still get their end
	// marker; without complete input no tool call is reported.
	if len(s.tools) > 0 {
		indexes := make([]int, 0, len(s.tools))
		for idx := range s.tools {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			s.queue.Push(llmux.EventToolInputEnd{ID: s.tools[idx].id})
			delete(s.tools, idx)
		}
	}

	s.queue.Push(llmux.EventFinish{Reason: s.reason, Usage: s.usage.Total()})
	s.ended = true
}

// processFrame decodes one SSE frame. Frames with malformed JSON are dropped.
// Only an upstream "error" frame fails the stream.
func (s *stream) processFrame(frame sse.Event) error {
	data := []byte(frame.Data)
	eventType := frame.Type
	if eventType == "" {
		var env sseEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.dropFrame("", err)
			return nil
		}
		eventType = env.Type
	}

	var err error
	switch eventType {
	case "message_start":
		err = s.handleMessageStart(data)
	case "content_block_start":
		err = s.handleContentBlockStart(data)
	case "content_block_delta":
		err = s.handleContentBlockDelta(data)
	case "content_block_stop":
		err = s.handleContentBlockStop(data)
	case "message_delta":
		err = s.handleMessageDelta(data)
	case "message_stop", "ping":
	case "error":
		return s.handleError(data)
	default:
		// New event types may be added to the API at any time.
	}
	if err != nil {
		s.dropFrame(eventType, err)
	}
	return nil
}

func (s *stream) dropFrame(eventType string, err error) {
	s.logger.Debug().Err(err).Str("event", eventType).Msg("anthropic: dropping malformed frame")
}

func (s *stream) handleMessageStart(data []byte) error {
	var evt sseMessageStart
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	s.mergeUsage(evt.Message.Usage)
	return nil
}

func (s *stream) handleContentBlockStart(data []byte) error {
	var evt sseContentBlockStart
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}

	switch evt.ContentBlock.Type {
	case "tool_use":
		ts := &toolState{id: evt.ContentBlock.ID, name: evt.ContentBlock.Name}
		s.tools[evt.Index] = ts
		s.queue.Push(llmux.EventToolInputStart{ID: ts.id, ToolName: ts.name})
	case "text":
		// Spans open lazily on the first delta, so repeated starts are
		// idempotent. Prefilled text is delivered as a delta.
		s.emitText(evt.ContentBlock.Text)
	case "thinking":
		s.emitReasoning(evt.ContentBlock.Thinking)
	}
	return nil
}

func (s *stream) handleContentBlockDelta(data []byte) error {
	var evt sseContentBlockDelta
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}

	switch evt.Delta.Type {
	case "text_delta":
		s.emitText(evt.Delta.Text)
	case "thinking_delta":
		s.emitReasoning(evt.Delta.Thinking)
	case "input_json_delta":
		ts := s.tools[evt.Index]
		if ts == nil {
			return fmt.Errorf("input_json_delta for unknown block index %d", evt.Index)
		}
		if evt.Delta.PartialJSON == "" {
			return nil
		}
		ts.inputBuf.WriteString(evt.Delta.PartialJSON)
		s.queue.Push(llmux.EventToolInputDelta{ID: ts.id, Delta: evt.Delta.PartialJSON})
	case "signature_delta":
		// Opaque to the canonical protocol.
	}
	return nil
}

func (s *stream) handleContentBlockStop(data []byte) error {
	var evt sseContentBlockStop
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}

	ts := s.tools[evt.Index]
	if ts == nil {
		return nil
	}
	delete(s.tools, evt.Index)

	raw := ts.inputBuf.String()
	if raw == "" {
		raw = "{}"
	}
	s.queue.Push(
		llmux.EventToolInputEnd{ID: ts.id},
		llmux.EventToolCall{ID: ts.id, ToolName: ts.name, Input: json.RawMessage(raw)},
	)
	return nil
}

func (s *stream) handleMessageDelta(data []byte) error {
	var evt sseMessageDelta
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	s.mergeUsage(evt.Usage)
	if evt.Delta.StopReason != nil {
		s.reason = mapStopReason(*evt.Delta.StopReason)
	}
	return nil
}

func (s *stream) handleError(data []byte) error {
	var evt sseError
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("upstream error frame: %s", string(data))
	}
	return fmt.Errorf("%s: %s", evt.Error.Type, evt.Error.Message)
}

// mergeUsage applies the latest non-null value of each field.
func (s *stream) mergeUsage(u sseUsage) {
	if u.InputTokens != nil {
		s.usage.InputTokens = llmux.Int(*u.InputTokens)
	}
	if u.OutputTokens != nil {
		s.usage.OutputTokens = llmux.Int(*u.OutputTokens)
	}
	if u.CacheReadInputTokens != nil {
		s.usage.CacheReadTokens = llmux.Int(*u.CacheReadInputTokens)
	}
	if u.CacheCreationInputTokens != nil {
		s.usage.CacheWriteTokens = llmux.Int(*u.CacheCreationInputTokens)
	}
}

func (s *stream) emitText(delta string) {
	if delta == "" {
		return
	}
	if s.textID == "" {
		s.textID = s.spanIDs.Next()
		s.queue.Push(llmux.EventTextStart{ID: s.textID})
	}
	s.queue.Push(llmux.EventTextDelta{ID: s.textID, Delta: delta})
}

func (s *stream) emitReasoning(delta string) {
	if delta == "" {
		return
	}
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

func mapStopReason(raw string) llmux.FinishReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return llmux.FinishStop
	case "max_tokens":
		return llmux.FinishLength
	case "tool_use":
		return llmux.FinishToolCalls
	case "refusal":
		return llmux.FinishContentFilter
	default:
		return llmux.FinishStop
	}
}
