package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/sse"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// stream implements [llmux.Stream] over a sequence of GenerateContentResponse
// chunks. The chunks come from an SSE body or from the genai SDK iterator.
type stream struct {
	next    func() (*genai.GenerateContentResponse, error) // io.EOF at end
	release func() error
	ctx     context.Context
	logger  zerolog.Logger

	state llmux.StreamState
	queue llmux.Queue
	err   error
	ended bool

	spanIDs     *llmux.IDSource
	callIDs     *llmux.IDSource
	textID      string
	reasoningID string
	calls       []bufferedCall
	usage       llmux.Usage
	reason      llmux.FinishReason
}

// bufferedCall is a complete function call held until the stream ends.
type bufferedCall struct {
	id   string
	name string
	args json.RawMessage
}

// Interface compliance check.
var _ llmux.Stream = (*stream)(nil)

// NewStream decodes a streamGenerateContent SSE body into canonical events.
func NewStream(ctx context.Context, body io.ReadCloser) llmux.Stream {
	return newSSEStream(ctx, body, zerolog.Nop())
}

func newSSEStream(ctx context.Context, body io.ReadCloser, logger zerolog.Logger) *stream {
	s := newStream(ctx, logger)
	reader := sse.NewReader(body)
	s.release = body.Close
	s.next = func() (*genai.GenerateContentResponse, error) {
		for {
			frame, err := reader.Next()
			if err != nil {
				return nil, err
			}
			if frame.Data == "" || frame.Data == "[DONE]" {
				continue
			}
			var chunk genai.GenerateContentResponse
			if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
				s.logger.Debug().Err(err).Msg("gemini: dropping malformed chunk")
				continue
			}
			return &chunk, nil
		}
	}
	return s
}

// NewStreamFromIter decodes the iterator returned by the genai SDK's
// GenerateContentStream. An error yielded by the iterator fails the stream.
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) llmux.Stream {
	s := newStream(ctx, zerolog.Nop())
	pull, stop := iter.Pull2(seq)
	s.release = func() error {
		stop()
		return nil
	}
	s.next = func() (*genai.GenerateContentResponse, error) {
		for {
			chunk, err, ok := pull()
			if !ok {
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
			if chunk != nil {
				return chunk, nil
			}
		}
	}
	return s
}

func newStream(ctx context.Context, logger zerolog.Logger) *stream {
	return &stream{
		ctx:     ctx,
		logger:  logger,
		state:   llmux.StreamStateNew,
		spanIDs: llmux.NewIDSource("gemini-"),
		callIDs: llmux.NewToolCallIDSource(),
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
		return nil, fmt.Errorf("gemini: %w", llmux.ErrStreamClosed)
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

		chunk, err := s.next()
		if errors.Is(err, io.EOF) {
			s.finish()
			continue
		}
		if err != nil {
			s.terminate(err)
			return nil, s.err
		}
		if err := s.processChunk(chunk); err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}
}

// State returns the current stream state.
func (s *stream) State() llmux.StreamState {
	return s.state
}

// Close releases the chunk source.
func (s *stream) Close() error {
	switch s.state {
	case llmux.StreamStateComplete, llmux.StreamStateError, llmux.StreamStateAborted:
	default:
		s.state = llmux.StreamStateClosed
	}
	return s.release()
}

func (s *stream) terminate(err error) {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.abort(ctxErr)
		return
	}
	s.state = llmux.StreamStateError
	s.err = fmt.Errorf("gemini: %w", err)
}

func (s *stream) abort(cause error) {
	s.state = llmux.StreamStateAborted
	s.err = llmux.Aborted("gemini", cause)
}

// finish closes open spans, flushes buffered calls and queues EventFinish.
func (s *stream) finish() {
	s.closeReasoning()
	s.closeText()

	for _, c := range s.calls {
		s.queue.Push(
			llmux.EventToolInputStart{ID: c.id, ToolName: c.name},
			llmux.EventToolInputDelta{ID: c.id, Delta: string(c.args)},
			llmux.EventToolInputEnd{ID: c.id},
			llmux.EventToolCall{ID: c.id, ToolName: c.name, Input: c.args},
		)
	}
	// A plain stop with calls pending means the model wants them run.
	// Length, filter and error outcomes are kept as reported.
	if len(s.calls) > 0 && s.reason == llmux.FinishStop {
		s.reason = llmux.FinishToolCalls
	}

	s.queue.Push(llmux.EventFinish{Reason: s.reason, Usage: s.usage.Total()})
	s.ended = true
}

func (s *stream) processChunk(chunk *genai.GenerateContentResponse) error {
	if chunk.UsageMetadata != nil {
		s.applyUsage(chunk.UsageMetadata)
	}
	if len(chunk.Candidates) == 0 {
		if fb := chunk.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return fmt.Errorf("prompt blocked: %s", fb.BlockReason)
		}
		return nil
	}

	// Only the first candidate is decoded.
	cand := chunk.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if err := s.processPart(part); err != nil {
				return err
			}
		}
	}
	if cand.FinishReason != "" && cand.FinishReason != "FINISH_REASON_UNSPECIFIED" {
		s.reason = mapFinishReason(cand.FinishReason)
	}
	return nil
}

func (s *stream) processPart(part *genai.Part) error {
	switch {
	case part.FunctionCall != nil:
		s.closeReasoning()
		return s.bufferCall(part.FunctionCall)
	case part.Thought:
		// Signature-only thought parts carry no text.
		if part.Text != "" {
			s.emitReasoning(part.Text)
		}
	case part.Text != "":
		s.closeReasoning()
		s.emitText(part.Text)
	}
	return nil
}

func (s *stream) bufferCall(fc *genai.FunctionCall) error {
	args := json.RawMessage("{}")
	if fc.Args != nil {
		raw, err := json.Marshal(fc.Args)
		if err != nil {
			return fmt.Errorf("invalid tool call arguments for %s: %w", fc.Name, err)
		}
		args = raw
	}
	id := fc.ID
	if id == "" {
		id = s.callIDs.Next()
	}
	s.calls = append(s.calls, bufferedCall{id: id, name: fc.Name, args: args})
	return nil
}

// applyUsage replaces the running counters; Gemini reports cumulative values.
// Input excludes cached prompt tokens, which are reported separately as
// CacheReadTokens. The derived total is therefore uncached input plus output
// and is lower than Gemini's own totalTokenCount when the prompt hit a cache.
func (s *stream) applyUsage(u *genai.GenerateContentResponseUsageMetadata) {
	input := int(u.PromptTokenCount - u.CachedContentTokenCount)
	if input < 0 {
		input = 0
	}
	s.usage.InputTokens = llmux.Int(input)
	s.usage.OutputTokens = llmux.Int(int(u.CandidatesTokenCount + u.ThoughtsTokenCount))
	if u.CachedContentTokenCount > 0 {
		s.usage.CacheReadTokens = llmux.Int(int(u.CachedContentTokenCount))
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

func mapFinishReason(r genai.FinishReason) llmux.FinishReason {
	switch r {
	case genai.FinishReasonStop:
		return llmux.FinishStop
	case genai.FinishReasonMaxTokens:
		return llmux.FinishLength
	}
	switch string(r) {
	case "MALFORMED_FUNCTION_CALL":
		return llmux.FinishError
	case "FUNCTION_CALL", "UNEXPECTED_TOOL_CALL":
		return llmux.FinishToolCalls
	case "SAFETY", "RECITATION", "OTHER", "BLOCKLIST", "PROHIBITED_CONTENT",
		"SPII", "IMAGE_SAFETY", "LANGUAGE":
		return llmux.FinishContentFilter
	}
	return llmux.FinishStop
}
