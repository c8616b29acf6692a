package llmux

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Accumulator folds a canonical event sequence into an AssistantMessage.
// Each text span becomes a TextBlock, each reasoning span a ThinkingBlock and
// each EventToolCall a ToolCallBlock, in the order the spans opened.
type Accumulator struct {
	blocks   []ContentBlock
	builders map[string]*strings.Builder
	index    map[string]int
	finish   *EventFinish
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		builders: make(map[string]*strings.Builder),
		index:    make(map[string]int),
	}
}

// Add folds one event into the message. Unknown variants are ignored.
func (a *Accumulator) Add(evt Event) {
	switch e := evt.(type) {
	case EventTextStart:
		a.open("text:"+e.ID, TextBlock{})
	case EventTextDelta:
		key := "text:" + e.ID
		if _, ok := a.index[key]; !ok {
			a.open(key, TextBlock{})
		}
		b := a.builders[key]
		b.WriteString(e.Delta)
		a.blocks[a.index[key]] = TextBlock{Text: b.String()}
	case EventReasoningStart:
		a.open("reasoning:"+e.ID, ThinkingBlock{})
	case EventReasoningDelta:
		key := "reasoning:" + e.ID
		if _, ok := a.index[key]; !ok {
			a.open(key, ThinkingBlock{})
		}
		b := a.builders[key]
		b.WriteString(e.Delta)
		a.blocks[a.index[key]] = ThinkingBlock{Thinking: b.String()}
	case EventToolCall:
		a.blocks = append(a.blocks, ToolCallBlock{ID: e.ID, Name: e.ToolName, Arguments: e.Input})
	case EventFinish:
		a.finish = &e
	}
}

func (a *Accumulator) open(key string, block ContentBlock) {
	if _, ok := a.index[key]; ok {
		return
	}
	a.index[key] = len(a.blocks)
	a.builders[key] = &strings.Builder{}
	a.blocks = append(a.blocks, block)
}

// Finished reports whether EventFinish was seen.
func (a *Accumulator) Finished() bool {
	return a.finish != nil
}

// Message returns the message assembled so far. Without an EventFinish the
// finish reason is FinishError and usage is empty.
func (a *Accumulator) Message() AssistantMessage {
	msg := AssistantMessage{
		Content:      append([]ContentBlock(nil), a.blocks...),
		FinishReason: FinishError,
		Timestamp:    time.Now(),
	}
	if a.finish != nil {
		msg.FinishReason = a.finish.Reason
		msg.Usage = a.finish.Usage
	}
	return msg
}

// Drain reads s to completion, forwarding each event to onEvent when it is
// non-nil, and returns the accumulated message. On a stream error the partial
// message is returned together with the error. Drain closes s.
func Drain(ctx context.Context, s Stream, onEvent func(Event)) (AssistantMessage, error) {
	defer s.Close()
	acc := NewAccumulator()
	for {
		if err := ctx.Err(); err != nil {
			return acc.Message(), Aborted("drain", err)
		}
		evt, err := s.Next()
		if errors.Is(err, io.EOF) {
			return acc.Message(), nil
		}
		if err != nil {
			return acc.Message(), err
		}
		acc.Add(evt)
		if onEvent != nil {
			onEvent(evt)
		}
	}
}
