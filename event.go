package llmux

import "encoding/json"

// Event is a sealed interface representing one canonical streaming event.
// Every provider decoder produces this vocabulary and every transform stage
// consumes and re-emits it. Transport/protocol errors come from Next()'s
// error return, not from events.
//
// Sequence rules:
//   - at most one text span and one reasoning span are open at a time;
//   - every *Start is matched by exactly one *End, closed before EventFinish;
//   - EventFinish occurs at most once and is the last event;
//   - EventToolCall for an ID is preceded by EventToolInputStart with that ID.
//
// Stages forward variants they do not handle unchanged.
type Event interface {
	event()
}

// EventTextStart opens a text span.
type EventTextStart struct {
	ID string
}

func (EventTextStart) event() {}

// EventTextDelta carries visible text for the open text span.
type EventTextDelta struct {
	ID    string
	Delta string
}

func (EventTextDelta) event() {}

// EventTextEnd closes a text span.
type EventTextEnd struct {
	ID string
}

func (EventTextEnd) event() {}

// EventReasoningStart opens a reasoning span.
type EventReasoningStart struct {
	ID string
}

func (EventReasoningStart) event() {}

// EventReasoningDelta carries reasoning ("thinking") text.
type EventReasoningDelta struct {
	ID    string
	Delta string
}

func (EventReasoningDelta) event() {}

// EventReasoningEnd closes a reasoning span.
type EventReasoningEnd struct {
	ID string
}

func (EventReasoningEnd) event() {}

// EventToolInputStart signals the start of a tool call's argument stream.
type EventToolInputStart struct {
	ID       string
	ToolName string
}

func (EventToolInputStart) event() {}

// EventToolInputDelta is a fragment of a tool call's JSON arguments.
type EventToolInputDelta struct {
	ID    string
	Delta string
}

func (EventToolInputDelta) event() {}

// EventToolInputEnd signals that all argument fragments were delivered.
type EventToolInputEnd struct {
	ID string
}

func (EventToolInputEnd) event() {}

// EventToolCall is the fully assembled tool invocation.
type EventToolCall struct {
	ID       string
	ToolName string
	Input    json.RawMessage
}

func (EventToolCall) event() {}

// EventFinish terminates the sequence.
type EventFinish struct {
	Reason FinishReason
	Usage  Usage
}

func (EventFinish) event() {}

// Interface compliance checks.
var (
	_ Event = EventTextStart{}
	_ Event = EventTextDelta{}
	_ Event = EventTextEnd{}
	_ Event = EventReasoningStart{}
	_ Event = EventReasoningDelta{}
	_ Event = EventReasoningEnd{}
	_ Event = EventToolInputStart{}
	_ Event = EventToolInputDelta{}
	_ Event = EventToolInputEnd{}
	_ Event = EventToolCall{}
	_ Event = EventFinish{}
)
