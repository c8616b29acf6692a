// Package json encodes canonical events as JSON lines and replays recorded
// event logs as streams.
//
// Each line is one event object with a "type" discriminator:
//
//	{"type":"text-delta","id":"anthropic-1","delta":"Hello"}
//	{"type":"finish","reason":"stop","usage":{"input_tokens":10,"output_tokens":2,"total_tokens":12}}
package json

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/llmux"
)

// Event type discriminators.
const (
	typeTextStart      = "text-start"
	typeTextDelta      = "text-delta"
	typeTextEnd        = "text-end"
	typeReasoningStart = "reasoning-start"
	typeReasoningDelta = "reasoning-delta"
	typeReasoningEnd   = "reasoning-end"
	typeToolInputStart = "tool-input-start"
	typeToolInputDelta = "tool-input-delta"
	typeToolInputEnd   = "tool-input-end"
	typeToolCall       = "tool-call"
	typeFinish         = "finish"
)

// eventDTO is the JSON representation of an Event.
type eventDTO struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Delta    string          `json:"delta,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Usage    *usageDTO       `json:"usage,omitempty"`
}

// MarshalEvent serializes one event.
func MarshalEvent(evt llmux.Event) ([]byte, error) {
	dto, err := marshalEvent(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto)
}

// UnmarshalEvent deserializes one event.
func UnmarshalEvent(data []byte) (llmux.Event, error) {
	var dto eventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return unmarshalEvent(dto)
}

// Encoder writes events as JSON lines.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes evt followed by a newline.
func (e *Encoder) Encode(evt llmux.Event) error {
	dto, err := marshalEvent(evt)
	if err != nil {
		return err
	}
	return e.enc.Encode(dto)
}

func marshalEvent(evt llmux.Event) (eventDTO, error) {
	switch e := evt.(type) {
	case llmux.EventTextStart:
		return eventDTO{Type: typeTextStart, ID: e.ID}, nil
	case llmux.EventTextDelta:
		return eventDTO{Type: typeTextDelta, ID: e.ID, Delta: e.Delta}, nil
	case llmux.EventTextEnd:
		return eventDTO{Type: typeTextEnd, ID: e.ID}, nil
	case llmux.EventReasoningStart:
		return eventDTO{Type: typeReasoningStart, ID: e.ID}, nil
	case llmux.EventReasoningDelta:
		return eventDTO{Type: typeReasoningDelta, ID: e.ID, Delta: e.Delta}, nil
	case llmux.EventReasoningEnd:
		return eventDTO{Type: typeReasoningEnd, ID: e.ID}, nil
	case llmux.EventToolInputStart:
		return eventDTO{Type: typeToolInputStart, ID: e.ID, ToolName: e.ToolName}, nil
	case llmux.EventToolInputDelta:
		return eventDTO{Type: typeToolInputDelta, ID: e.ID, Delta: e.Delta}, nil
	case llmux.EventToolInputEnd:
		return eventDTO{Type: typeToolInputEnd, ID: e.ID}, nil
	case llmux.EventToolCall:
		if !json.Valid(e.Input) {
			return eventDTO{}, fmt.Errorf("tool call %s: input is not valid JSON", e.ID)
		}
		return eventDTO{Type: typeToolCall, ID: e.ID, ToolName: e.ToolName, Input: e.Input}, nil
	case llmux.EventFinish:
		return eventDTO{Type: typeFinish, Reason: string(e.Reason), Usage: marshalUsage(e.Usage)}, nil
	default:
		return eventDTO{}, fmt.Errorf("unknown event type %T", evt)
	}
}

func unmarshalEvent(dto eventDTO) (llmux.Event, error) {
	switch dto.Type {
	case typeTextStart:
		return llmux.EventTextStart{ID: dto.ID}, nil
	case typeTextDelta:
		return llmux.EventTextDelta{ID: dto.ID, Delta: dto.Delta}, nil
	case typeTextEnd:
		return llmux.EventTextEnd{ID: dto.ID}, nil
	case typeReasoningStart:
		return llmux.EventReasoningStart{ID: dto.ID}, nil
	case typeReasoningDelta:
		return llmux.EventReasoningDelta{ID: dto.ID, Delta: dto.Delta}, nil
	case typeReasoningEnd:
		return llmux.EventReasoningEnd{ID: dto.ID}, nil
	case typeToolInputStart:
		return llmux.EventToolInputStart{ID: dto.ID, ToolName: dto.ToolName}, nil
	case typeToolInputDelta:
		return llmux.EventToolInputDelta{ID: dto.ID, Delta: dto.Delta}, nil
	case typeToolInputEnd:
		return llmux.EventToolInputEnd{ID: dto.ID}, nil
	case typeToolCall:
		input := dto.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return llmux.EventToolCall{ID: dto.ID, ToolName: dto.ToolName, Input: input}, nil
	case typeFinish:
		return llmux.EventFinish{Reason: llmux.FinishReason(dto.Reason), Usage: unmarshalUsage(dto.Usage)}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", dto.Type)
	}
}
